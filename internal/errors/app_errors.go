package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypePermission ErrorType = "PERMISSION"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// AppError represents an application-specific error raised below the
// HTTP boundary; handlers map it onto the APIError taxonomy.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return &AppError{Type: ErrTypeStorage, Message: message, Cause: cause}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewPermissionError creates a permission error
func NewPermissionError(message string) *AppError {
	return &AppError{Type: ErrTypePermission, Message: message}
}

// IsStorage reports whether err is a storage failure anywhere in its chain
func IsStorage(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ErrTypeStorage
}
