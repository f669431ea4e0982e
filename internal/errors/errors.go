package errors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response. The wire shape is
// {"error": "<code>", "message": "...", "executionTime": "12.34ms"}.
type APIError struct {
	StatusCode    int    `json:"-"`
	Code          string `json:"error"`
	Message       string `json:"message"`
	Path          string `json:"path,omitempty"`
	ExecutionTime string `json:"executionTime,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, code, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// Predefined error types for the API taxonomy
var (
	ErrBadRequest         = New(http.StatusBadRequest, "bad_request", "Invalid request format")
	ErrUnauthorized       = New(http.StatusUnauthorized, "unauthorized", "Bearer token required")
	ErrInvalidToken       = New(http.StatusUnauthorized, "unauthorized", "Invalid API token")
	ErrNotFound           = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrRateLimitExceeded  = New(http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "service_unavailable", "Database connection not available")
	ErrInternalServer     = New(http.StatusInternalServerError, "internal_server_error", "Internal server error")
	ErrEndpointNotFound   = New(http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
)

// BadRequest creates a bad_request error with a caller-correctable message
func BadRequest(message string) *APIError {
	return New(http.StatusBadRequest, "bad_request", message)
}

// NotFound creates a not_found error. Absence and denied access share the
// same message so existence is not leaked.
func NotFound(resource string) *APIError {
	return New(http.StatusNotFound, "not_found", fmt.Sprintf("%s not found or access denied", resource))
}

// WithElapsed returns a copy of the error carrying the formatted elapsed
// processing time. The predefined vars are shared; never mutate them.
func (e *APIError) WithElapsed(start time.Time) *APIError {
	clone := *e
	clone.ExecutionTime = FormatElapsed(start)
	return &clone
}

// WithPath returns a copy of the error carrying the request path
func (e *APIError) WithPath(path string) *APIError {
	clone := *e
	clone.Path = path
	return &clone
}

// FormatElapsed renders elapsed time since start in the wire format ("1.23ms")
func FormatElapsed(start time.Time) string {
	return fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000.0)
}
