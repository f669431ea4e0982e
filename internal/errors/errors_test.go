package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_WireShape(t *testing.T) {
	apiErr := ErrUnauthorized.WithElapsed(time.Now())

	data, err := json.Marshal(apiErr)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Equal(t, "unauthorized", body["error"])
	assert.Equal(t, "Bearer token required", body["message"])
	assert.Contains(t, body["executionTime"], "ms")
	assert.NotContains(t, body, "status_code")
}

func TestAPIError_Render(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
	}{
		{"bad request", ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", ErrNotFound, http.StatusNotFound, "not_found"},
		{"rate limited", ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"service unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"internal", ErrInternalServer, http.StatusInternalServerError, "internal_server_error"},
		{"endpoint not found", ErrEndpointNotFound, http.StatusNotFound, "endpoint_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			require.NoError(t, render.Render(w, r, tt.err))
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestWithElapsed_DoesNotMutateShared(t *testing.T) {
	_ = ErrNotFound.WithElapsed(time.Now())
	assert.Empty(t, ErrNotFound.ExecutionTime)
}

func TestAppError(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewStorageError("customer lookup failed", cause)

	assert.Contains(t, err.Error(), "STORAGE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorage(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsStorage(NewNotFoundError("keysystem")))
}
