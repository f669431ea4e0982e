package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	apperrors "seraphix/internal/errors"
)

// StatusHandler answers the unauthenticated liveness endpoint
type StatusHandler struct {
	version     string
	environment string
	startedAt   time.Time
}

// NewStatusHandler creates a status handler anchored at process start
func NewStatusHandler(version, environment string) *StatusHandler {
	return &StatusHandler{
		version:     version,
		environment: environment,
		startedAt:   time.Now(),
	}
}

// Status handles GET /v1/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	render.JSON(w, r, StatusView{
		Message:       "API is Running",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Uptime:        time.Since(h.startedAt).Seconds(),
		Environment:   h.environment,
		ExecutionTime: apperrors.FormatElapsed(start),
	})
}
