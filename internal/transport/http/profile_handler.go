package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	apperrors "seraphix/internal/errors"
	"seraphix/internal/middleware"
)

// ProfileHandler serves the authenticated caller's own profile
type ProfileHandler struct {
	logger *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		logger: logger.With(slog.String("handler", "profile")),
	}
}

// Me handles GET /v1/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	customer := middleware.CustomerFromContext(ctx)
	if customer == nil {
		render.Render(w, r, apperrors.ErrUnauthorized.WithElapsed(start))
		return
	}

	h.logger.InfoContext(ctx, "profile retrieved",
		slog.String("username", customer.Username),
		slog.String("duration", apperrors.FormatElapsed(start)))

	render.JSON(w, r, Response{
		Message:       "User profile retrieved successfully",
		Data:          NewProfileView(customer),
		ExecutionTime: apperrors.FormatElapsed(start),
	})
}
