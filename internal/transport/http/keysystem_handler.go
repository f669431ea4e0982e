package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "seraphix/internal/errors"
	"seraphix/internal/middleware"
	"seraphix/internal/services"
)

// KeysystemHandler serves owner-scoped keysystem reads
type KeysystemHandler struct {
	service *services.KeysystemService
	logger  *slog.Logger
}

// NewKeysystemHandler creates a new keysystem handler
func NewKeysystemHandler(service *services.KeysystemService, logger *slog.Logger) *KeysystemHandler {
	return &KeysystemHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "keysystem")),
	}
}

// Detail handles GET /v1/keysystems?id= and GET /v1/keysystems/{keysystemID}
func (h *KeysystemHandler) Detail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	customer := middleware.CustomerFromContext(ctx)
	if customer == nil {
		render.Render(w, r, apperrors.ErrUnauthorized.WithElapsed(start))
		return
	}

	keysystemID := chi.URLParam(r, "keysystemID")
	if keysystemID == "" {
		keysystemID = r.URL.Query().Get("id")
	}
	if keysystemID == "" {
		render.Render(w, r, apperrors.BadRequest("Keysystem ID is required").WithElapsed(start))
		return
	}

	ks, err := h.service.GetOwned(ctx, customer.DiscordID, keysystemID)
	if err != nil {
		h.renderError(w, r, start, err, "failed to retrieve keysystem")
		return
	}
	if ks == nil {
		render.Render(w, r, apperrors.NotFound("Keysystem").WithElapsed(start))
		return
	}

	h.logger.InfoContext(ctx, "keysystem retrieved",
		slog.String("keysystem_id", keysystemID),
		slog.String("username", customer.Username),
		slog.String("duration", apperrors.FormatElapsed(start)))

	render.JSON(w, r, Response{
		Message: "Keysystem retrieved successfully",
		Data: map[string]interface{}{
			"keysystem": NewKeysystemView(ks),
		},
		ExecutionTime: apperrors.FormatElapsed(start),
	})
}

// renderError maps service errors onto the API taxonomy and logs them with
// elapsed time.
func (h *KeysystemHandler) renderError(w http.ResponseWriter, r *http.Request, start time.Time, err error, msg string) {
	h.logger.ErrorContext(r.Context(), msg,
		slog.String("error", err.Error()),
		slog.String("duration", apperrors.FormatElapsed(start)))

	if apperrors.IsStorage(err) {
		render.Render(w, r, apperrors.ErrServiceUnavailable.WithElapsed(start))
		return
	}
	render.Render(w, r, apperrors.ErrInternalServer.WithElapsed(start))
}
