package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "seraphix/internal/errors"
	"seraphix/internal/middleware"
	"seraphix/internal/services"
)

// maxConsumerIDLength caps the stringified consumer identity
const maxConsumerIDLength = 48

var validate = validator.New()

// ValidateKeyRequest is the public key-validation payload. DiscordID may
// arrive as a JSON string or number; anything else is rejected.
type ValidateKeyRequest struct {
	Key       string      `json:"key" validate:"required"`
	HWID      string      `json:"hwid" validate:"required,max=300"`
	DiscordID interface{} `json:"discord_id,omitempty"`
}

// ConsumerID normalizes the optional consumer identity to a string
func (req *ValidateKeyRequest) ConsumerID() (*string, error) {
	switch v := req.DiscordID.(type) {
	case nil:
		return nil, nil
	case string:
		if len(v) > maxConsumerIDLength {
			return nil, fmt.Errorf("discord_id must be at most %d characters", maxConsumerIDLength)
		}
		return &v, nil
	case json.Number:
		s := v.String()
		if len(s) > maxConsumerIDLength {
			return nil, fmt.Errorf("discord_id must be at most %d characters", maxConsumerIDLength)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("discord_id must be a string or number")
	}
}

// ResetKeyRequest is the owner-scoped HWID reset payload
type ResetKeyRequest struct {
	Key string `json:"key" validate:"required"`
}

// outcomeMessages are the human-readable companions to the outcome codes
var outcomeMessages = map[services.Outcome]string{
	services.OutcomeKeyInvalid:    "Key not found in this keysystem",
	services.OutcomeKeyExpired:    "Key is expired or inactive",
	services.OutcomeKeyHWIDLocked: "Key is locked to a different device",
}

// KeyHandler serves the public validation endpoint and the owner-scoped
// HWID reset.
type KeyHandler struct {
	engine *services.ValidationService
	logger *slog.Logger
}

// NewKeyHandler creates a new key handler
func NewKeyHandler(engine *services.ValidationService, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		engine: engine,
		logger: logger.With(slog.String("handler", "keys")),
	}
}

// Validate handles POST /v1/keysystems/keys?id=
func (h *KeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	keysystemID := r.URL.Query().Get("id")
	if keysystemID == "" {
		render.Render(w, r, apperrors.BadRequest("Keysystem ID is required").WithElapsed(start))
		return
	}

	var req ValidateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		render.Render(w, r, apperrors.BadRequest("key and hwid must be strings").WithElapsed(start))
		return
	}
	if err := validate.Struct(&req); err != nil {
		render.Render(w, r, apperrors.BadRequest(validationMessage(err)).WithElapsed(start))
		return
	}
	consumerID, err := req.ConsumerID()
	if err != nil {
		render.Render(w, r, apperrors.BadRequest(err.Error()).WithElapsed(start))
		return
	}

	outcome, err := h.engine.ValidateKey(ctx, keysystemID, req.Key, req.HWID, consumerID)
	if err != nil {
		h.renderError(w, r, start, err, "key validation failed")
		return
	}

	h.logger.InfoContext(ctx, "key validated",
		slog.String("keysystem_id", keysystemID),
		slog.String("outcome", string(outcome)),
		slog.String("duration", apperrors.FormatElapsed(start)))

	if outcome == services.OutcomeKeyValid {
		render.JSON(w, r, Response{
			Message:       string(outcome),
			ExecutionTime: apperrors.FormatElapsed(start),
		})
		return
	}

	render.Render(w, r, apperrors.New(http.StatusBadRequest, string(outcome), outcomeMessages[outcome]).WithElapsed(start))
}

// Reset handles PATCH /v1/keysystems/keys/reset?id=
func (h *KeyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	customer := middleware.CustomerFromContext(ctx)
	if customer == nil {
		render.Render(w, r, apperrors.ErrUnauthorized.WithElapsed(start))
		return
	}

	keysystemID := r.URL.Query().Get("id")
	if keysystemID == "" {
		render.Render(w, r, apperrors.BadRequest("Keysystem ID is required").WithElapsed(start))
		return
	}

	var req ResetKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		render.Render(w, r, apperrors.BadRequest("key must be a string").WithElapsed(start))
		return
	}
	if err := validate.Struct(&req); err != nil {
		render.Render(w, r, apperrors.BadRequest("key is required").WithElapsed(start))
		return
	}

	found, err := h.engine.ResetHWID(ctx, keysystemID, req.Key, customer.DiscordID)
	if err != nil {
		h.renderError(w, r, start, err, "hwid reset failed")
		return
	}
	if !found {
		render.Render(w, r, apperrors.NotFound("Key or keysystem").WithElapsed(start))
		return
	}

	h.logger.InfoContext(ctx, "key hwid reset",
		slog.String("keysystem_id", keysystemID),
		slog.String("username", customer.Username),
		slog.String("duration", apperrors.FormatElapsed(start)))

	render.JSON(w, r, Response{
		Message:       "Key HWID reset successfully",
		ExecutionTime: apperrors.FormatElapsed(start),
	})
}

// renderError maps engine errors onto the API taxonomy
func (h *KeyHandler) renderError(w http.ResponseWriter, r *http.Request, start time.Time, err error, msg string) {
	h.logger.ErrorContext(r.Context(), msg,
		slog.String("error", err.Error()),
		slog.String("duration", apperrors.FormatElapsed(start)))

	if apperrors.IsStorage(err) {
		render.Render(w, r, apperrors.ErrServiceUnavailable.WithElapsed(start))
		return
	}
	render.Render(w, r, apperrors.ErrInternalServer.WithElapsed(start))
}

// decodeJSON decodes a request body preserving number precision so large
// numeric consumer identities survive stringification.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// validationMessage flattens a validator error into a caller-correctable
// message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", jsonFieldName(fe.Field()))
		case "max":
			return fmt.Sprintf("%s must be at most %s characters", jsonFieldName(fe.Field()), fe.Param())
		}
	}
	return "invalid request body"
}

func jsonFieldName(field string) string {
	switch field {
	case "Key":
		return "key"
	case "HWID":
		return "hwid"
	case "DiscordID":
		return "discord_id"
	}
	return field
}
