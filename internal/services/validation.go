package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "seraphix/internal/errors"
	"seraphix/internal/infrastructure"
	"seraphix/internal/store"
)

// Outcome classifies a validation attempt. States are not persisted; each
// call derives the outcome from the key's current fields. The HWID binding
// is the only durable transition the engine performs.
type Outcome string

const (
	OutcomeKeyValid      Outcome = "KEY_VALID"
	OutcomeKeyInvalid    Outcome = "KEY_INVALID"
	OutcomeKeyExpired    Outcome = "KEY_EXPIRED"
	OutcomeKeyHWIDLocked Outcome = "KEY_HWID_LOCKED"
)

// ValidationService is the key validation engine: it classifies a
// (keysystem, key, hwid) triple and performs at most one binding mutation.
type ValidationService struct {
	store  *store.Store
	logger *slog.Logger

	// now is injectable for expiry tests
	now func() time.Time
}

// NewValidationService creates the validation engine
func NewValidationService(s *store.Store, logger *slog.Logger) *ValidationService {
	return &ValidationService{
		store:  s,
		logger: logger.With(slog.String("service", "validation")),
		now:    time.Now,
	}
}

// ValidateKey runs the validation state machine:
//
//	unknown keysystem or key        -> KEY_INVALID
//	status != "active" or past expiry -> KEY_EXPIRED
//	no HWID bound                    -> bind now, KEY_VALID
//	bound to a different HWID        -> KEY_HWID_LOCKED
//	bound to the same HWID           -> KEY_VALID
//
// The engine holds no lock; two concurrent first uses race to the store's
// conditional bind and the first committer wins. The loser's outcome is
// re-derived from the winning HWID.
func (v *ValidationService) ValidateKey(ctx context.Context, keysystemID, keyValue, hwid string, consumerID *string) (Outcome, error) {
	ks, err := v.store.FindKeysystemByID(ctx, keysystemID)
	if err != nil {
		return "", err
	}
	if ks == nil {
		return OutcomeKeyInvalid, nil
	}

	key := ks.FindKey(keyValue)
	if key == nil {
		return OutcomeKeyInvalid, nil
	}

	// status and timestamp expiry gate independently
	if key.Status != store.KeyStatusActive {
		return OutcomeKeyExpired, nil
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(v.now()) {
		return OutcomeKeyExpired, nil
	}

	if !key.HasHWID() {
		result, err := v.store.BindKeyHWID(ctx, keysystemID, keyValue, hwid, consumerID)
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Type == apperrors.ErrTypeNotFound {
				return OutcomeKeyInvalid, nil
			}
			return "", err
		}
		if result.Bound {
			v.logger.InfoContext(ctx, "key bound to hwid",
				slog.String("keysystem_id", keysystemID),
				slog.String("hwid", hwid))
			return OutcomeKeyValid, nil
		}
		// lost the first-use race; classify against the committed HWID
		if result.HWID == hwid {
			return OutcomeKeyValid, nil
		}
		return OutcomeKeyHWIDLocked, nil
	}

	if *key.HWID != hwid {
		return OutcomeKeyHWIDLocked, nil
	}

	// same device; refresh the consumer identity off the request path
	if consumerID != nil && (key.OwnerID == nil || *key.OwnerID != *consumerID) {
		v.updateConsumerAsync(ctx, keysystemID, keyValue, *consumerID)
	}
	return OutcomeKeyValid, nil
}

// updateConsumerAsync performs the step-7 consumer identity update as a
// non-blocking side effect; failures are logged, never surfaced.
func (v *ValidationService) updateConsumerAsync(ctx context.Context, keysystemID, keyValue, consumerID string) {
	// detached from the request but keeps (or gets) a trace id for the logs
	bg := infrastructure.EnsureTraceID(context.WithoutCancel(ctx))
	go func() {
		updateCtx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		if err := v.store.UpdateKeyConsumer(updateCtx, keysystemID, keyValue, consumerID); err != nil {
			v.logger.WarnContext(updateCtx, "consumer identity update failed",
				slog.String("keysystem_id", keysystemID),
				slog.String("error", err.Error()))
		}
	}()
}

// ResetHWID clears the binding on a key, owner-gated. The requesting
// identity must own the target keysystem; an unowned or absent keysystem
// reports not-found without distinguishing the two. Expired keys may be
// reset.
func (v *ValidationService) ResetHWID(ctx context.Context, keysystemID, keyValue, ownerID string) (bool, error) {
	systems, err := v.store.FindKeysystemsByOwner(ctx, ownerID)
	if err != nil {
		return false, err
	}

	owned := false
	for i := range systems {
		if systems[i].ID == keysystemID {
			owned = true
			break
		}
	}
	if !owned {
		return false, nil
	}

	found, err := v.store.ResetKeyHWID(ctx, keysystemID, keyValue)
	if err != nil {
		return false, err
	}
	if found {
		v.logger.InfoContext(ctx, "key hwid reset",
			slog.String("keysystem_id", keysystemID),
			slog.String("owner_id", ownerID))
	}
	return found, nil
}
