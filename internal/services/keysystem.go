package services

import (
	"context"
	"log/slog"

	"seraphix/internal/store"
)

// KeysystemService serves owner-scoped keysystem reads
type KeysystemService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewKeysystemService creates a new keysystem service
func NewKeysystemService(s *store.Store, logger *slog.Logger) *KeysystemService {
	return &KeysystemService{
		store:  s,
		logger: logger.With(slog.String("service", "keysystem")),
	}
}

// GetOwned returns the keysystem with the given id if the owner holds it.
// Absence and lack of ownership are indistinguishable: both are (nil, nil).
func (k *KeysystemService) GetOwned(ctx context.Context, ownerID, keysystemID string) (*store.Keysystem, error) {
	systems, err := k.ListOwned(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range systems {
		if systems[i].ID == keysystemID {
			return &systems[i], nil
		}
	}
	return nil, nil
}

// ListOwned returns all keysystems held by the owner
func (k *KeysystemService) ListOwned(ctx context.Context, ownerID string) ([]store.Keysystem, error) {
	return k.store.FindKeysystemsByOwner(ctx, ownerID)
}
