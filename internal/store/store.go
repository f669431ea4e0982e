package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"seraphix/internal/config"
	apperrors "seraphix/internal/errors"
	"seraphix/internal/infrastructure"
)

// Store is the persistence gateway over the customer document store. It is
// an explicitly constructed, injected dependency; there is no package-level
// handle.
type Store struct {
	db           *gorm.DB
	logger       *slog.Logger
	queryTimeout time.Duration
}

// BindResult reports the outcome of a conditional HWID bind
type BindResult struct {
	// Bound is true when this call committed the binding
	Bound bool
	// HWID is the hardware id stored after the call, whether or not this
	// call committed it
	HWID string
}

// Open connects to the customer store or fails fast. The connectivity probe
// is bounded by cfg.ConnectTimeout; a store that cannot be reached at
// startup is fatal for the process.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open customer store", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.NewStorageError("failed to access connection pool", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, apperrors.NewStorageError("customer store not reachable", err)
	}

	if err := db.AutoMigrate(&Customer{}); err != nil {
		return nil, apperrors.NewStorageError("failed to migrate customer store", err)
	}

	logger.Info("customer store connected", slog.String("dsn", cfg.DSN))

	return &Store{
		db:           db,
		logger:       infrastructure.WithComponent(logger, "store"),
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withTimeout bounds a gateway operation so a wedged store surfaces as an
// error instead of a hung request.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// FindCustomerByToken resolves an API token to a customer. Returns
// (nil, nil) when no customer holds the token.
func (s *Store) FindCustomerByToken(ctx context.Context, token string) (*Customer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var customer Customer
	err := s.db.WithContext(ctx).Where("api_token = ?", token).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("customer lookup by token failed", err)
	}
	return &customer, nil
}

// FindKeysystemsByOwner returns the owner's keysystems. An absent owner is
// not an error; the result is simply empty.
func (s *Store) FindKeysystemsByOwner(ctx context.Context, ownerID string) ([]Keysystem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var customer Customer
	err := s.db.WithContext(ctx).Where("discord_id = ?", ownerID).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []Keysystem{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("keysystem lookup by owner failed", err)
	}
	if customer.Keysystems == nil {
		return []Keysystem{}, nil
	}
	return customer.Keysystems, nil
}

// FindKeysystemByID scans all customer documents for the keysystem with the
// matching identifier. Absence is a valid (nil, nil) result, not an error.
func (s *Store) FindKeysystemByID(ctx context.Context, keysystemID string) (*Keysystem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var found *Keysystem
	var customers []Customer
	err := s.db.WithContext(ctx).FindInBatches(&customers, 100, func(tx *gorm.DB, batch int) error {
		for i := range customers {
			for j := range customers[i].Keysystems {
				if customers[i].Keysystems[j].ID == keysystemID {
					ks := customers[i].Keysystems[j]
					found = &ks
					return errStopIteration
				}
			}
		}
		return nil
	}).Error
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, apperrors.NewStorageError("keysystem scan failed", err)
	}
	return found, nil
}

// errStopIteration short-circuits a batch scan once a match is found
var errStopIteration = fmt.Errorf("stop iteration")

// BindKeyHWID sets the HWID on the targeted key, but only if the key is
// currently unbound. The check and write run in one transaction, so the
// race between two concurrent first uses resolves first-committer-wins:
// the loser observes Bound=false and the winner's HWID.
func (s *Store) BindKeyHWID(ctx context.Context, keysystemID, keyValue, hwid string, consumerID *string) (BindResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result BindResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, key, err := s.locateKey(tx, keysystemID, keyValue)
		if err != nil {
			return err
		}
		if key.HasHWID() {
			result = BindResult{Bound: false, HWID: *key.HWID}
			return nil
		}
		key.HWID = &hwid
		if consumerID != nil {
			key.OwnerID = consumerID
		}
		result = BindResult{Bound: true, HWID: hwid}
		return s.saveDocument(tx, customer)
	})
	if err != nil {
		return BindResult{}, err
	}
	return result, nil
}

// UpdateKeyConsumer sets the consuming end-user identity on the targeted
// key without touching its binding.
func (s *Store) UpdateKeyConsumer(ctx context.Context, keysystemID, keyValue, consumerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, key, err := s.locateKey(tx, keysystemID, keyValue)
		if err != nil {
			return err
		}
		key.OwnerID = &consumerID
		return s.saveDocument(tx, customer)
	})
}

// ResetKeyHWID clears the binding on the targeted key. Returns false when
// the keysystem or key does not exist.
func (s *Store) ResetKeyHWID(ctx context.Context, keysystemID, keyValue string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, key, err := s.locateKey(tx, keysystemID, keyValue)
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Type == apperrors.ErrTypeNotFound {
				return nil
			}
			return err
		}
		found = true
		key.HWID = nil
		return s.saveDocument(tx, customer)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// SaveCustomer inserts or updates a full customer document. Customers are
// provisioned out-of-band; this exists for seeding and tests.
func (s *Store) SaveCustomer(ctx context.Context, customer *Customer) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Save(customer).Error; err != nil {
		return apperrors.NewStorageError("customer save failed", err)
	}
	return nil
}

// locateKey finds, inside tx, the customer document containing the target
// keysystem and returns a mutable pointer to the first key matching
// keyValue in the documented scan order. Exactly one key is ever targeted.
func (s *Store) locateKey(tx *gorm.DB, keysystemID, keyValue string) (*Customer, *Key, error) {
	var customers []Customer
	if err := tx.Find(&customers).Error; err != nil {
		return nil, nil, apperrors.NewStorageError("customer scan failed", err)
	}
	for i := range customers {
		for j := range customers[i].Keysystems {
			if customers[i].Keysystems[j].ID != keysystemID {
				continue
			}
			key := customers[i].Keysystems[j].FindKey(keyValue)
			if key == nil {
				return nil, nil, apperrors.NewNotFoundError("key")
			}
			return &customers[i], key, nil
		}
	}
	return nil, nil, apperrors.NewNotFoundError("keysystem")
}

// saveDocument persists the mutated document for one customer row. Save goes
// through the model so the keysystems column runs the JSON serializer; a raw
// column update would try to bind the struct as a SQL argument.
func (s *Store) saveDocument(tx *gorm.DB, customer *Customer) error {
	if err := tx.Save(customer).Error; err != nil {
		return apperrors.NewStorageError("keysystem document update failed", err)
	}
	return nil
}
