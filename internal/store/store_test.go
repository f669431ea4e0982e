package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seraphix/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := config.DatabaseConfig{
		DSN:            filepath.Join(t.TempDir(), "test.db"),
		ConnectTimeout: 5 * time.Second,
		QueryTimeout:   5 * time.Second,
		MaxOpenConns:   1,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strptr(v string) *string { return &v }

func seedCustomer(t *testing.T, s *Store) *Customer {
	t.Helper()

	expired := time.Now().Add(-24 * time.Hour)
	customer := &Customer{
		Username:          "zenith",
		DiscordID:         "111222333",
		APIToken:          "tok-zenith",
		APITokenCreatedAt: time.Now().Add(-48 * time.Hour),
		CreatedAt:         time.Now().Add(-72 * time.Hour),
		Keysystems: KeysystemList{
			{
				ID:             "ks1",
				Name:           "Zenith Hub",
				Active:         true,
				CreatedAt:      time.Now().Add(-72 * time.Hour),
				MaxKeyPerforum: 3,
				KeyTier:        "premium",
				KeyCooldown:    3600,
				MaxKeyLeft:     100,
				WebhookURL:     "https://hooks.example.com/zenith",
				Checkpoints:    []Checkpoint{{Name: "cp1", URL: "https://cp.example.com/1"}},
				Owner:          "111222333",
				Sessions: map[string]*KeySet{
					"sess-a": {Keys: []Key{
						{Value: "ABC", Status: KeyStatusActive},
						{Value: "BOUND", Status: KeyStatusActive, HWID: strptr("HW-EXISTING")},
					}},
					"sess-b": {Keys: []Key{
						{Value: "OLD", Status: KeyStatusActive, ExpiresAt: &expired},
					}},
				},
			},
		},
	}
	require.NoError(t, s.SaveCustomer(context.Background(), customer))
	return customer
}

func TestFindCustomerByToken(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	customer, err := s.FindCustomerByToken(ctx, "tok-zenith")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "zenith", customer.Username)
	assert.Equal(t, "111222333", customer.DiscordID)

	missing, err := s.FindCustomerByToken(ctx, "tok-nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindKeysystemsByOwner(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	systems, err := s.FindKeysystemsByOwner(ctx, "111222333")
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "ks1", systems[0].ID)

	// absent owner is an empty result, never an error
	none, err := s.FindKeysystemsByOwner(ctx, "999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindKeysystemByID(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	ks, err := s.FindKeysystemByID(ctx, "ks1")
	require.NoError(t, err)
	require.NotNil(t, ks)
	assert.Equal(t, "Zenith Hub", ks.Name)
	assert.Len(t, ks.Sessions, 2)

	absent, err := s.FindKeysystemByID(ctx, "ks-missing")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestBindKeyHWID_FirstUse(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	result, err := s.BindKeyHWID(ctx, "ks1", "ABC", "HW-1", strptr("consumer-1"))
	require.NoError(t, err)
	assert.True(t, result.Bound)
	assert.Equal(t, "HW-1", result.HWID)

	ks, err := s.FindKeysystemByID(ctx, "ks1")
	require.NoError(t, err)
	key := ks.FindKey("ABC")
	require.NotNil(t, key)
	require.NotNil(t, key.HWID)
	assert.Equal(t, "HW-1", *key.HWID)
	require.NotNil(t, key.OwnerID)
	assert.Equal(t, "consumer-1", *key.OwnerID)

	// sibling keys in other sessions are untouched
	assert.Nil(t, ks.FindKey("OLD").HWID)
}

func TestBindKeyHWID_FirstCommitterWins(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	first, err := s.BindKeyHWID(ctx, "ks1", "ABC", "HW-1", nil)
	require.NoError(t, err)
	assert.True(t, first.Bound)

	second, err := s.BindKeyHWID(ctx, "ks1", "ABC", "HW-2", nil)
	require.NoError(t, err)
	assert.False(t, second.Bound)
	assert.Equal(t, "HW-1", second.HWID)

	ks, err := s.FindKeysystemByID(ctx, "ks1")
	require.NoError(t, err)
	assert.Equal(t, "HW-1", *ks.FindKey("ABC").HWID)
}

func TestBindKeyHWID_ConcurrentFirstUse(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	const attempts = 8
	results := make([]BindResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.BindKeyHWID(ctx, "ks1", "ABC", fmt.Sprintf("HW-%d", i), nil)
		}(i)
	}
	wg.Wait()

	// exactly one committer; every loser observes the winner's hwid
	committed := 0
	var winner string
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		if results[i].Bound {
			committed++
			winner = results[i].HWID
		}
	}
	require.Equal(t, 1, committed)

	for i := 0; i < attempts; i++ {
		assert.Equal(t, winner, results[i].HWID)
	}

	ks, err := s.FindKeysystemByID(ctx, "ks1")
	require.NoError(t, err)
	assert.Equal(t, winner, *ks.FindKey("ABC").HWID)
}

func TestBindKeyHWID_MissingTargets(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	_, err := s.BindKeyHWID(ctx, "ks-missing", "ABC", "HW-1", nil)
	assert.Error(t, err)

	_, err = s.BindKeyHWID(ctx, "ks1", "NOPE", "HW-1", nil)
	assert.Error(t, err)
}

func TestResetKeyHWID(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	found, err := s.ResetKeyHWID(ctx, "ks1", "BOUND")
	require.NoError(t, err)
	assert.True(t, found)

	ks, err := s.FindKeysystemByID(ctx, "ks1")
	require.NoError(t, err)
	assert.Nil(t, ks.FindKey("BOUND").HWID)

	missing, err := s.ResetKeyHWID(ctx, "ks1", "NOPE")
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestUpdateKeyConsumer(t *testing.T) {
	s := newTestStore(t)
	seedCustomer(t, s)
	ctx := context.Background()

	require.NoError(t, s.UpdateKeyConsumer(ctx, "ks1", "BOUND", "consumer-9"))

	ks, err := s.FindKeysystemByID(ctx, "ks1")
	require.NoError(t, err)
	key := ks.FindKey("BOUND")
	require.NotNil(t, key.OwnerID)
	assert.Equal(t, "consumer-9", *key.OwnerID)
	// binding is untouched
	require.NotNil(t, key.HWID)
	assert.Equal(t, "HW-EXISTING", *key.HWID)
}

func TestFindKey_ScanOrder(t *testing.T) {
	// duplicate key values across sessions resolve to the lexicographically
	// first session id
	ks := &Keysystem{
		Sessions: map[string]*KeySet{
			"sess-b": {Keys: []Key{{Value: "DUP", Status: "inactive"}}},
			"sess-a": {Keys: []Key{{Value: "DUP", Status: KeyStatusActive}}},
		},
	}

	key := ks.FindKey("DUP")
	require.NotNil(t, key)
	assert.Equal(t, KeyStatusActive, key.Status)
	assert.Nil(t, ks.FindKey("MISSING"))
}
