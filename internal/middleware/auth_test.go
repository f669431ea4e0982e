package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seraphix/internal/config"
	"seraphix/internal/store"
)

func newAuthStore(t *testing.T) *store.Store {
	t.Helper()

	cfg := config.DatabaseConfig{
		DSN:            filepath.Join(t.TempDir(), "test.db"),
		ConnectTimeout: 5 * time.Second,
		QueryTimeout:   5 * time.Second,
		MaxOpenConns:   1,
	}
	s, err := store.Open(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveCustomer(context.Background(), &store.Customer{
		Username:  "zenith",
		DiscordID: "owner-1",
		APIToken:  "tok-valid",
	}))
	return s
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator(newAuthStore(t), discardLogger())

	var seen *store.Customer
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CustomerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc123", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer tok-bogus", http.StatusUnauthorized},
		{"valid token", "Bearer tok-valid", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "owner-1", seen.DiscordID)
			} else {
				assert.Nil(t, seen)

				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "unauthorized", body["error"])
			}
		})
	}
}

func TestCustomerFromContext_Unset(t *testing.T) {
	assert.Nil(t, CustomerFromContext(context.Background()))
}
