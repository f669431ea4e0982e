package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	apperrors "seraphix/internal/errors"
	"seraphix/internal/store"
)

type contextKey string

// customerContextKey carries the authenticated customer through the request
const customerContextKey contextKey = "customer"

// Authenticator resolves bearer credentials against the customer store and
// gates owner-scoped endpoints. The public key-validation endpoint does not
// use it; keys are validated by end-users, not owners.
type Authenticator struct {
	store  *store.Store
	logger *slog.Logger
}

// NewAuthenticator creates the bearer-token authenticator
func NewAuthenticator(s *store.Store, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		store:  s,
		logger: logger.With(slog.String("middleware", "auth")),
	}
}

// Handler rejects requests without a valid bearer token and attaches the
// resolved customer to the request context.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			render.Render(w, r, apperrors.ErrUnauthorized.WithElapsed(start))
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			render.Render(w, r, apperrors.New(http.StatusUnauthorized, "unauthorized", "Invalid token format").WithElapsed(start))
			return
		}

		customer, err := a.store.FindCustomerByToken(ctx, token)
		if err != nil {
			a.logger.ErrorContext(ctx, "auth lookup failed",
				slog.String("error", err.Error()),
				slog.String("duration", apperrors.FormatElapsed(start)))
			if apperrors.IsStorage(err) {
				render.Render(w, r, apperrors.ErrServiceUnavailable.WithElapsed(start))
			} else {
				render.Render(w, r, apperrors.New(http.StatusInternalServerError, "internal_server_error", "Authentication service unavailable").WithElapsed(start))
			}
			return
		}
		if customer == nil {
			render.Render(w, r, apperrors.ErrInvalidToken.WithElapsed(start))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCustomer(ctx, customer)))
	})
}

// WithCustomer attaches the authenticated customer to the context
func WithCustomer(ctx context.Context, customer *store.Customer) context.Context {
	return context.WithValue(ctx, customerContextKey, customer)
}

// CustomerFromContext returns the authenticated customer, or nil when the
// request did not pass the authenticator.
func CustomerFromContext(ctx context.Context) *store.Customer {
	customer, _ := ctx.Value(customerContextKey).(*store.Customer)
	return customer
}
