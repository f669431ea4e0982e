package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"

	apperrors "seraphix/internal/errors"
)

// FixedWindowLimiter bounds request rate per client address using a fixed
// 1-second window counter. Window entries are evicted a fixed delay after
// creation, independent of further traffic; this is a best-effort expiry
// that tolerates slight over-admission at window boundaries, not a sliding
// window. For multi-instance deployments the counters would move to a
// shared store.
type FixedWindowLimiter struct {
	mu     sync.Mutex
	counts map[string]int

	limit      int
	evictAfter time.Duration
	logger     *slog.Logger

	// now is injectable for window tests
	now func() time.Time
}

// NewFixedWindowLimiter creates a per-client fixed-window rate limiter
// admitting limit requests per rounded 1-second window.
func NewFixedWindowLimiter(limit int, evictAfter time.Duration, logger *slog.Logger) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		counts:     make(map[string]int),
		limit:      limit,
		evictAfter: evictAfter,
		logger:     logger.With(slog.String("middleware", "ratelimit")),
		now:        time.Now,
	}
}

// Allow increments the counter for the client's current window and reports
// whether the request is admitted. Exactly limit requests are admitted per
// client per window.
func (l *FixedWindowLimiter) Allow(clientAddr string) bool {
	windowStart := l.now().Truncate(time.Second)
	key := fmt.Sprintf("%s:%d", clientAddr, windowStart.Unix())

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.counts[key]
	if current >= l.limit {
		return false
	}

	if current == 0 {
		// evict on a timer rather than on traffic; entries die evictAfter
		// past window creation no matter what
		time.AfterFunc(l.evictAfter, func() {
			l.mu.Lock()
			delete(l.counts, key)
			l.mu.Unlock()
		})
	}
	l.counts[key] = current + 1
	return true
}

// Handler rejects over-limit requests with 429 rate_limit_exceeded
func (l *FixedWindowLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if !l.Allow(clientAddress(r)) {
			l.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			render.Render(w, r, apperrors.ErrRateLimitExceeded.WithElapsed(start))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientAddress extracts the client network address without the port
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
