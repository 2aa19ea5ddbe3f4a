package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"hie-gateway/internal/platform/privacy"
	"hie-gateway/pkg/platform/httputil"
)

// Limiter is HTTP middleware admitting at most Limit requests per client
// network per Window.
type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

func NewLimiter(store Store, limit int, window time.Duration, m *Metrics, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, limit: limit, window: window, metrics: m, logger: logger}
}

// Handler fails open: a store error lets the request through.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		client := privacy.ClientNetwork(r.RemoteAddr)

		res, err := l.store.Allow(ctx, client, l.limit, l.window)
		if err != nil {
			l.metrics.incStoreError()
			l.logger.WarnContext(ctx, "rate limit check failed", "client", client, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			l.metrics.incRejected()
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "too many requests, retry later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
