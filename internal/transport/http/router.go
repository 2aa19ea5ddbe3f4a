// Package httptransport assembles the gateway's HTTP surface.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hie-gateway/internal/platform/metrics"
	"hie-gateway/internal/platform/middleware"
)

// DefaultRequestTimeout bounds a request, including the first synchronous
// forwarding attempt made by a transfer request.
const DefaultRequestTimeout = 30 * time.Second

// Routes is implemented by each domain handler.
type Routes interface {
	Register(r chi.Router)
}

// AdminRoutes is implemented by handlers with operator endpoints.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.HTTP
	Gatherer       prometheus.Gatherer
	AdminToken     string
	RequestTimeout time.Duration
	// RateLimit, when set, guards the public routes.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter wires the public and admin endpoints behind the shared
// middleware stack. Health probes and /metrics skip the request timeout.
func NewRouter(cfg Config, health Routes, public []Routes, admin []AdminRoutes) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger, cfg.Metrics))

	health.Register(r)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.Use(middleware.Timeout(timeout))
		for _, h := range public {
			h.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, cfg.Logger))
		for _, h := range admin {
			h.RegisterAdmin(r)
		}
	})

	return r
}
