package httptransport

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hie-gateway/internal/platform/health"
	"hie-gateway/internal/platform/metrics"
)

type pingRoutes struct{}

func (pingRoutes) Register(r chi.Router) {
	r.Get("/v1/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func (pingRoutes) RegisterAdmin(r chi.Router) {
	r.Post("/admin/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func newTestRouter(t *testing.T, adminToken string) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRouter(Config{
		Logger:     slog.New(slog.DiscardHandler),
		Metrics:    metrics.NewHTTP(reg),
		Gatherer:   reg,
		AdminToken: adminToken,
	}, health.New("test"), []Routes{pingRoutes{}}, []AdminRoutes{pingRoutes{}})
}

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter(t *testing.T) {
	t.Run("health probes", func(t *testing.T) {
		h := newTestRouter(t, "")
		assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health/live", nil).Code)
		assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health/ready", nil).Code)
	})

	t.Run("metrics record served requests", func(t *testing.T) {
		h := newTestRouter(t, "")
		require.Equal(t, http.StatusNoContent, serve(h, http.MethodGet, "/v1/ping", nil).Code)

		rec := serve(h, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `hie_http_requests_total{code="204",method="GET",route="/v1/ping"} 1`)
	})

	t.Run("admin routes need the token when configured", func(t *testing.T) {
		h := newTestRouter(t, "s3cret")
		assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "/admin/ping", nil).Code)
		assert.Equal(t, http.StatusNoContent, serve(h, http.MethodPost, "/admin/ping", http.Header{"X-Admin-Token": {"s3cret"}}).Code)
		assert.Equal(t, http.StatusNoContent, serve(h, http.MethodGet, "/v1/ping", nil).Code, "public routes stay open")
	})

	t.Run("unknown routes", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(newTestRouter(t, ""), http.MethodGet, "/nope", nil).Code)
	})
}
