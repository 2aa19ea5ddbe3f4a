package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestInMemoryStoreSlidingWindow(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)}
	store := NewInMemoryStore(c.Now)
	ctx := context.Background()

	for i := range 3 {
		res, err := store.Allow(ctx, "10.0.0.0/24", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		c.now = c.now.Add(10 * time.Second)
	}

	res, err := store.Allow(ctx, "10.0.0.0/24", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryAfter, "oldest request leaves the window at +60s")

	other, err := store.Allow(ctx, "10.0.1.0/24", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	c.now = c.now.Add(31 * time.Second)
	res, err = store.Allow(ctx, "10.0.0.0/24", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemoryStorePrune(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)}
	store := NewInMemoryStore(c.Now)
	_, err := store.Allow(context.Background(), "a", 5, time.Minute)
	require.NoError(t, err)

	assert.Zero(t, store.Prune(time.Minute))
	c.now = c.now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Prune(time.Minute))
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func serve(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/health-information/request", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLimiterRejectsOverLimit(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)}
	m := NewMetrics(prometheus.NewRegistry())
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := NewLimiter(NewInMemoryStore(c.Now), 2, time.Minute, m, nil).Handler(ok)

	assert.Equal(t, http.StatusAccepted, serve(h, "192.0.2.10:5000").Code)
	rec := serve(h, "192.0.2.11:5001")
	assert.Equal(t, http.StatusAccepted, rec.Code, "same /24 shares the window")
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(h, "192.0.2.12:5002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected))

	assert.Equal(t, http.StatusAccepted, serve(h, "198.51.100.7:5000").Code)
}

func TestLimiterFailsOpen(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := NewLimiter(failingStore{}, 1, time.Minute, m, nil).Handler(ok)

	assert.Equal(t, http.StatusOK, serve(h, "192.0.2.10:5000").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors))
}
