package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps one sliding window per key. Windows are per process;
// use RedisStore when several gateways share a limit.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
}

func (sw *slidingWindow) tryConsume(limit int, window time.Duration, now time.Time) (bool, int, time.Time) {
	sw.dropBefore(now.Add(-window))
	if len(sw.timestamps) >= limit {
		return false, 0, sw.timestamps[0].Add(window)
	}
	sw.timestamps = append(sw.timestamps, now)
	return true, limit - len(sw.timestamps), sw.timestamps[0].Add(window)
}

func (sw *slidingWindow) dropBefore(cutoff time.Time) {
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

func NewInMemoryStore(now func() time.Time) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{windows: make(map[string]*slidingWindow), now: now}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sw, ok := s.windows[key]
	if !ok {
		sw = &slidingWindow{}
		s.windows[key] = sw
	}
	allowed, remaining, resetAt := sw.tryConsume(limit, window, now)
	return Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter(allowed, resetAt, now),
	}, nil
}

// Prune forgets keys with no requests inside window.
func (s *InMemoryStore) Prune(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	pruned := 0
	for key, sw := range s.windows {
		sw.dropBefore(cutoff)
		if len(sw.timestamps) == 0 {
			delete(s.windows, key)
			pruned++
		}
	}
	return pruned
}

var _ Store = (*InMemoryStore)(nil)
