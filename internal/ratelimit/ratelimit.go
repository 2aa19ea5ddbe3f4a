// Package ratelimit caps how often one client network may call the public
// API, using a sliding window kept in memory or in Redis.
package ratelimit

import (
	"context"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store records requests per key and decides admission.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

func retryAfter(allowed bool, resetAt, now time.Time) time.Duration {
	if allowed {
		return 0
	}
	return max(resetAt.Sub(now), 0)
}
