// Package backoff computes retry delays for transfer attempts.
//
// The delay after the n-th failure is min(Base*2^n, Cap) with equal jitter:
// half of that ceiling is fixed and the other half is uniformly random, so
// retries are never immediate and never unbounded.
package backoff

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBase = 5 * time.Second
	DefaultCap  = 10 * time.Minute
)

// Policy is an exponential backoff with a cap. The zero value uses the defaults.
type Policy struct {
	Base time.Duration
	Cap  time.Duration

	// Rand returns a value in [0, n). Defaults to math/rand/v2.
	Rand func(n int64) int64
}

// Ceiling returns min(Base*2^n, Cap) without jitter.
func (p Policy) Ceiling(n int) time.Duration {
	base, limit := p.bounds()
	if n < 0 {
		n = 0
	}
	d := base
	for range n {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// Delay returns the jittered delay for retry n, in [Ceiling(n)/2, Ceiling(n)].
func (p Policy) Delay(n int) time.Duration {
	c := p.Ceiling(n)
	half := c / 2
	span := int64(c - half)
	if span <= 0 {
		return c
	}
	r := p.Rand
	if r == nil {
		r = rand.Int64N
	}
	return half + time.Duration(r(span+1))
}

func (p Policy) bounds() (time.Duration, time.Duration) {
	base, limit := p.Base, p.Cap
	if base <= 0 {
		base = DefaultBase
	}
	if limit <= 0 {
		limit = DefaultCap
	}
	if limit < base {
		limit = base
	}
	return base, limit
}
