package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCeiling(t *testing.T) {
	p := Policy{Base: time.Second, Cap: 30 * time.Second}

	tests := []struct {
		n    int
		want time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{62, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Ceiling(tt.n), "n=%d", tt.n)
	}
}

func TestZeroValueUsesDefaults(t *testing.T) {
	var p Policy
	assert.Equal(t, DefaultBase, p.Ceiling(0))
	assert.Equal(t, DefaultCap, p.Ceiling(20))
}

func TestCapBelowBaseClampsToBase(t *testing.T) {
	p := Policy{Base: time.Minute, Cap: time.Second}
	assert.Equal(t, time.Minute, p.Ceiling(3))
}

func TestDelayStaysWithinEqualJitterBand(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Cap: time.Minute}

	for n := range 8 {
		c := p.Ceiling(n)
		for range 50 {
			d := p.Delay(n)
			assert.GreaterOrEqual(t, d, c/2, "n=%d", n)
			assert.LessOrEqual(t, d, c, "n=%d", n)
		}
	}
}

func TestDelayUsesInjectedRand(t *testing.T) {
	low := Policy{Base: 4 * time.Second, Cap: time.Minute, Rand: func(int64) int64 { return 0 }}
	high := Policy{Base: 4 * time.Second, Cap: time.Minute, Rand: func(n int64) int64 { return n - 1 }}

	assert.Equal(t, 2*time.Second, low.Delay(0))
	assert.Equal(t, 4*time.Second, high.Delay(0))
	assert.Equal(t, 30*time.Second, low.Delay(10))
}

func TestDelayIsNeverImmediate(t *testing.T) {
	p := Policy{Base: time.Millisecond, Cap: time.Millisecond, Rand: func(int64) int64 { return 0 }}
	assert.Positive(t, p.Delay(0))
}
