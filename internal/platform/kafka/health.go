package kafka

import (
	"context"
	"time"
)

// Pinger is satisfied by producer.Producer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check adapts a Pinger into a readiness probe with its own deadline.
func Check(p Pinger, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return p.Ping(ctx)
	}
}
