package scheduler

import (
	"log/slog"
	"time"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/platform/tracer"
	"hie-gateway/internal/transfer/backoff"
	"hie-gateway/internal/transfer/metrics"
)

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithConcurrency bounds the number of transfers processed at once per tick.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithForwardTimeout sets how long a holder has to submit data after a
// successful request webhook.
func WithForwardTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.forwardTimeout = d
		}
	}
}

// WithDispatchTimeout bounds every webhook call. The claim lease defaults to
// this plus a margin.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

func WithLease(d time.Duration) Option {
	return func(s *Scheduler) {
		s.lease = d
	}
}

func WithBackoff(p backoff.Policy) Option {
	return func(s *Scheduler) {
		s.backoff = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Scheduler) {
		s.auditor = p
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKickBus shares kicks with other instances.
func WithKickBus(bus KickBus) Option {
	return func(s *Scheduler) {
		s.bus = bus
	}
}
