// Package cleanup removes settled transfers once they fall outside the
// retention window.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hie-gateway/internal/transfer/metrics"
)

const (
	DefaultInterval  = time.Hour
	DefaultRetention = 30 * 24 * time.Hour
)

// TransferStore deletes DELIVERED, EXPIRED and exhausted FAILED transfers
// last updated before a cutoff.
type TransferStore interface {
	DeleteSettledBefore(ctx context.Context, before time.Time) (int, error)
}

type Result struct {
	DeletedTransfers int
}

type Service struct {
	transfers TransferStore
	interval  time.Duration
	retention time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithInterval overrides the cleanup interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithRetention sets how long settled transfers are kept.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(transfers TransferStore, opts ...Option) (*Service, error) {
	if transfers == nil {
		return nil, errors.New("transfer store is required")
	}
	svc := &Service{
		transfers: transfers,
		interval:  DefaultInterval,
		retention: DefaultRetention,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "transfer cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce deletes everything settled before now minus the retention window.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.transfers.DeleteSettledBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("delete settled transfers: %w", err)
	}
	s.metrics.AddSettledDeleted(deleted)
	if deleted > 0 {
		s.logger.InfoContext(ctx, "settled transfers removed", "count", deleted, "cutoff", cutoff)
	}
	return Result{DeletedTransfers: deleted}, nil
}
