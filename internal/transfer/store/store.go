// Package store persists transfer records.
//
// Error contract:
//   - sentinel.ErrNotFound when the transfer does not exist
//   - sentinel.ErrConflict when a compare-and-set loses: the status is not in
//     the expected set, the mutate callback vetoed, or the id already exists
//   - sentinel.ErrInvalidState when the requested edge is not in the state machine
//   - wrapped errors for infrastructure failures
package store

import (
	"fmt"
	"slices"
	"time"

	"hie-gateway/internal/transfer/models"
	"hie-gateway/pkg/platform/sentinel"
)

// DefaultBatchSize is used by the scans when the caller passes a non-positive batch.
const DefaultBatchSize = 100

// MutateFunc edits a transfer inside a transition. Returning an error aborts
// the write; returning sentinel.ErrConflict signals a stale read.
type MutateFunc func(t *models.Transfer) error

// Option configures both store implementations.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// applyTransition runs the compare-and-set rules against cur and returns the
// record to persist. cur is never modified.
func applyTransition(cur *models.Transfer, from []models.Status, to models.Status, mutate MutateFunc, now time.Time) (*models.Transfer, error) {
	if !slices.Contains(from, cur.Status) {
		return nil, fmt.Errorf("transfer %s is %s: %w", cur.ID, cur.Status, sentinel.ErrConflict)
	}
	if !cur.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("transfer %s cannot move %s -> %s: %w", cur.ID, cur.Status, to, sentinel.ErrInvalidState)
	}

	next := cur.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}

	// Identity, status and version belong to the store.
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.Status = to
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	if next.RetryCount > next.MaxRetries {
		next.RetryCount = next.MaxRetries
	}
	return next, nil
}

func batchOrDefault(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}

// settled reports whether retention cleanup may remove t.
func settled(t *models.Transfer) bool {
	switch t.Status {
	case models.StatusDelivered, models.StatusExpired:
		return true
	case models.StatusFailed:
		return t.Exhausted()
	}
	return false
}
