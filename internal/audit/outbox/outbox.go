// Package outbox makes the Kafka audit trail durable: events are written to
// a PostgreSQL table and a worker relays them to the broker, so a Kafka
// outage delays the audit trail instead of dropping it.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hie-gateway/internal/audit"
)

// Entry is one pending or relayed audit event.
type Entry struct {
	ID          uuid.UUID
	Key         string // aggregate id, used as the Kafka record key
	Action      string
	Payload     []byte // JSON-encoded audit.Event
	CreatedAt   time.Time
	ProcessedAt *time.Time // nil until relayed
}

func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// Store persists outbox entries. Implementations must be safe for
// concurrent use by several workers.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Sink adapts a Store to audit.Store.
type Sink struct {
	store Store
	now   func() time.Time
}

func NewSink(store Store, now func() time.Time) *Sink {
	if now == nil {
		now = time.Now
	}
	return &Sink{store: store, now: now}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.store.Append(ctx, &Entry{
		ID:        uuid.New(),
		Key:       event.Key(),
		Action:    string(event.Action),
		Payload:   payload,
		CreatedAt: s.now(),
	})
}

var _ audit.Store = (*Sink)(nil)
