package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher hands events to a Store, either inline or through a bounded
// buffer drained by one goroutine. Audit failures never fail the caller's
// operation in async mode.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	async  bool
	events chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues events in a buffer of the given size. A full buffer
// drops the event with a warning.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"key", event.Key(),
			)
		}
		cancel()
	}
}

// Emit records an event. A nil Publisher is a no-op.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if !p.async {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("audit publisher closed, event dropped", "action", event.Action, "key", event.Key())
		return nil
	}
	select {
	case p.events <- event:
	default:
		p.logger.Warn("audit buffer full, event dropped", "action", event.Action, "key", event.Key())
	}
	return nil
}

// Close stops accepting events and waits for the buffer to drain.
func (p *Publisher) Close() {
	if p == nil || !p.async {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	p.wg.Wait()
}
