package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/platform/kafka/producer"
)

const (
	DefaultTopic        = "hie.audit"
	DefaultBatchSize    = 100
	DefaultPollInterval = 200 * time.Millisecond
	DefaultRetention    = 7 * 24 * time.Hour

	maintenanceInterval = time.Minute
	drainTimeout        = 10 * time.Second
)

// Worker polls the outbox and publishes pending entries to Kafka.
type Worker struct {
	store        Store
	producer     audit.Producer
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Worker.
type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) {
		if topic != "" {
			w.topic = topic
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithRetention sets how long relayed entries are kept before deletion.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.retention = d
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func New(store Store, prod audit.Producer, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:        store,
		producer:     prod,
		topic:        DefaultTopic,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		retention:    DefaultRetention,
		logger:       slog.Default(),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins polling in a background goroutine.
func (w *Worker) Start() {
	w.wg.Go(w.run)
}

func (w *Worker) run() {
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	maintain := time.NewTicker(maintenanceInterval)
	defer maintain.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-poll.C:
			w.Poll(w.ctx)
		case <-maintain.C:
			w.Maintain(w.ctx)
		}
	}
}

// Poll relays one batch and returns how many entries were published. A
// failed entry stays pending and is retried on the next poll.
func (w *Worker) Poll(ctx context.Context) int {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
		w.metrics.IncPublishFailures()
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	w.metrics.ObserveBatchSize(len(entries))

	published := 0
	for _, entry := range entries {
		if err := w.publish(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID, "action", entry.Action, "error", err)
			w.metrics.IncPublishFailures()
			continue
		}
		// A publish whose mark fails is relayed again; consumers dedupe on outbox_id.
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark outbox entry processed", "id", entry.ID, "error", err)
			continue
		}
		w.metrics.IncPublished()
		published++
	}
	return published
}

func (w *Worker) publish(ctx context.Context, entry *Entry) error {
	start := time.Now()
	err := w.producer.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.Key),
		Value: entry.Payload,
		Headers: map[string]string{
			"action":    entry.Action,
			"outbox_id": entry.ID.String(),
		},
	})
	if err != nil {
		return err
	}
	w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	return nil
}

// Maintain refreshes the pending gauge and deletes relayed entries older
// than the retention window.
func (w *Worker) Maintain(ctx context.Context) {
	if n, err := w.store.CountPending(ctx); err != nil {
		w.logger.WarnContext(ctx, "failed to count pending outbox entries", "error", err)
	} else {
		w.metrics.SetPendingDepth(n)
	}

	n, err := w.store.DeleteProcessedBefore(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.logger.WarnContext(ctx, "failed to purge outbox", "error", err)
		return
	}
	if n > 0 {
		w.metrics.AddPurged(n)
		w.logger.InfoContext(ctx, "purged relayed outbox entries", "deleted", n)
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
			return
		}
	}
}

// Stop cancels polling, relays what it can within the drain timeout and
// waits for the loop to exit or ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
