package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"hie-gateway/internal/platform/tracer"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/circuit"
)

const (
	DefaultTimeout = 10 * time.Second

	// TransferIDHeader lets receivers dedupe without parsing the body.
	TransferIDHeader = "X-Transfer-ID"
	// EventHeader carries the notification kind.
	EventHeader = "X-HIE-Event"

	reasonCircuitOpen = "circuit open"
)

// WebhookDispatcher posts notifications as JSON to each entity's endpoint.
// Paths are "<base>/webhooks/<event>".
type WebhookDispatcher struct {
	client    *resty.Client
	directory Directory
	signer    *Signer
	tracer    tracer.Tracer
	logger    *slog.Logger
	timeout   time.Duration

	breakerOpts []circuit.Option
	mu          sync.Mutex
	breakers    map[id.EntityID]*circuit.Breaker
}

// Option configures a WebhookDispatcher.
type Option func(*WebhookDispatcher)

// WithTimeout sets the hard per-call timeout. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(w *WebhookDispatcher) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(w *WebhookDispatcher) {
		if t != nil {
			w.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *WebhookDispatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithBreakerOptions configures the per-entity circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(w *WebhookDispatcher) {
		w.breakerOpts = append(w.breakerOpts, opts...)
	}
}

// NewWebhookDispatcher creates a dispatcher for the entities in dir.
func NewWebhookDispatcher(dir Directory, signer *Signer, opts ...Option) *WebhookDispatcher {
	w := &WebhookDispatcher{
		directory: dir,
		signer:    signer,
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
		timeout:   DefaultTimeout,
		breakers:  make(map[id.EntityID]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.client = resty.New().
		SetTimeout(w.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "hie-gateway/1")
	return w
}

// Dispatch makes one attempt. Any non-2xx status, transport error, timeout,
// unknown entity or open circuit is returned as *Error.
func (w *WebhookDispatcher) Dispatch(ctx context.Context, target id.EntityID, n Notification) (err error) {
	ctx, span := w.tracer.Start(ctx, "webhook.dispatch",
		tracer.String("event", string(n.Kind)),
		tracer.String("target", string(target)),
		tracer.String("transfer_id", string(n.TransferID)),
		tracer.String("subject_hash", tracer.HashSubject(string(n.SubjectID))),
	)
	defer func() { span.End(err) }()

	base, ok := w.directory.Resolve(target)
	if !ok {
		return &Error{Target: target, Reason: "no endpoint configured"}
	}

	breaker := w.breaker(target)
	if !breaker.Allow() {
		return &Error{Target: target, Reason: reasonCircuitOpen}
	}

	token, err := w.signer.Sign(target, n.TransferID)
	if err != nil {
		return &Error{Target: target, Reason: "sign token", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader(TransferIDHeader, string(n.TransferID)).
		SetHeader(EventHeader, string(n.Kind)).
		SetBody(n).
		Post(base + "/webhooks/" + string(n.Kind))
	if err != nil {
		w.recordFailure(breaker, target)
		reason := "transport error"
		if isTimeout(err) {
			reason = "timeout"
		}
		return &Error{Target: target, Reason: reason, Err: err}
	}

	span.SetAttributes(tracer.Int("http.status_code", resp.StatusCode()))
	if !resp.IsSuccess() {
		w.recordFailure(breaker, target)
		return &Error{Target: target, Reason: "non-success response", StatusCode: resp.StatusCode()}
	}

	if change := breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "webhook circuit closed", "target", target)
	}
	return nil
}

func (w *WebhookDispatcher) recordFailure(b *circuit.Breaker, target id.EntityID) {
	if change := b.RecordFailure(); change.Opened {
		w.logger.Warn("webhook circuit opened", "target", target)
	}
}

func (w *WebhookDispatcher) breaker(target id.EntityID) *circuit.Breaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.breakers[target]
	if !ok {
		b = circuit.New(string(target), w.breakerOpts...)
		w.breakers[target] = b
	}
	return b
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ Dispatcher = (*WebhookDispatcher)(nil)
