// Package app builds the gateway from configuration: stores, services,
// background workers and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/audit/outbox"
	consenthandler "hie-gateway/internal/consent/handler"
	consentmetrics "hie-gateway/internal/consent/metrics"
	consentservice "hie-gateway/internal/consent/service"
	consentstore "hie-gateway/internal/consent/store"
	"hie-gateway/internal/platform/config"
	"hie-gateway/internal/platform/database"
	"hie-gateway/internal/platform/health"
	"hie-gateway/internal/platform/kafka"
	"hie-gateway/internal/platform/kafka/producer"
	"hie-gateway/internal/platform/metrics"
	"hie-gateway/internal/platform/redis"
	"hie-gateway/internal/platform/tracer"
	"hie-gateway/internal/ratelimit"
	subjectservice "hie-gateway/internal/subject/service"
	subjectstore "hie-gateway/internal/subject/store"
	"hie-gateway/internal/transfer/backoff"
	"hie-gateway/internal/transfer/codec"
	"hie-gateway/internal/transfer/dispatch"
	transferhandler "hie-gateway/internal/transfer/handler"
	transfermetrics "hie-gateway/internal/transfer/metrics"
	"hie-gateway/internal/transfer/scheduler"
	transferservice "hie-gateway/internal/transfer/service"
	transferstore "hie-gateway/internal/transfer/store"
	"hie-gateway/internal/transfer/workers/cleanup"
	httptransport "hie-gateway/internal/transport/http"
)

const (
	auditBuffer       = 1024
	healthCheckBudget = 2 * time.Second
	poolStatsInterval = 30 * time.Second
	outboxStopBudget  = 15 * time.Second
	rateLimitPrefix   = "hie:ratelimit:"
)

type App struct {
	Handler   http.Handler
	Scheduler *scheduler.Scheduler
	Transfers *transferservice.Service
	Consents  *consentservice.Service
	Audit     *audit.InMemoryStore

	cleanup *cleanup.Service
	outbox  *outbox.Worker

	limits     *ratelimit.InMemoryStore
	rateWindow time.Duration
	redis      *redis.Client
	logger     *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func() error
}

type options struct {
	dispatcher dispatch.Dispatcher
	registry   *prometheus.Registry
	now        func() time.Time
}

type Option func(*options)

// WithDispatcher replaces the webhook dispatcher built from configuration.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New connects to every configured backend and wires the gateway. Backends
// left unconfigured fall back to in-process implementations. On error any
// connection already opened is closed.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	healthHandler := health.New(cfg.Environment)
	tr := tracer.NewOTel()

	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		healthHandler.RegisterCheck("postgres", pool.Health)
	}

	a.redis, err = redis.New(ctx, cfg.Redis, o.registry)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		a.closers = append(a.closers, a.redis.Close)
		healthHandler.RegisterCheck("redis", a.redis.Health)
	}

	a.Audit = audit.NewInMemoryStore()
	sink := audit.Store(a.Audit)
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), logger)
		if err != nil {
			return nil, fmt.Errorf("create audit producer: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		healthHandler.RegisterCheck("kafka", kafka.Check(p, healthCheckBudget))
		if pool != nil {
			store := outbox.NewPostgres(pool.DB())
			a.outbox = outbox.New(store, p,
				outbox.WithTopic(cfg.Kafka.AuditTopic),
				outbox.WithMetrics(outbox.NewMetrics(o.registry)),
				outbox.WithLogger(logger),
				outbox.WithClock(o.now),
			)
			a.closers = append(a.closers, func() error {
				stopCtx, cancel := context.WithTimeout(context.Background(), outboxStopBudget)
				defer cancel()
				return a.outbox.Stop(stopCtx)
			})
			sink = audit.Fanout(a.Audit, outbox.NewSink(store, o.now))
		} else {
			sink = audit.Fanout(a.Audit, audit.NewKafkaStore(p, cfg.Kafka.AuditTopic))
		}
	}
	auditor := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(auditBuffer),
		audit.WithPublisherLogger(logger),
		audit.WithPublisherClock(o.now),
	)
	a.closers = append(a.closers, func() error { auditor.Close(); return nil })

	var (
		subjects      subjectservice.Store = subjectstore.New()
		consents      consentservice.Store = consentstore.New()
		transferStore transferBackend
	)
	if pool != nil {
		subjects = subjectstore.NewPostgres(pool.DB())
		consents = consentstore.NewPostgres(pool.DB())
		transferStore = transferstore.NewPostgres(pool.DB(), transferstore.WithClock(o.now))
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		transferStore = transferstore.New(transferstore.WithClock(o.now))
	}

	subjectSvc := subjectservice.New(subjects, logger,
		subjectservice.WithAutoCreate(cfg.AutoCreateSubject),
		subjectservice.WithAuditor(auditor),
		subjectservice.WithClock(o.now),
	)
	a.Consents = consentservice.New(consents, subjectSvc, logger,
		consentservice.WithAutoApprove(cfg.AutoApprove),
		consentservice.WithAuditor(auditor),
		consentservice.WithMetrics(consentmetrics.New(o.registry)),
		consentservice.WithClock(o.now),
	)

	payloadCodec, err := codec.New([]byte(cfg.PayloadKey))
	if err != nil {
		return nil, fmt.Errorf("create payload codec: %w", err)
	}

	dispatcher := o.dispatcher
	if dispatcher == nil {
		dispatcher, err = newWebhookDispatcher(cfg, tr, logger)
		if err != nil {
			return nil, err
		}
	}

	tm := transfermetrics.New(o.registry)
	schedOpts := []scheduler.Option{
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithConcurrency(cfg.Scheduler.Concurrency),
		scheduler.WithForwardTimeout(cfg.Transfer.ForwardTimeout),
		scheduler.WithDispatchTimeout(cfg.WebhookTimeout),
		scheduler.WithBackoff(backoff.Policy{Base: cfg.Scheduler.BackoffBase, Cap: cfg.Scheduler.BackoffCap}),
		scheduler.WithClock(o.now),
		scheduler.WithMetrics(tm),
		scheduler.WithAuditor(auditor),
		scheduler.WithTracer(tr),
		scheduler.WithLogger(logger),
	}
	if a.redis != nil {
		schedOpts = append(schedOpts, scheduler.WithKickBus(scheduler.NewRedisKickBus(a.redis.Client, cfg.Redis.KickChannel)))
	}
	a.Scheduler = scheduler.New(transferStore, a.Consents, dispatcher, payloadCodec, schedOpts...)
	healthHandler.RegisterCheck("scheduler", health.Freshness(a.Scheduler.LastTick, schedulerStaleAfter(cfg.Scheduler.Interval)))

	a.Transfers = transferservice.New(transferStore, a.Consents, payloadCodec, a.Scheduler, logger,
		transferservice.WithTTL(cfg.Transfer.TTL),
		transferservice.WithMaxRetries(cfg.Transfer.MaxRetries),
		transferservice.WithClock(o.now),
		transferservice.WithAuditor(auditor),
		transferservice.WithMetrics(tm),
		transferservice.WithTracer(tr),
	)

	a.cleanup, err = cleanup.New(transferStore,
		cleanup.WithRetention(cfg.Retention),
		cleanup.WithMetrics(tm),
		cleanup.WithLogger(logger),
		cleanup.WithClock(o.now),
	)
	if err != nil {
		return nil, err
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Requests > 0 {
		var limits ratelimit.Store
		if a.redis != nil {
			limits = ratelimit.NewRedisStore(a.redis.Client, rateLimitPrefix, o.now)
		} else {
			a.limits = ratelimit.NewInMemoryStore(o.now)
			limits = a.limits
		}
		limiter = ratelimit.NewLimiter(limits, cfg.RateLimit.Requests, cfg.RateLimit.Window,
			ratelimit.NewMetrics(o.registry), logger)
		a.rateWindow = cfg.RateLimit.Window
	}

	transfersHTTP := transferhandler.New(a.Transfers, logger)
	a.Handler = httptransport.NewRouter(httptransport.Config{
		Logger:     logger,
		Metrics:    metrics.NewHTTP(o.registry),
		Gatherer:   o.registry,
		AdminToken: cfg.AdminToken,
		RateLimit:  rateLimitMiddleware(limiter),
	},
		healthHandler,
		[]httptransport.Routes{consenthandler.New(a.Consents, logger), transfersHTTP},
		[]httptransport.AdminRoutes{transfersHTTP},
	)
	return a, nil
}

// schedulerStaleAfter tolerates a few missed ticks, and never less than the
// slowest dispatch a tick can wait on.
func schedulerStaleAfter(interval time.Duration) time.Duration {
	return max(5*interval, time.Minute)
}

func rateLimitMiddleware(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return nil
	}
	return l.Handler
}

// transferBackend is what the scheduler, service and cleanup worker share.
type transferBackend interface {
	scheduler.Store
	transferservice.Store
	cleanup.TransferStore
}

func newWebhookDispatcher(cfg config.Server, tr tracer.Tracer, logger *slog.Logger) (*dispatch.WebhookDispatcher, error) {
	dir, err := dispatch.ParseDirectory(cfg.EntityEndpoints)
	if err != nil {
		return nil, fmt.Errorf("parse entity endpoints: %w", err)
	}
	if len(dir) == 0 {
		logger.Warn("HIE_ENTITY_ENDPOINTS is empty, every webhook will fail")
	}
	signer, err := dispatch.NewSigner([]byte(cfg.WebhookSecret), nil)
	if err != nil {
		return nil, err
	}
	return dispatch.NewWebhookDispatcher(dir, signer,
		dispatch.WithTimeout(cfg.WebhookTimeout),
		dispatch.WithTracer(tr),
		dispatch.WithLogger(logger),
	), nil
}

// Start launches the scheduler and the maintenance loops.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.Scheduler.Start()
	if a.outbox != nil {
		a.outbox.Start()
	}

	a.wg.Go(func() {
		if err := a.cleanup.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("cleanup worker stopped", "error", err)
		}
	})
	if a.limits != nil {
		a.wg.Go(func() {
			ticker := time.NewTicker(a.rateWindow)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.limits.Prune(a.rateWindow)
				}
			}
		})
	}
	if a.redis != nil {
		a.wg.Go(func() {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.redis.RecordPoolStats()
				}
			}
		})
	}
}

// Close stops background work then releases connections in reverse order of
// acquisition. Safe to call on a partially built App.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	a.wg.Wait()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
