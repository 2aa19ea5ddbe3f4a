// Package scheduler drives transfers through the delivery state machine.
//
// Every pass is a sequence of compare-and-set transitions: a worker first
// claims a due transfer by pushing its NextActionAt out by a lease, performs
// at most one webhook call, and commits the result only if the record still
// carries the claimed version. Losing either write is a benign skip. No lock
// is held across I/O.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hie-gateway/internal/audit"
	consentmodels "hie-gateway/internal/consent/models"
	"hie-gateway/internal/platform/tracer"
	"hie-gateway/internal/transfer/backoff"
	"hie-gateway/internal/transfer/codec"
	"hie-gateway/internal/transfer/dispatch"
	"hie-gateway/internal/transfer/metrics"
	"hie-gateway/internal/transfer/models"
	"hie-gateway/internal/transfer/store"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
	"hie-gateway/pkg/platform/sentinel"
)

const (
	DefaultInterval        = 5 * time.Second
	DefaultConcurrency     = 8
	DefaultForwardTimeout  = 15 * time.Minute
	DefaultDispatchTimeout = 10 * time.Second
	leaseMargin            = 20 * time.Second
)

type Store interface {
	Get(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	Transition(ctx context.Context, transferID id.TransferID, from []models.Status, to models.Status, mutate store.MutateFunc) (*models.Transfer, error)
	DueForAction(ctx context.Context, now time.Time, batch int) iter.Seq2[id.TransferID, error]
	PastExpiry(ctx context.Context, now time.Time, batch int) iter.Seq2[id.TransferID, error]
}

// ConsentGate reports a consent's current status. Unknown ids must surface
// as a not_found domain error.
type ConsentGate interface {
	GetStatus(ctx context.Context, consentID id.ConsentID) (consentmodels.Status, error)
}

type Decrypter interface {
	Decrypt(blob []byte) (codec.Bundle, error)
}

// Outcome summarizes what one ProcessOne call did.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeForwarded Outcome = "forwarded"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	OutcomeDelivered Outcome = "delivered"
	OutcomeError     Outcome = "error"
)

// TickResult counts the work done by one Tick.
type TickResult struct {
	Expired  int
	Outcomes map[Outcome]int
}

type Scheduler struct {
	store      Store
	consent    ConsentGate
	dispatcher dispatch.Dispatcher
	codec      Decrypter

	metrics *metrics.Metrics
	auditor *audit.Publisher
	tracer  tracer.Tracer
	logger  *slog.Logger
	now     func() time.Time
	bus     KickBus

	interval        time.Duration
	concurrency     int
	batchSize       int
	forwardTimeout  time.Duration
	dispatchTimeout time.Duration
	lease           time.Duration
	backoff         backoff.Policy

	lastTick atomic.Int64

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(st Store, consent ConsentGate, dispatcher dispatch.Dispatcher, dec Decrypter, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:           st,
		consent:         consent,
		dispatcher:      dispatcher,
		codec:           dec,
		tracer:          tracer.NewNoop(),
		logger:          slog.Default(),
		now:             time.Now,
		interval:        DefaultInterval,
		concurrency:     DefaultConcurrency,
		batchSize:       store.DefaultBatchSize,
		forwardTimeout:  DefaultForwardTimeout,
		dispatchTimeout: DefaultDispatchTimeout,
		kick:            make(chan struct{}, 1),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lease <= 0 {
		s.lease = s.dispatchTimeout + leaseMargin
	}
	return s
}

// Start runs the tick loop, and the kick subscriber when a bus is set, until
// Stop.
func (s *Scheduler) Start() {
	s.wg.Go(s.run)
	if s.bus != nil {
		s.wg.Go(func() {
			if err := s.bus.Subscribe(s.ctx, s.wake); err != nil && s.ctx.Err() == nil {
				s.logger.Error("scheduler kick subscription ended", "error", err)
			}
		})
	}
}

// Stop cancels in-flight work and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Kick asks for a tick as soon as possible, here and on every instance
// sharing the kick bus.
func (s *Scheduler) Kick(ctx context.Context) {
	s.wake()
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to publish scheduler kick", "error", err)
	}
}

func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}
		if _, err := s.Tick(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// Tick runs one expiry pass then one due pass. Per-transfer failures are
// recorded on the transfers; only scan failures are returned.
func (s *Scheduler) Tick(ctx context.Context) (res TickResult, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer func() {
		span.SetAttributes(tracer.Int("expired", res.Expired))
		span.End(err)
		s.metrics.ObserveTick(time.Since(started))
	}()

	res.Outcomes = make(map[Outcome]int)
	now := s.now()

	res.Expired, err = s.expirePass(ctx, now)
	s.metrics.AddProcessed("expire", res.Expired)
	if err != nil {
		return res, err
	}

	err = s.duePass(ctx, now, res.Outcomes)
	total := 0
	for _, n := range res.Outcomes {
		total += n
	}
	s.metrics.AddProcessed("due", total)
	if err == nil {
		s.lastTick.Store(time.Now().UnixNano())
	}
	return res, err
}

// LastTick is the wall-clock time the last error-free Tick finished, or the
// zero time before the first one.
func (s *Scheduler) LastTick() time.Time {
	n := s.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *Scheduler) expirePass(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for transferID, err := range s.store.PastExpiry(ctx, now, s.batchSize) {
		if err != nil {
			return expired, fmt.Errorf("scan past expiry: %w", err)
		}
		ok, err := s.expire(ctx, transferID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire transfer", "transfer_id", transferID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// expire moves a non-terminal transfer past its deadline to EXPIRED and
// purges the payload. Expiry wins over any pending retry.
func (s *Scheduler) expire(ctx context.Context, transferID id.TransferID, now time.Time) (bool, error) {
	var from models.Status
	next, err := s.store.Transition(ctx, transferID, models.NonTerminal(), models.StatusExpired, func(t *models.Transfer) error {
		if !t.IsExpired(now) {
			return sentinel.ErrConflict
		}
		from = t.Status
		t.EncryptedPayload = nil
		t.SetError("expired before delivery")
		return nil
	})
	if err != nil {
		if benign(err) {
			return false, nil
		}
		return false, err
	}
	s.record(ctx, from, next, audit.ActionTransferExpired)
	return true, nil
}

func (s *Scheduler) duePass(ctx context.Context, now time.Time, outcomes map[Outcome]int) error {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		scanErr error
	)
	g.SetLimit(s.concurrency)

	for transferID, err := range s.store.DueForAction(ctx, now, s.batchSize) {
		if err != nil {
			scanErr = fmt.Errorf("scan due transfers: %w", err)
			break
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := s.ProcessOne(ctx, transferID)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to process transfer", "transfer_id", transferID, "error", err)
				outcome = OutcomeError
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return scanErr
}

// ProcessOne runs the claim, dispatch and commit path for one transfer. It is
// safe to call concurrently with ticks on any instance. The error is non-nil
// only for storage failures.
func (s *Scheduler) ProcessOne(ctx context.Context, transferID id.TransferID) (outcome Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.process", tracer.String("transfer_id", string(transferID)))
	defer func() {
		span.SetAttributes(tracer.String("outcome", string(outcome)))
		span.End(err)
	}()

	cur, err := s.store.Get(ctx, transferID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return OutcomeSkipped, nil
		}
		return OutcomeError, fmt.Errorf("load transfer: %w", err)
	}

	now := s.now()
	if !cur.IsDue(now) {
		return OutcomeSkipped, nil
	}

	switch cur.Status {
	case models.StatusForwarded, models.StatusProcessing:
		return s.holderTimeout(ctx, cur)
	case models.StatusReady:
		return s.deliver(ctx, cur, now)
	case models.StatusFailed:
		if cur.HasPayload() {
			return s.deliver(ctx, cur, now)
		}
		return s.forward(ctx, cur, now)
	case models.StatusRequested:
		return s.forward(ctx, cur, now)
	}
	return OutcomeSkipped, nil
}

// claim takes a due transfer by pushing NextActionAt out by the lease. A nil
// transfer with nil error means another worker won.
func (s *Scheduler) claim(ctx context.Context, cur *models.Transfer, now time.Time) (*models.Transfer, error) {
	claimed, err := s.store.Transition(ctx, cur.ID, []models.Status{cur.Status}, cur.Status, func(t *models.Transfer) error {
		if t.Version != cur.Version || !t.IsDue(now) {
			return sentinel.ErrConflict
		}
		t.NextActionAt = now.Add(s.lease)
		return nil
	})
	if err != nil {
		if benign(err) {
			s.metrics.IncClaimConflict()
			return nil, nil
		}
		return nil, fmt.Errorf("claim transfer: %w", err)
	}
	return claimed, nil
}

// commit writes a result against the claimed version. A nil transfer with
// nil error means the record moved on (expired, redriven) meanwhile.
func (s *Scheduler) commit(ctx context.Context, base *models.Transfer, to models.Status, action audit.Action, mutate func(t *models.Transfer)) (*models.Transfer, error) {
	next, err := s.store.Transition(ctx, base.ID, []models.Status{base.Status}, to, func(t *models.Transfer) error {
		if t.Version != base.Version {
			return sentinel.ErrConflict
		}
		mutate(t)
		return nil
	})
	if err != nil {
		if benign(err) {
			s.metrics.IncClaimConflict()
			s.logger.DebugContext(ctx, "transfer changed before result write", "transfer_id", base.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("commit %s -> %s: %w", base.Status, to, err)
	}
	s.record(ctx, base.Status, next, action)
	return next, nil
}

func (s *Scheduler) forward(ctx context.Context, cur *models.Transfer, now time.Time) (Outcome, error) {
	claimed, err := s.claim(ctx, cur, now)
	if err != nil || claimed == nil {
		return skippedOr(err)
	}

	status, err := s.consent.GetStatus(ctx, claimed.ConsentID)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return s.failExhausted(ctx, claimed, "consent not found", "consent")
	case err != nil:
		s.logger.WarnContext(ctx, "consent lookup failed, deferring", "transfer_id", claimed.ID, "error", err)
		return s.deferAttempt(ctx, claimed, "consent lookup failed")
	}

	switch status {
	case consentmodels.StatusApproved:
	case consentmodels.StatusPending:
		return s.deferAttempt(ctx, claimed, "consent pending")
	default:
		return s.failExhausted(ctx, claimed, "consent "+string(status), "consent")
	}

	err = s.dispatch(ctx, claimed.SourceID, dispatch.Notification{
		Kind:           dispatch.KindRequest,
		TransferID:     claimed.ID,
		ConsentID:      claimed.ConsentID,
		SubjectID:      claimed.SubjectID,
		CareContextIDs: claimed.CareContextIDs,
		DataTypes:      claimed.DataTypes,
	})
	if err != nil {
		return s.forwardFailed(ctx, claimed, "forward: "+dispatch.Reason(err), audit.ActionForwardFailed, true)
	}

	after := s.now()
	next, err := s.commit(ctx, claimed, models.StatusForwarded, audit.ActionTransferForwarded, func(t *models.Transfer) {
		t.WebhookAttempts++
		t.ForwardAttempts++
		t.NextActionAt = after.Add(s.forwardTimeout)
		t.ClearError()
	})
	if err != nil || next == nil {
		return skippedOr(err)
	}
	return OutcomeForwarded, nil
}

// holderTimeout fails a FORWARDED or PROCESSING transfer whose holder did not
// submit data in time. It is forwarded again later; only expiry ends that.
func (s *Scheduler) holderTimeout(ctx context.Context, cur *models.Transfer) (Outcome, error) {
	outcome, err := s.forwardFailed(ctx, cur, "holder response timeout", audit.ActionHolderTimeout, false)
	if outcome == OutcomeRetry {
		outcome = OutcomeTimedOut
	}
	return outcome, err
}

// forwardFailed parks a transfer FAILED until the holder can be asked again.
// Forwarding trouble never touches RetryCount, which is the delivery budget;
// the backoff grows with ForwardAttempts instead and expiry bounds the loop.
func (s *Scheduler) forwardFailed(ctx context.Context, base *models.Transfer, reason string, action audit.Action, attempted bool) (Outcome, error) {
	now := s.now()
	next, err := s.commit(ctx, base, models.StatusFailed, action, func(t *models.Transfer) {
		if attempted {
			t.WebhookAttempts++
			t.ForwardAttempts++
		}
		t.SetError(reason)
		t.NextActionAt = now.Add(s.backoff.Delay(max(t.ForwardAttempts-1, 0)))
	})
	if err != nil || next == nil {
		return skippedOr(err)
	}
	s.logger.WarnContext(ctx, "forwarding failed, holder will be asked again",
		"transfer_id", next.ID,
		"reason", reason,
		"forward_attempts", next.ForwardAttempts,
		"next_action_at", next.NextActionAt,
	)
	return OutcomeRetry, nil
}

func (s *Scheduler) deliver(ctx context.Context, cur *models.Transfer, now time.Time) (Outcome, error) {
	claimed, err := s.claim(ctx, cur, now)
	if err != nil || claimed == nil {
		return skippedOr(err)
	}

	bundle, err := s.codec.Decrypt(claimed.EncryptedPayload)
	if err != nil {
		s.metrics.IncDecodeFailure()
		s.logger.ErrorContext(ctx, "stored payload cannot be decoded", "transfer_id", claimed.ID, "error", err)
		return s.failExhausted(ctx, claimed, "payload decode failed", "decode")
	}

	err = s.dispatch(ctx, claimed.DestinationID, dispatch.Notification{
		Kind:           dispatch.KindDeliver,
		TransferID:     claimed.ID,
		ConsentID:      claimed.ConsentID,
		SubjectID:      claimed.SubjectID,
		CareContextIDs: claimed.CareContextIDs,
		DataTypes:      claimed.DataTypes,
		Bundle:         &bundle,
	})
	if err != nil {
		return s.retryOrFail(ctx, claimed, failure{
			retryStatus: models.StatusReady,
			reason:      "deliver: " + dispatch.Reason(err),
			cause:       "deliver",
			action:      audit.ActionDeliveryFailed,
		})
	}

	next, err := s.commit(ctx, claimed, models.StatusDelivered, audit.ActionTransferDelivered, func(t *models.Transfer) {
		t.WebhookAttempts++
		t.ClearError()
	})
	if err != nil || next == nil {
		return skippedOr(err)
	}
	return OutcomeDelivered, nil
}

type failure struct {
	retryStatus models.Status
	reason      string
	cause       string
	action      audit.Action
}

// retryOrFail records one failed delivery: RetryCount+1 and a backoff delay.
// When that spends the budget the transfer settles FAILED.
func (s *Scheduler) retryOrFail(ctx context.Context, base *models.Transfer, f failure) (Outcome, error) {
	now := s.now()
	exhausted := base.RetryCount+1 >= base.MaxRetries
	to, action, outcome := f.retryStatus, f.action, OutcomeRetry
	if exhausted {
		to, action, outcome = models.StatusFailed, audit.ActionTransferFailed, OutcomeFailed
	}

	next, err := s.commit(ctx, base, to, action, func(t *models.Transfer) {
		t.RetryCount++
		t.WebhookAttempts++
		t.SetError(f.reason)
		t.NextActionAt = now.Add(s.backoff.Delay(t.RetryCount))
	})
	if err != nil || next == nil {
		return skippedOr(err)
	}

	s.logger.WarnContext(ctx, "transfer attempt failed",
		"transfer_id", next.ID,
		"reason", f.reason,
		"retry_count", next.RetryCount,
		"max_retries", next.MaxRetries,
		"next_action_at", next.NextActionAt,
	)
	if exhausted {
		s.metrics.IncExhausted(f.cause)
	}
	return outcome, nil
}

// failExhausted settles a claimed transfer FAILED with no budget left; used
// for permanent conditions that retrying cannot fix.
func (s *Scheduler) failExhausted(ctx context.Context, claimed *models.Transfer, reason, cause string) (Outcome, error) {
	now := s.now()
	next, err := s.commit(ctx, claimed, models.StatusFailed, audit.ActionTransferFailed, func(t *models.Transfer) {
		t.RetryCount = t.MaxRetries
		t.SetError(reason)
		t.NextActionAt = now
	})
	if err != nil || next == nil {
		return skippedOr(err)
	}
	s.metrics.IncExhausted(cause)
	s.logger.WarnContext(ctx, "transfer failed permanently", "transfer_id", next.ID, "reason", reason)
	return OutcomeFailed, nil
}

// deferAttempt reschedules without spending retry budget.
func (s *Scheduler) deferAttempt(ctx context.Context, claimed *models.Transfer, reason string) (Outcome, error) {
	now := s.now()
	next, err := s.commit(ctx, claimed, claimed.Status, "", func(t *models.Transfer) {
		t.SetError(reason)
		t.NextActionAt = now.Add(s.backoff.Delay(t.RetryCount))
	})
	if err != nil || next == nil {
		return skippedOr(err)
	}
	return OutcomeDeferred, nil
}

func (s *Scheduler) dispatch(ctx context.Context, target id.EntityID, n dispatch.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	started := time.Now()
	err := s.dispatcher.Dispatch(ctx, target, n)
	s.metrics.ObserveDispatch(string(n.Kind), err == nil, time.Since(started))
	return err
}

// record publishes metrics and the audit event for a committed write.
// Self-loops (claims, deferrals) carry no action and are not audited.
func (s *Scheduler) record(ctx context.Context, from models.Status, next *models.Transfer, action audit.Action) {
	s.metrics.IncTransition(string(from), string(next.Status))
	if action == "" {
		return
	}
	event := audit.Event{
		Action:     action,
		TransferID: next.ID,
		ConsentID:  next.ConsentID,
		SubjectID:  next.SubjectID,
		From:       string(from),
		To:         string(next.Status),
		Attempt:    next.WebhookAttempts,
	}
	if next.LastError != nil {
		event.Reason = *next.LastError
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit transfer audit event", "transfer_id", next.ID, "error", err)
	}
}

// benign reports errors that mean another writer got there first.
func benign(err error) bool {
	return errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound)
}

func skippedOr(err error) (Outcome, error) {
	if err != nil {
		return OutcomeError, err
	}
	return OutcomeSkipped, nil
}
