// Package service implements the transfer operations exposed over HTTP and
// the operations CLI: request, holder acknowledgement, payload receipt,
// status and redrive. Delivery itself is the scheduler's job.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hie-gateway/internal/audit"
	consentmodels "hie-gateway/internal/consent/models"
	"hie-gateway/internal/platform/tracer"
	"hie-gateway/internal/transfer/codec"
	"hie-gateway/internal/transfer/metrics"
	"hie-gateway/internal/transfer/models"
	"hie-gateway/internal/transfer/scheduler"
	"hie-gateway/internal/transfer/store"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
	"hie-gateway/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ConsentResolver,Processor

type Store interface {
	Create(ctx context.Context, t *models.Transfer) error
	Get(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	Transition(ctx context.Context, transferID id.TransferID, from []models.Status, to models.Status, mutate store.MutateFunc) (*models.Transfer, error)
}

// ConsentResolver finds or creates the consent a new transfer is gated on.
type ConsentResolver interface {
	EnsureForTransfer(ctx context.Context, consentID id.ConsentID, subjectID id.SubjectID, holderID id.EntityID) (*consentmodels.Request, error)
}

type Encrypter interface {
	Encrypt(b codec.Bundle) ([]byte, error)
}

// Processor is the part of the scheduler the service drives directly.
type Processor interface {
	ProcessOne(ctx context.Context, transferID id.TransferID) (scheduler.Outcome, error)
	Kick(ctx context.Context)
}

// RequestParams is a requester's ask for a subject's health data held by
// HolderID.
type RequestParams struct {
	SubjectID      id.SubjectID
	HolderID       id.EntityID
	RequesterID    id.EntityID
	ConsentID      id.ConsentID
	CareContextIDs []string
	DataTypes      []string
}

type RequestResult struct {
	Transfer *models.Transfer
	Message  string
}

type Service struct {
	store      Store
	consents   ConsentResolver
	codec      Encrypter
	processor  Processor
	logger     *slog.Logger
	auditor    *audit.Publisher
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	now        func() time.Time
	ttl        time.Duration
	maxRetries int
}

type Option func(*Service)

// WithTTL sets how long a new transfer may take end to end.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.ttl = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(st Store, consents ConsentResolver, enc Encrypter, processor Processor, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      st,
		consents:   consents,
		codec:      enc,
		processor:  processor,
		logger:     logger,
		tracer:     tracer.NewNoop(),
		now:        time.Now,
		ttl:        models.DefaultTTL,
		maxRetries: models.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request records a new transfer and makes the first forwarding attempt
// before returning. A failed first attempt is not an error: the transfer is
// persisted and the scheduler retries it.
func (s *Service) Request(ctx context.Context, p RequestParams) (_ *RequestResult, err error) {
	ctx, span := s.tracer.Start(ctx, "transfer.request",
		tracer.String("subject_hash", tracer.HashSubject(string(p.SubjectID))),
		tracer.String("holder_id", string(p.HolderID)),
	)
	defer func() { span.End(err) }()

	consent, err := s.consents.EnsureForTransfer(ctx, p.ConsentID, p.SubjectID, p.HolderID)
	if err != nil {
		return nil, err
	}

	t, err := models.NewTransfer(models.NewTransferParams{
		ID:             id.NewTransferID(),
		ConsentID:      consent.ID,
		SubjectID:      p.SubjectID,
		SourceID:       p.HolderID,
		DestinationID:  p.RequesterID,
		CareContextIDs: p.CareContextIDs,
		DataTypes:      p.DataTypes,
		MaxRetries:     s.maxRetries,
		TTL:            s.ttl,
		Now:            s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save transfer")
	}
	span.SetAttributes(tracer.String("transfer_id", string(t.ID)))

	s.metrics.IncCreated()
	s.emit(ctx, audit.Event{
		Action:     audit.ActionTransferCreated,
		TransferID: t.ID,
		ConsentID:  t.ConsentID,
		SubjectID:  t.SubjectID,
		EntityID:   t.SourceID,
		To:         string(t.Status),
	})
	s.logger.InfoContext(ctx, "transfer requested",
		"transfer_id", t.ID,
		"consent_id", t.ConsentID,
		"holder_id", t.SourceID,
		"requester_id", t.DestinationID,
	)

	// The first attempt outlives a client that hangs up mid-dispatch.
	if _, err := s.processor.ProcessOne(context.WithoutCancel(ctx), t.ID); err != nil {
		s.logger.WarnContext(ctx, "first forwarding attempt did not complete", "transfer_id", t.ID, "error", err)
	}

	cur, err := s.store.Get(ctx, t.ID)
	if err != nil {
		return nil, translate(err, "failed to load transfer")
	}
	return &RequestResult{Transfer: cur, Message: requestMessage(cur)}, nil
}

func requestMessage(t *models.Transfer) string {
	switch {
	case t.Status == models.StatusForwarded:
		return "request forwarded to data holder"
	case t.Status == models.StatusExpired:
		return "request expired before it could be forwarded"
	case t.Status == models.StatusFailed && t.Exhausted():
		return "request failed: " + lastError(t)
	case t.Status == models.StatusFailed:
		return "forwarding failed, will retry: " + lastError(t)
	case t.LastError != nil:
		return "request queued: " + *t.LastError
	}
	return "request queued for forwarding"
}

func lastError(t *models.Transfer) string {
	if t.LastError == nil {
		return "unknown error"
	}
	return *t.LastError
}

// Acknowledge records that the holder is assembling the bundle. Repeating it
// is a no-op. The holder response deadline is unchanged.
func (s *Service) Acknowledge(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	next, err := s.store.Transition(ctx, transferID, []models.Status{models.StatusForwarded}, models.StatusProcessing, nil)
	if err == nil {
		s.emit(ctx, audit.Event{
			Action:     audit.ActionTransferAcked,
			TransferID: next.ID,
			ConsentID:  next.ConsentID,
			SubjectID:  next.SubjectID,
			EntityID:   next.SourceID,
			From:       string(models.StatusForwarded),
			To:         string(next.Status),
		})
		s.metrics.IncTransition(string(models.StatusForwarded), string(next.Status))
		return next, nil
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return nil, translate(err, "failed to acknowledge transfer")
	}

	cur, getErr := s.store.Get(ctx, transferID)
	if getErr != nil {
		return nil, translate(getErr, "failed to load transfer")
	}
	if cur.Status == models.StatusProcessing {
		return cur, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("transfer is %s, not awaiting data", cur.Status))
}

// ReceivePayload stores the holder's bundle encrypted and marks the transfer
// READY for immediate delivery.
func (s *Service) ReceivePayload(ctx context.Context, transferID id.TransferID, raw []byte) (_ *models.Transfer, err error) {
	ctx, span := s.tracer.Start(ctx, "transfer.receive", tracer.String("transfer_id", string(transferID)))
	defer func() { span.End(err) }()

	cur, err := s.store.Get(ctx, transferID)
	if err != nil {
		return nil, translate(err, "failed to load transfer")
	}
	if !cur.Status.AcceptsPayload() {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("transfer is %s, not awaiting data", cur.Status))
	}

	bundle, err := codec.DecodeBundle(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeFailed, err.Error())
	}
	blob, err := s.codec.Encrypt(bundle)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt payload")
	}

	now := s.now()
	from := cur.Status
	next, err := s.store.Transition(ctx, transferID, []models.Status{models.StatusForwarded, models.StatusProcessing}, models.StatusReady, func(t *models.Transfer) error {
		if t.IsExpired(now) {
			return fmt.Errorf("transfer has expired: %w", sentinel.ErrConflict)
		}
		from = t.Status
		t.EncryptedPayload = blob
		t.ReceivedCount = len(bundle.Records)
		t.NextActionAt = now
		t.ClearError()
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to store payload")
	}

	s.metrics.IncPayloadReceived()
	s.metrics.IncTransition(string(from), string(next.Status))
	s.emit(ctx, audit.Event{
		Action:     audit.ActionPayloadReceived,
		TransferID: next.ID,
		ConsentID:  next.ConsentID,
		SubjectID:  next.SubjectID,
		EntityID:   next.SourceID,
		From:       string(from),
		To:         string(next.Status),
	})
	s.logger.InfoContext(ctx, "transfer payload received", "transfer_id", next.ID, "records", next.ReceivedCount)

	s.processor.Kick(ctx)
	return next, nil
}

func (s *Service) Status(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	t, err := s.store.Get(ctx, transferID)
	if err != nil {
		return nil, translate(err, "failed to load transfer")
	}
	return t, nil
}

// Redrive gives a FAILED transfer a fresh retry budget. It resumes delivery
// when a payload is stored and forwarding otherwise.
func (s *Service) Redrive(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	cur, err := s.store.Get(ctx, transferID)
	if err != nil {
		return nil, translate(err, "failed to load transfer")
	}
	if cur.Status != models.StatusFailed {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("only FAILED transfers can be redriven, transfer is %s", cur.Status))
	}

	to := models.StatusRequested
	if cur.HasPayload() {
		to = models.StatusReady
	}
	now := s.now()
	next, err := s.store.Transition(ctx, transferID, []models.Status{models.StatusFailed}, to, func(t *models.Transfer) error {
		if t.Version != cur.Version {
			return sentinel.ErrConflict
		}
		if t.IsExpired(now) {
			return fmt.Errorf("transfer has expired: %w", sentinel.ErrConflict)
		}
		t.RetryCount = 0
		t.NextActionAt = now
		t.ClearError()
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to redrive transfer")
	}

	s.metrics.IncTransition(string(models.StatusFailed), string(next.Status))
	s.emit(ctx, audit.Event{
		Action:     audit.ActionTransferRedriven,
		TransferID: next.ID,
		ConsentID:  next.ConsentID,
		SubjectID:  next.SubjectID,
		From:       string(models.StatusFailed),
		To:         string(next.Status),
	})
	s.logger.InfoContext(ctx, "transfer redriven", "transfer_id", next.ID, "status", next.Status)

	s.processor.Kick(ctx)
	return next, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit transfer audit event", "action", event.Action, "error", err)
	}
}

// translate maps store sentinels to domain errors.
func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "transfer not found")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, err.Error())
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
