package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/consent/metrics"
	"hie-gateway/internal/consent/models"
	subjectmodels "hie-gateway/internal/subject/models"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
	"hie-gateway/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,SubjectEnsurer

// Store persists consent requests. See the store package for the error
// contract.
type Store interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, consentID id.ConsentID) (*models.Request, error)
	SetStatus(ctx context.Context, consentID id.ConsentID, to models.Status, now time.Time) (*models.Request, bool, error)
}

type SubjectEnsurer interface {
	Ensure(ctx context.Context, subjectID id.SubjectID) (*subjectmodels.Subject, error)
}

const (
	originAPI      = "api"
	originTransfer = "transfer"
)

// Service is the consent ledger.
type Service struct {
	store       Store
	subjects    SubjectEnsurer
	auditor     *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	autoApprove bool
	now         func() time.Time
}

type Option func(*Service)

// WithAutoApprove approves every new consent request immediately.
func WithAutoApprove(enabled bool) Option {
	return func(s *Service) { s.autoApprove = enabled }
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, subjects SubjectEnsurer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		subjects:    subjects,
		logger:      logger,
		autoApprove: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate records a new consent request, always under a fresh id.
func (s *Service) Initiate(ctx context.Context, subjectID id.SubjectID, holderID id.EntityID, purpose models.Purpose) (*models.Request, error) {
	return s.create(ctx, subjectID, holderID, purpose, s.autoApprove, originAPI)
}

func (s *Service) Get(ctx context.Context, consentID id.ConsentID) (*models.Request, error) {
	req, err := s.store.Get(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent request")
	}
	return req, nil
}

func (s *Service) GetStatus(ctx context.Context, consentID id.ConsentID) (models.Status, error) {
	req, err := s.Get(ctx, consentID)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// Notify applies a status decision. Unknown ids are a benign no-op reported
// as NOT_FOUND; repeating the current status is an unchanged success.
func (s *Service) Notify(ctx context.Context, consentID id.ConsentID, status models.Status) (models.NotifyResult, error) {
	if !status.IsValid() {
		return models.NotifyResult{}, dErrors.New(dErrors.CodeInvalidConsent, "unknown consent status")
	}

	req, changed, err := s.store.SetStatus(ctx, consentID, status, s.now())
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncNotifyUnknown()
		s.logger.InfoContext(ctx, "consent notification for unknown id", "consent_id", consentID)
		return models.NotifyResult{ID: consentID, Status: models.StatusNotFound}, nil
	case errors.Is(err, sentinel.ErrInvalidState):
		return models.NotifyResult{}, dErrors.New(dErrors.CodeConflict, err.Error())
	case err != nil:
		return models.NotifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update consent")
	}

	if changed {
		s.recordStatusChange(ctx, req, "")
	}
	return models.NotifyResult{ID: req.ID, Status: req.Status, Changed: changed}, nil
}

// EnsureForTransfer resolves the consent a transfer request will be gated on.
// An existing consent must name the same subject and holder as the transfer.
// It is then used as-is whatever its status; the scheduler checks
// it at each forwarding decision. A missing consent is auto-created approved
// only when auto-approval is on.
func (s *Service) EnsureForTransfer(ctx context.Context, consentID id.ConsentID, subjectID id.SubjectID, holderID id.EntityID) (*models.Request, error) {
	if !consentID.IsNil() {
		req, err := s.store.Get(ctx, consentID)
		switch {
		case err == nil:
			if req.SubjectID != subjectID {
				return nil, dErrors.New(dErrors.CodeInvalidConsent, "consent belongs to a different subject")
			}
			if req.HolderID != holderID {
				return nil, dErrors.New(dErrors.CodeInvalidConsent, "consent was granted to a different holder")
			}
			return req, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent request")
		}
	}

	if !s.autoApprove {
		return nil, dErrors.New(dErrors.CodeMissingConsent, "no consent on record for this transfer")
	}
	return s.create(ctx, subjectID, holderID, models.AutoApprovedPurpose, true, originTransfer)
}

func (s *Service) create(ctx context.Context, subjectID id.SubjectID, holderID id.EntityID, purpose models.Purpose, approve bool, origin string) (*models.Request, error) {
	if _, err := s.subjects.Ensure(ctx, subjectID); err != nil {
		return nil, err
	}

	req, err := models.NewRequest(subjectID, holderID, purpose, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent request")
	}
	s.metrics.IncInitiated(origin)
	s.emit(ctx, audit.Event{
		Action:    audit.ActionConsentInitiated,
		ConsentID: req.ID,
		SubjectID: subjectID,
		EntityID:  holderID,
		To:        string(req.Status),
		Reason:    origin,
	})

	if !approve {
		return req, nil
	}
	approved, changed, err := s.store.SetStatus(ctx, req.ID, models.StatusApproved, s.now())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to auto-approve consent")
	}
	if changed {
		s.recordStatusChange(ctx, approved, "auto-approved")
	}
	return approved, nil
}

func (s *Service) recordStatusChange(ctx context.Context, req *models.Request, reason string) {
	s.metrics.IncStatusChange(string(req.Status))
	s.logger.InfoContext(ctx, "consent status changed",
		"consent_id", req.ID,
		"status", req.Status,
	)
	s.emit(ctx, audit.Event{
		Action:    audit.ActionConsentStatusSet,
		ConsentID: req.ID,
		SubjectID: req.SubjectID,
		EntityID:  req.HolderID,
		To:        string(req.Status),
		Reason:    reason,
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit consent audit event", "action", event.Action, "error", err)
	}
}
