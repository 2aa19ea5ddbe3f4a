package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/subject/models"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
	"hie-gateway/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, subject *models.Subject) (*models.Subject, bool, error)
	Get(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
}

type Service struct {
	store      Store
	auditor    *audit.Publisher
	logger     *slog.Logger
	autoCreate bool
	now        func() time.Time
}

type Option func(*Service)

// WithAutoCreate registers unknown subjects on first reference. Without it
// Ensure reports not_found.
func WithAutoCreate(enabled bool) Option {
	return func(s *Service) { s.autoCreate = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger, autoCreate: true, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure returns the subject, registering it first when auto-creation is on.
func (s *Service) Ensure(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	existing, err := s.store.Get(ctx, subjectID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	if !s.autoCreate {
		return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
	}

	subject, err := models.NewAutoCreated(subjectID, s.now())
	if err != nil {
		return nil, err
	}
	stored, created, err := s.store.Create(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subject")
	}
	if created {
		s.logger.InfoContext(ctx, "subject auto-created", "subject_id", subjectID)
		if err := s.auditor.Emit(ctx, audit.Event{Action: audit.ActionSubjectAutoCreated, SubjectID: subjectID}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit subject audit event", "error", err)
		}
	}
	return stored, nil
}
