package service_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/consent/models"
	"hie-gateway/internal/consent/service"
	"hie-gateway/internal/consent/service/mocks"
	"hie-gateway/internal/consent/store"
	subjectservice "hie-gateway/internal/subject/service"
	subjectstore "hie-gateway/internal/subject/store"
	dErrors "hie-gateway/pkg/domain-errors"
	"hie-gateway/pkg/platform/sentinel"
)

var purpose = models.Purpose{Code: "CAREMGT", Text: "Care management"}

type ServiceSuite struct {
	suite.Suite
	now   time.Time
	store *store.InMemoryStore
	trail *audit.InMemoryStore
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.store = store.New()
	s.trail = audit.NewInMemoryStore()
}

func (s *ServiceSuite) newService(autoApprove, autoCreate bool) *service.Service {
	logger := slog.New(slog.DiscardHandler)
	clock := func() time.Time { return s.now }
	subjects := subjectservice.New(subjectstore.New(), logger,
		subjectservice.WithAutoCreate(autoCreate),
		subjectservice.WithClock(clock),
	)
	return service.New(s.store, subjects, logger,
		service.WithAutoApprove(autoApprove),
		service.WithAuditor(audit.NewPublisher(s.trail)),
		service.WithClock(clock),
	)
}

func (s *ServiceSuite) TestInitiate() {
	ctx := context.Background()

	s.Run("auto-approve on", func() {
		req, err := s.newService(true, true).Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, req.Status)

		events, _ := s.trail.List(ctx, string(req.ID))
		s.Require().Len(events, 2)
		s.Equal(audit.ActionConsentInitiated, events[0].Action)
		s.Equal(audit.ActionConsentStatusSet, events[1].Action)
	})

	s.Run("auto-approve off stays pending", func() {
		req, err := s.newService(false, true).Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, req.Status)
	})

	s.Run("each call is a fresh id", func() {
		svc := s.newService(true, true)
		a, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)
		b, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)
		s.NotEqual(a.ID, b.ID)
	})

	s.Run("unknown subject without auto-create", func() {
		_, err := s.newService(true, false).Initiate(ctx, "pt-unknown", "hip-1", purpose)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestGetStatus() {
	ctx := context.Background()
	svc := s.newService(false, true)
	req, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
	s.Require().NoError(err)

	status, err := svc.GetStatus(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, status)

	_, err = svc.GetStatus(ctx, "consent-missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestNotify() {
	ctx := context.Background()
	svc := s.newService(false, true)
	req, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
	s.Require().NoError(err)

	s.Run("approve", func() {
		res, err := svc.Notify(ctx, req.ID, models.StatusApproved)
		s.Require().NoError(err)
		s.True(res.Changed)
		s.Equal(models.StatusApproved, res.Status)
	})

	s.Run("re-notifying is idempotent", func() {
		res, err := svc.Notify(ctx, req.ID, models.StatusApproved)
		s.Require().NoError(err)
		s.False(res.Changed)
		s.Equal(models.StatusApproved, res.Status)
	})

	s.Run("illegal transition is conflict", func() {
		_, err := svc.Notify(ctx, req.ID, models.StatusDenied)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown id is benign", func() {
		res, err := svc.Notify(ctx, "consent-missing", models.StatusApproved)
		s.Require().NoError(err)
		s.Equal(models.StatusNotFound, res.Status)
		s.False(res.Changed)
	})

	s.Run("invalid status", func() {
		_, err := svc.Notify(ctx, req.ID, models.StatusNotFound)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConsent))
	})
}

func (s *ServiceSuite) TestEnsureForTransfer() {
	ctx := context.Background()

	s.Run("existing consent is used as-is", func() {
		svc := s.newService(false, true)
		pending, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)

		got, err := svc.EnsureForTransfer(ctx, pending.ID, "pt-1", "hip-1")
		s.Require().NoError(err)
		s.Equal(pending.ID, got.ID)
		s.Equal(models.StatusPending, got.Status, "never force-approved")
	})

	s.Run("revoked consent is not replaced", func() {
		svc := s.newService(true, true)
		req, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)
		_, err = svc.Notify(ctx, req.ID, models.StatusRevoked)
		s.Require().NoError(err)

		got, err := svc.EnsureForTransfer(ctx, req.ID, "pt-1", "hip-1")
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, got.Status)
	})

	s.Run("subject mismatch", func() {
		svc := s.newService(true, true)
		req, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)

		_, err = svc.EnsureForTransfer(ctx, req.ID, "pt-2", "hip-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConsent))
	})

	s.Run("holder mismatch", func() {
		svc := s.newService(true, true)
		req, err := svc.Initiate(ctx, "pt-1", "hip-1", purpose)
		s.Require().NoError(err)
		_, err = svc.Notify(ctx, req.ID, models.StatusApproved)
		s.Require().NoError(err)

		got, err := svc.EnsureForTransfer(ctx, req.ID, "pt-1", "hip-2")
		s.Nil(got)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConsent))

		kept, err := svc.Get(ctx, req.ID)
		s.Require().NoError(err)
		s.EqualValues("hip-1", kept.HolderID, "approval never widens to another holder")
		s.Equal(models.StatusApproved, kept.Status)
	})

	s.Run("absent with auto-approve creates approved consent", func() {
		got, err := s.newService(true, true).EnsureForTransfer(ctx, "consent-never-issued", "pt-3", "hip-1")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, got.Status)
		s.Equal(models.AutoApprovedPurpose, got.Purpose)
		s.NotEqual("consent-never-issued", string(got.ID))
	})

	s.Run("absent without auto-approve", func() {
		_, err := s.newService(false, true).EnsureForTransfer(ctx, "", "pt-3", "hip-1")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingConsent))
	})
}

func (s *ServiceSuite) TestStoreFailuresAreInternal() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	subjects := mocks.NewMockSubjectEnsurer(ctrl)
	svc := service.New(st, subjects, slog.New(slog.DiscardHandler))
	ctx := context.Background()
	boom := errors.New("connection refused")

	st.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, boom)
	_, err := svc.GetStatus(ctx, "consent-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	st.EXPECT().SetStatus(gomock.Any(), gomock.Any(), models.StatusRevoked, gomock.Any()).Return(nil, false, boom)
	_, err = svc.Notify(ctx, "consent-1", models.StatusRevoked)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	subjects.EXPECT().Ensure(gomock.Any(), gomock.Any()).Return(nil, nil)
	st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)
	_, err = svc.Initiate(ctx, "pt-1", "hip-1", purpose)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
