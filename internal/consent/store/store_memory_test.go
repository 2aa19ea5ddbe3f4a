package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hie-gateway/internal/consent/models"
	"hie-gateway/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = New()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) pending() *models.Request {
	req, err := models.NewRequest("pt-1", "hip-1", models.Purpose{Code: "CAREMGT"}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), req))
	return req
}

func (s *InMemoryStoreSuite) TestCreateAndGet() {
	req := s.pending()

	got, err := s.store.Get(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(*req, *got)

	s.ErrorIs(s.store.Create(context.Background(), req), sentinel.ErrConflict)

	_, err = s.store.Get(context.Background(), "consent-missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestSetStatus() {
	ctx := context.Background()
	req := s.pending()
	later := s.now.Add(time.Minute)

	s.Run("legal edge changes status", func() {
		got, changed, err := s.store.SetStatus(ctx, req.ID, models.StatusApproved, later)
		s.Require().NoError(err)
		s.True(changed)
		s.Equal(models.StatusApproved, got.Status)
		s.Equal(later, got.UpdatedAt)
	})

	s.Run("same status is an unchanged no-op", func() {
		got, changed, err := s.store.SetStatus(ctx, req.ID, models.StatusApproved, later.Add(time.Hour))
		s.Require().NoError(err)
		s.False(changed)
		s.Equal(later, got.UpdatedAt)
	})

	s.Run("illegal edge is invalid state", func() {
		_, _, err := s.store.SetStatus(ctx, req.ID, models.StatusDenied, later)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("revoked is terminal", func() {
		_, _, err := s.store.SetStatus(ctx, req.ID, models.StatusRevoked, later)
		s.Require().NoError(err)
		_, _, err = s.store.SetStatus(ctx, req.ID, models.StatusApproved, later)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown id", func() {
		_, _, err := s.store.SetStatus(ctx, "consent-missing", models.StatusApproved, later)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentDecisionsHaveOneWinner() {
	req := s.pending()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := range 20 {
		to := models.StatusApproved
		if i%2 == 1 {
			to = models.StatusDenied
		}
		wg.Go(func() {
			_, ok, err := s.store.SetStatus(context.Background(), req.ID, to, s.now)
			if err == nil && ok {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	s.Equal(1, changed, "only the first decision moves PENDING")
}
