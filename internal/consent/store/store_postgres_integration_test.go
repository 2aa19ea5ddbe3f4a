//go:build integration

package store_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hie-gateway/internal/consent/models"
	"hie-gateway/internal/consent/store"
	subjectmodels "hie-gateway/internal/subject/models"
	subjectstore "hie-gateway/internal/subject/store"
	"hie-gateway/pkg/platform/sentinel"
	"hie-gateway/pkg/testutil"
	"hie-gateway/pkg/testutil/containers"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresIntegrationSuite) SetupTest() {
	ctx := context.Background()
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.postgres.TruncateAll(ctx))

	subject, err := subjectmodels.NewAutoCreated("pt-1", s.now)
	s.Require().NoError(err)
	_, _, err = subjectstore.NewPostgres(s.postgres.DB).Create(ctx, subject)
	s.Require().NoError(err)
}

func (s *PostgresIntegrationSuite) TestLifecycle() {
	ctx := context.Background()
	req, err := models.NewRequest("pt-1", "hip-1", models.Purpose{Code: "CAREMGT", Text: "Care"}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, req))
	s.ErrorIs(s.store.Create(ctx, req), sentinel.ErrConflict)

	got, changed, err := s.store.SetStatus(ctx, req.ID, models.StatusApproved, s.now.Add(time.Second))
	s.Require().NoError(err)
	s.True(changed)

	reloaded, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(got.Status, reloaded.Status)
	s.True(got.UpdatedAt.Equal(reloaded.UpdatedAt))

	_, _, err = s.store.SetStatus(ctx, req.ID, models.StatusDenied, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *PostgresIntegrationSuite) TestConcurrentDecisionsHaveOneWinner() {
	ctx := context.Background()
	req, err := models.NewRequest("pt-1", "hip-1", models.Purpose{Code: "CAREMGT"}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, req))

	var winners atomic.Int64
	result := testutil.RunConcurrent(16, func(i int) error {
		to := models.StatusApproved
		if i%2 == 1 {
			to = models.StatusDenied
		}
		_, changed, err := s.store.SetStatus(ctx, req.ID, to, s.now)
		if changed {
			winners.Add(1)
		}
		return err
	})
	s.Equal(int64(1), winners.Load())
	s.Equal(int32(0), result.NotFounds)
	s.Equal(int32(16), result.Successes+result.Errors, "losers see an illegal edge or an unchanged no-op")
}
