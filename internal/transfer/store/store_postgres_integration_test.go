//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hie-gateway/internal/transfer/models"
	"hie-gateway/internal/transfer/store"
	id "hie-gateway/pkg/domain"
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
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "transfers"))
}

func (s *PostgresIntegrationSuite) create(tid string, status models.Status) *models.Transfer {
	t, err := models.NewTransfer(models.NewTransferParams{
		ID: id.TransferID(tid), ConsentID: "consent-1", SubjectID: "patient-1",
		SourceID: "hip-1", DestinationID: "hiu-1",
		CareContextIDs: []string{"cc-1"}, DataTypes: []string{"LAB_REPORT"},
		MaxRetries: 3, TTL: time.Hour, Now: s.now,
	})
	s.Require().NoError(err)
	t.Status = status
	s.Require().NoError(s.store.Create(context.Background(), t))
	return t
}

func (s *PostgresIntegrationSuite) TestRoundTrip() {
	created := s.create("req-1", models.StatusRequested)

	got, err := s.store.Get(context.Background(), "req-1")
	s.Require().NoError(err)
	s.Equal(created.CareContextIDs, got.CareContextIDs)
	s.Equal(created.ExpiresAt.UTC(), got.ExpiresAt.UTC())
	s.Equal(int64(1), got.Version)
}

// TestConcurrentClaim races many transactions for the same row; the row lock
// plus the status guard must let exactly one through.
func (s *PostgresIntegrationSuite) TestConcurrentClaim() {
	s.create("req-1", models.StatusReady)
	ctx := context.Background()

	result := testutil.RunConcurrent(20, func(int) error {
		_, err := s.store.Transition(ctx, "req-1",
			[]models.Status{models.StatusReady}, models.StatusDelivered, nil)
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.Conflicts)

	got, err := s.store.Get(ctx, "req-1")
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, got.Status)
	s.Equal(int64(2), got.Version)
}

func (s *PostgresIntegrationSuite) TestDueForActionPaginates() {
	for i := range 7 {
		s.create(fmt.Sprintf("req-%02d", i), models.StatusRequested)
	}
	s.create("req-done", models.StatusDelivered)

	var ids []id.TransferID
	for tid, err := range s.store.DueForAction(context.Background(), s.now, 3) {
		s.Require().NoError(err)
		ids = append(ids, tid)
	}
	s.Len(ids, 7)
	s.NotContains(ids, id.TransferID("req-done"))
}

func (s *PostgresIntegrationSuite) TestTransitionUnknownID() {
	_, err := s.store.Transition(context.Background(), "req-missing", models.AllStatuses, models.StatusExpired, nil)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
