package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"hie-gateway/internal/transfer/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
)

// PostgresStoreSuite exercises the SQL paths against go-sqlmock. Behaviour
// against a real database is covered by the integration suite.
type PostgresStoreSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *PostgresStore
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db, s.mock = db, mock
	s.now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	s.store = NewPostgres(db, WithClock(func() time.Time { return s.now }))
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

var columnNames = []string{
	"id", "consent_id", "subject_id", "source_id", "destination_id", "status",
	"encrypted_payload", "item_count", "care_context_ids", "data_types", "retry_count", "max_retries",
	"webhook_attempts", "forward_attempts", "received_count", "last_error", "next_action_at", "expires_at", "created_at", "updated_at", "version",
}

func (s *PostgresStoreSuite) row(status models.Status, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(columnNames).AddRow(
		"req-1", "consent-1", "patient-1", "hip-1", "hiu-1", string(status),
		nil, 2, []byte(`["cc-1"]`), []byte(`["PRESCRIPTION","LAB_REPORT"]`), 0, 3,
		0, 1, 0, nil, s.now, s.now.Add(time.Hour), s.now, s.now, version,
	)
}

func (s *PostgresStoreSuite) TestCreate() {
	t, err := models.NewTransfer(models.NewTransferParams{
		ID: "req-1", ConsentID: "consent-1", SubjectID: "patient-1",
		SourceID: "hip-1", DestinationID: "hiu-1", MaxRetries: 3, TTL: time.Hour, Now: s.now,
	})
	s.Require().NoError(err)

	s.Run("inserts", func() {
		s.mock.ExpectExec(`INSERT INTO transfers`).
			WithArgs("req-1", "consent-1", "patient-1", "hip-1", "hiu-1", "REQUESTED",
				sqlmock.AnyArg(), 0, "[]", "[]", 0, 3, 0, 0, 0, nil,
				s.now, s.now.Add(time.Hour), s.now, s.now, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.NoError(s.store.Create(context.Background(), t))
	})

	s.Run("duplicate id conflicts", func() {
		s.mock.ExpectExec(`INSERT INTO transfers`).WillReturnResult(sqlmock.NewResult(0, 0))
		s.ErrorIs(s.store.Create(context.Background(), t), sentinel.ErrConflict)
	})
}

func (s *PostgresStoreSuite) TestGet() {
	s.Run("maps the row", func() {
		s.mock.ExpectQuery(`SELECT .+ FROM transfers WHERE id = \$1`).
			WithArgs("req-1").
			WillReturnRows(s.row(models.StatusReady, 4))

		got, err := s.store.Get(context.Background(), "req-1")
		s.Require().NoError(err)
		s.Equal(id.TransferID("req-1"), got.ID)
		s.Equal(models.StatusReady, got.Status)
		s.Equal([]string{"cc-1"}, got.CareContextIDs)
		s.Equal([]string{"PRESCRIPTION", "LAB_REPORT"}, got.DataTypes)
		s.Nil(got.LastError)
		s.Nil(got.EncryptedPayload)
		s.Equal(int64(4), got.Version)
	})

	s.Run("no rows is not found", func() {
		s.mock.ExpectQuery(`SELECT .+ FROM transfers WHERE id = \$1`).
			WithArgs("req-2").
			WillReturnError(sql.ErrNoRows)
		_, err := s.store.Get(context.Background(), "req-2")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestTransitionCommits() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`SELECT .+ FROM transfers WHERE id = \$1 FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(s.row(models.StatusReady, 4))
	s.mock.ExpectExec(`UPDATE transfers SET .+ WHERE id = \$1 AND version = \$17`).
		WithArgs("req-1", "DELIVERED", sqlmock.AnyArg(), 2, `["cc-1"]`, `["PRESCRIPTION","LAB_REPORT"]`,
			0, 3, 1, 1, 3, nil, s.now, s.now.Add(time.Hour), s.now, int64(5), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	got, err := s.store.Transition(context.Background(), "req-1",
		[]models.Status{models.StatusReady}, models.StatusDelivered,
		func(t *models.Transfer) error {
			t.WebhookAttempts++
			t.ReceivedCount = 3
			return nil
		})
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, got.Status)
	s.Equal(int64(5), got.Version)
	s.Equal(1, got.ForwardAttempts)
	s.Equal(2, got.ItemCount, "the requested count is kept")
	s.Equal(3, got.ReceivedCount)
}

func (s *PostgresStoreSuite) TestTransitionRollsBackOnConflict() {
	s.Run("unexpected status", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(s.row(models.StatusDelivered, 4))
		s.mock.ExpectRollback()

		_, err := s.store.Transition(context.Background(), "req-1",
			[]models.Status{models.StatusReady}, models.StatusDelivered, nil)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("version guard lost", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(s.row(models.StatusReady, 4))
		s.mock.ExpectExec(`UPDATE transfers`).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectRollback()

		_, err := s.store.Transition(context.Background(), "req-1",
			[]models.Status{models.StatusReady}, models.StatusReady, nil)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing row", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(`FOR UPDATE`).WillReturnError(sql.ErrNoRows)
		s.mock.ExpectRollback()

		_, err := s.store.Transition(context.Background(), "req-9", models.AllStatuses, models.StatusExpired, nil)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestDueForActionPages() {
	s.mock.ExpectQuery(`SELECT id FROM transfers WHERE next_action_at <= \$1`).
		WithArgs(s.now, "", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("req-a").AddRow("req-b"))
	s.mock.ExpectQuery(`SELECT id FROM transfers WHERE next_action_at <= \$1`).
		WithArgs(s.now, "req-b", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("req-c"))

	ids, err := collect(s.store.DueForAction(context.Background(), s.now, 2))
	s.Require().NoError(err)
	s.Equal([]id.TransferID{"req-a", "req-b", "req-c"}, ids)
}

func (s *PostgresStoreSuite) TestPastExpirySurfacesQueryErrors() {
	boom := errors.New("connection reset")
	s.mock.ExpectQuery(`SELECT id FROM transfers WHERE expires_at <= \$1`).WillReturnError(boom)

	_, err := collect(s.store.PastExpiry(context.Background(), s.now, 10))
	s.ErrorIs(err, boom)
}

func (s *PostgresStoreSuite) TestDeleteSettledBefore() {
	cutoff := s.now.Add(-24 * time.Hour)
	s.mock.ExpectExec(`DELETE FROM transfers WHERE updated_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := s.store.DeleteSettledBefore(context.Background(), cutoff)
	s.Require().NoError(err)
	s.Equal(7, n)
}
