package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	"hie-gateway/internal/consent/models"
	"hie-gateway/pkg/platform/sentinel"
)

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
	s.store = NewPostgres(db)
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *PostgresStoreSuite) row(status models.Status) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "subject_id", "holder_id", "purpose_code", "purpose_text", "status", "created_at", "updated_at"}).
		AddRow("consent-1", "pt-1", "hip-1", "CAREMGT", "Care management", string(status), s.now, s.now)
}

func (s *PostgresStoreSuite) TestCreate() {
	req := &models.Request{
		ID: "consent-1", SubjectID: "pt-1", HolderID: "hip-1",
		Purpose: models.Purpose{Code: "CAREMGT", Text: "Care management"},
		Status:  models.StatusPending, CreatedAt: s.now, UpdatedAt: s.now,
	}
	s.mock.ExpectExec(`INSERT INTO consent_requests`).
		WithArgs("consent-1", "pt-1", "hip-1", "CAREMGT", "Care management", "PENDING", s.now, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.store.Create(context.Background(), req))

	s.mock.ExpectExec(`INSERT INTO consent_requests`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	s.ErrorIs(s.store.Create(context.Background(), req), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGet() {
	s.mock.ExpectQuery(`SELECT .+ FROM consent_requests WHERE id = \$1`).
		WithArgs("consent-1").
		WillReturnRows(s.row(models.StatusApproved))

	got, err := s.store.Get(context.Background(), "consent-1")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Equal("Care management", got.Purpose.Text)

	s.mock.ExpectQuery(`SELECT .+ FROM consent_requests`).WillReturnError(sql.ErrNoRows)
	_, err = s.store.Get(context.Background(), "consent-2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSetStatusLocksAndUpdates() {
	later := s.now.Add(time.Minute)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`SELECT .+ FROM consent_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("consent-1").
		WillReturnRows(s.row(models.StatusPending))
	s.mock.ExpectExec(`UPDATE consent_requests SET status = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("consent-1", "APPROVED", later).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	got, changed, err := s.store.SetStatus(context.Background(), "consent-1", models.StatusApproved, later)
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(models.StatusApproved, got.Status)
	s.Equal(later, got.UpdatedAt)
}

func (s *PostgresStoreSuite) TestSetStatusSameStatusRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(s.row(models.StatusApproved))
	s.mock.ExpectRollback()

	_, changed, err := s.store.SetStatus(context.Background(), "consent-1", models.StatusApproved, s.now)
	s.Require().NoError(err)
	s.False(changed)
}

func (s *PostgresStoreSuite) TestSetStatusIllegalEdge() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(s.row(models.StatusRevoked))
	s.mock.ExpectRollback()

	_, _, err := s.store.SetStatus(context.Background(), "consent-1", models.StatusApproved, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}
