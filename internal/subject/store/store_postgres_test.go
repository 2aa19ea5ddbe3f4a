package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hie-gateway/internal/subject/models"
	"hie-gateway/pkg/platform/sentinel"
)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresCreateNew(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	subject := &models.Subject{ID: "pt-1", DisplayName: "Patient pt-1", CreatedAt: now}

	mock.ExpectExec(`INSERT INTO subjects`).
		WithArgs("pt-1", "Patient pt-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, created, err := store.Create(context.Background(), subject)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Patient pt-1", stored.DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateExistingReturnsStoredRow(t *testing.T) {
	store, mock := newMock(t)
	earlier := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO subjects`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, display_name, created_at FROM subjects WHERE id = \$1`).
		WithArgs("pt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "created_at"}).
			AddRow("pt-1", "Asha Rao", earlier))

	stored, created, err := store.Create(context.Background(), &models.Subject{ID: "pt-1", DisplayName: "Patient pt-1", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Asha Rao", stored.DisplayName)
	assert.Equal(t, earlier, stored.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT id, display_name, created_at FROM subjects`).
		WithArgs("pt-404").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "pt-404")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
