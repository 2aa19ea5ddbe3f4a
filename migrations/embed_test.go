package migrations

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upMigrations = []string{
	"000001_create_subjects.up.sql",
	"000002_create_consent_requests.up.sql",
	"000003_create_transfers.up.sql",
	"000004_create_audit_outbox.up.sql",
}

func TestUpAppliesOnlyPendingFiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, name := range upMigrations[:3] {
		mock.ExpectQuery("SELECT EXISTS").WithArgs(name).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}
	mock.ExpectQuery("SELECT EXISTS").WithArgs(upMigrations[3]).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_outbox").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(upMigrations[3]).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := Up(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, upMigrations[3:], applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusListsFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(upMigrations[0]))

	applied, files, err := Status(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, upMigrations, files)
	assert.True(t, applied[upMigrations[0]])
	assert.False(t, applied[upMigrations[1]])
}
