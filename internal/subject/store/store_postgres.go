package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hie-gateway/internal/subject/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the subject; on an id collision it returns the existing row
// and created=false.
func (s *PostgresStore) Create(ctx context.Context, subject *models.Subject) (*models.Subject, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, string(subject.ID), subject.DisplayName, subject.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert subject: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert subject rows: %w", err)
	}
	if n == 1 {
		stored := *subject
		return &stored, true, nil
	}
	existing, err := s.Get(ctx, subject.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) Get(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	var (
		subject models.Subject
		rawID   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM subjects WHERE id = $1`,
		string(subjectID),
	).Scan(&rawID, &subject.DisplayName, &subject.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	subject.ID = id.SubjectID(rawID)
	return &subject, nil
}
