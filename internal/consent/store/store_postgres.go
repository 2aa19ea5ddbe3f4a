package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"hie-gateway/internal/consent/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consentColumns = `id, subject_id, holder_id, purpose_code, purpose_text, status, created_at, updated_at`

const pgUniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_requests (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		string(req.ID),
		string(req.SubjectID),
		string(req.HolderID),
		req.Purpose.Code,
		req.Purpose.Text,
		string(req.Status),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, consentID id.ConsentID) (*models.Request, error) {
	req, err := scanConsent(s.db.QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consent_requests WHERE id = $1`, string(consentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, consentID id.ConsentID, to models.Status, now time.Time) (*models.Request, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin consent update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cur, err := scanConsent(tx.QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consent_requests WHERE id = $1 FOR UPDATE`, string(consentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, sentinel.ErrNotFound
		}
		return nil, false, fmt.Errorf("lock consent: %w", err)
	}

	changed, err := nextStatus(cur, to)
	if err != nil || !changed {
		return cur, false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE consent_requests SET status = $2, updated_at = $3 WHERE id = $1`,
		string(consentID), string(to), now,
	); err != nil {
		return nil, false, fmt.Errorf("update consent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit consent update: %w", err)
	}
	cur.Status = to
	cur.UpdatedAt = now
	return cur, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.Request, error) {
	var (
		req                           models.Request
		rawID, subject, holder, state string
	)
	if err := row.Scan(&rawID, &subject, &holder, &req.Purpose.Code, &req.Purpose.Text, &state, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.ID = id.ConsentID(rawID)
	req.SubjectID = id.SubjectID(subject)
	req.HolderID = id.EntityID(holder)
	req.Status = models.Status(state)
	return &req, nil
}
