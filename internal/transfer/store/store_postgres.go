package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"hie-gateway/internal/transfer/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
)

// PostgresStore persists transfers in PostgreSQL. Transition locks the row
// with SELECT ... FOR UPDATE and writes with a version guard.
type PostgresStore struct {
	db   *sql.DB
	opts options
}

// NewPostgres constructs a PostgreSQL-backed transfer store.
func NewPostgres(db *sql.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{db: db, opts: buildOptions(opts)}
}

const transferColumns = `id, consent_id, subject_id, source_id, destination_id, status,
	encrypted_payload, item_count, care_context_ids, data_types, retry_count, max_retries,
	webhook_attempts, forward_attempts, received_count, last_error, next_action_at, expires_at,
	created_at, updated_at, version`

// Status lists rendered once for the scan queries.
const (
	activeStatusesSQL   = `('REQUESTED', 'FORWARDED', 'PROCESSING', 'READY')`
	terminalStatusesSQL = `('DELIVERED', 'EXPIRED')`
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Transfer) error {
	if t == nil {
		return fmt.Errorf("transfer is required")
	}
	careContexts, dataTypes, err := encodeLists(t)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		string(t.ID),
		string(t.ConsentID),
		string(t.SubjectID),
		string(t.SourceID),
		string(t.DestinationID),
		string(t.Status),
		t.EncryptedPayload,
		t.ItemCount,
		careContexts,
		dataTypes,
		t.RetryCount,
		t.MaxRetries,
		t.WebhookAttempts,
		t.ForwardAttempts,
		t.ReceivedCount,
		nullString(t.LastError),
		t.NextActionAt,
		t.ExpiresAt,
		t.CreatedAt,
		t.UpdatedAt,
		t.Version,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert transfer rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transfer %s already exists: %w", t.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	t, err := scanTransfer(s.db.QueryRowContext(ctx, query, string(transferID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transfer: %w", err)
	}
	return t, nil
}

// Transition atomically validates and mutates a transfer under a row lock.
func (s *PostgresStore) Transition(ctx context.Context, transferID id.TransferID, from []models.Status, to models.Status, mutate MutateFunc) (*models.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer transition: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`
	cur, err := scanTransfer(tx.QueryRowContext(ctx, query, string(transferID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock transfer: %w", err)
	}

	next, err := applyTransition(cur, from, to, mutate, s.opts.now())
	if err != nil {
		return nil, err
	}
	if err := updateTransfer(ctx, tx, next, cur.Version); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer transition: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) DueForAction(ctx context.Context, now time.Time, batch int) iter.Seq2[id.TransferID, error] {
	query := `
		SELECT id FROM transfers
		WHERE next_action_at <= $1 AND expires_at > $1 AND id > $2
		  AND (status IN ` + activeStatusesSQL + `
		       OR (status = 'FAILED' AND retry_count < max_retries))
		ORDER BY id
		LIMIT $3
	`
	return s.scanIDs(ctx, query, now, batch)
}

func (s *PostgresStore) PastExpiry(ctx context.Context, now time.Time, batch int) iter.Seq2[id.TransferID, error] {
	query := `
		SELECT id FROM transfers
		WHERE expires_at <= $1 AND id > $2
		  AND status NOT IN ` + terminalStatusesSQL + `
		ORDER BY id
		LIMIT $3
	`
	return s.scanIDs(ctx, query, now, batch)
}

func (s *PostgresStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transfers
		WHERE updated_at < $1
		  AND (status IN `+terminalStatusesSQL+`
		       OR (status = 'FAILED' AND retry_count >= max_retries))
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete settled transfers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete settled transfers rows: %w", err)
	}
	return int(n), nil
}

// scanIDs pages through query with keyset pagination on id. query takes
// ($1 now, $2 cursor, $3 limit). Each page is fully read and its rows closed
// before any id is yielded.
func (s *PostgresStore) scanIDs(ctx context.Context, query string, now time.Time, batch int) iter.Seq2[id.TransferID, error] {
	batch = batchOrDefault(batch)
	return func(yield func(id.TransferID, error) bool) {
		cursor := ""
		for {
			page, err := s.queryPage(ctx, query, now, cursor, batch)
			if err != nil {
				yield("", err)
				return
			}
			for _, tid := range page {
				if !yield(tid, nil) {
					return
				}
			}
			if len(page) < batch {
				return
			}
			cursor = string(page[len(page)-1])
		}
	}
}

func (s *PostgresStore) queryPage(ctx context.Context, query string, now time.Time, cursor string, batch int) ([]id.TransferID, error) {
	rows, err := s.db.QueryContext(ctx, query, now, cursor, batch)
	if err != nil {
		return nil, fmt.Errorf("scan transfers: %w", err)
	}
	defer rows.Close()

	page := make([]id.TransferID, 0, batch)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan transfer id: %w", err)
		}
		page = append(page, id.TransferID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return page, nil
}

func updateTransfer(ctx context.Context, exec dbExecutor, t *models.Transfer, expectedVersion int64) error {
	careContexts, dataTypes, err := encodeLists(t)
	if err != nil {
		return err
	}
	query := `
		UPDATE transfers
		SET status = $2, encrypted_payload = $3, item_count = $4, care_context_ids = $5,
		    data_types = $6, retry_count = $7, max_retries = $8, webhook_attempts = $9,
		    forward_attempts = $10, received_count = $11, last_error = $12, next_action_at = $13,
		    expires_at = $14, updated_at = $15, version = $16
		WHERE id = $1 AND version = $17
	`
	res, err := exec.ExecContext(ctx, query,
		string(t.ID),
		string(t.Status),
		t.EncryptedPayload,
		t.ItemCount,
		careContexts,
		dataTypes,
		t.RetryCount,
		t.MaxRetries,
		t.WebhookAttempts,
		t.ForwardAttempts,
		t.ReceivedCount,
		nullString(t.LastError),
		t.NextActionAt,
		t.ExpiresAt,
		t.UpdatedAt,
		t.Version,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transfer rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transfer %s changed concurrently: %w", t.ID, sentinel.ErrConflict)
	}
	return nil
}

type transferRow interface {
	Scan(dest ...any) error
}

func scanTransfer(row transferRow) (*models.Transfer, error) {
	var (
		t                                       models.Transfer
		tid, consentID, subjectID, source, dest string
		status                                  string
		careContexts, dataTypes                 []byte
		lastError                               sql.NullString
	)
	if err := row.Scan(
		&tid, &consentID, &subjectID, &source, &dest, &status,
		&t.EncryptedPayload, &t.ItemCount, &careContexts, &dataTypes,
		&t.RetryCount, &t.MaxRetries, &t.WebhookAttempts, &t.ForwardAttempts, &t.ReceivedCount, &lastError,
		&t.NextActionAt, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt, &t.Version,
	); err != nil {
		return nil, err
	}
	t.ID = id.TransferID(tid)
	t.ConsentID = id.ConsentID(consentID)
	t.SubjectID = id.SubjectID(subjectID)
	t.SourceID = id.EntityID(source)
	t.DestinationID = id.EntityID(dest)
	t.Status = models.Status(status)
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	var err error
	if t.CareContextIDs, err = decodeList(careContexts); err != nil {
		return nil, fmt.Errorf("decode care_context_ids: %w", err)
	}
	if t.DataTypes, err = decodeList(dataTypes); err != nil {
		return nil, fmt.Errorf("decode data_types: %w", err)
	}
	if len(t.EncryptedPayload) == 0 {
		t.EncryptedPayload = nil
	}
	return &t, nil
}

func encodeLists(t *models.Transfer) (string, string, error) {
	cc, err := encodeList(t.CareContextIDs)
	if err != nil {
		return "", "", fmt.Errorf("encode care_context_ids: %w", err)
	}
	dt, err := encodeList(t.DataTypes)
	if err != nil {
		return "", "", fmt.Errorf("encode data_types: %w", err)
	}
	return cc, dt, nil
}

func encodeList(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(values)
	return string(raw), err
}

func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
