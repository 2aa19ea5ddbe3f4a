package models

import (
	"slices"
	"time"

	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
)

// Defaults applied when the service is not configured otherwise.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxRetries = 5
)

// Transfer is one request-to-delivery lifecycle for a bundle of health data.
// Retry bookkeeping lives on the record; every mutation goes through the
// store's Transition so Version increases by exactly one per write.
type Transfer struct {
	ID               id.TransferID
	ConsentID        id.ConsentID
	SubjectID        id.SubjectID
	SourceID         id.EntityID // holder
	DestinationID    id.EntityID // requester
	Status           Status
	EncryptedPayload []byte
	ItemCount        int // data types requested
	ReceivedCount    int // records in the submitted bundle
	CareContextIDs   []string
	DataTypes        []string
	RetryCount       int
	MaxRetries       int
	WebhookAttempts  int
	ForwardAttempts  int // request webhooks sent to the holder; never spends RetryCount
	LastError        *string
	NextActionAt     time.Time
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// NewTransferParams carries the caller-supplied fields of a new transfer.
type NewTransferParams struct {
	ID             id.TransferID
	ConsentID      id.ConsentID
	SubjectID      id.SubjectID
	SourceID       id.EntityID
	DestinationID  id.EntityID
	CareContextIDs []string
	DataTypes      []string
	MaxRetries     int
	TTL            time.Duration
	Now            time.Time
}

// NewTransfer builds a REQUESTED transfer due immediately. A zero TTL yields a
// transfer that is already expired, which the scheduler expires on its next pass.
func NewTransfer(p NewTransferParams) (*Transfer, error) {
	if p.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "transfer ID required")
	}
	if p.ConsentID.IsNil() || p.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent and subject required")
	}
	if p.SourceID.IsNil() || p.DestinationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "source and destination required")
	}
	if p.MaxRetries < 0 || p.TTL < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "max retries and ttl must not be negative")
	}
	if p.Now.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creation time required")
	}
	return &Transfer{
		ID:             p.ID,
		ConsentID:      p.ConsentID,
		SubjectID:      p.SubjectID,
		SourceID:       p.SourceID,
		DestinationID:  p.DestinationID,
		Status:         StatusRequested,
		ItemCount:      len(p.DataTypes),
		CareContextIDs: slices.Clone(p.CareContextIDs),
		DataTypes:      slices.Clone(p.DataTypes),
		MaxRetries:     p.MaxRetries,
		NextActionAt:   p.Now,
		ExpiresAt:      p.Now.Add(p.TTL),
		CreatedAt:      p.Now,
		UpdatedAt:      p.Now,
		Version:        1,
	}, nil
}

// Clone returns a deep copy so callers never share slices with the store.
func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	c := *t
	c.EncryptedPayload = slices.Clone(t.EncryptedPayload)
	c.CareContextIDs = slices.Clone(t.CareContextIDs)
	c.DataTypes = slices.Clone(t.DataTypes)
	if t.LastError != nil {
		msg := *t.LastError
		c.LastError = &msg
	}
	return &c
}

// HasPayload reports whether an encrypted bundle is stored.
func (t *Transfer) HasPayload() bool {
	return len(t.EncryptedPayload) > 0
}

// Exhausted reports whether the retry budget is spent.
func (t *Transfer) Exhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// IsExpired reports whether the transfer is past its expiry at now.
func (t *Transfer) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsDue reports whether the scheduler should act on the transfer at now.
func (t *Transfer) IsDue(now time.Time) bool {
	if t.IsExpired(now) || t.NextActionAt.After(now) {
		return false
	}
	switch t.Status {
	case StatusRequested, StatusForwarded, StatusProcessing, StatusReady:
		return true
	case StatusFailed:
		return !t.Exhausted()
	}
	return false
}

// SetError records msg as the last error.
func (t *Transfer) SetError(msg string) {
	t.LastError = &msg
}

// ClearError removes the last error.
func (t *Transfer) ClearError() {
	t.LastError = nil
}
