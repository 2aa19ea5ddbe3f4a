package models

import (
	"strings"
	"time"

	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusRevoked  Status = "REVOKED"

	// StatusNotFound is only ever reported by Notify for unknown ids; it is
	// never stored.
	StatusNotFound Status = "NOT_FOUND"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusDenied, StatusRevoked},
	StatusApproved: {StatusRevoked},
}

// ParseStatus accepts the four storable statuses, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidConsent, "unknown consent status: "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusRevoked:
		return true
	}
	return false
}

// IsTerminal is true for DENIED and REVOKED.
func (s Status) IsTerminal() bool {
	return s == StatusDenied || s == StatusRevoked
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

type Purpose struct {
	Code string
	Text string
}

// AutoApprovedPurpose labels consents created on behalf of a transfer request.
var AutoApprovedPurpose = Purpose{Code: "CAREMGT", Text: "Auto-approved for data transfer"}

// Request is one consent request: a subject's permission for a holder to
// share data for a purpose.
type Request struct {
	ID        id.ConsentID
	SubjectID id.SubjectID
	HolderID  id.EntityID
	Purpose   Purpose
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRequest builds a PENDING request with a fresh id.
func NewRequest(subjectID id.SubjectID, holderID id.EntityID, purpose Purpose, now time.Time) (*Request, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	if holderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "holder ID required")
	}
	if strings.TrimSpace(purpose.Code) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purpose code required")
	}
	return &Request{
		ID:        id.NewConsentID(),
		SubjectID: subjectID,
		HolderID:  holderID,
		Purpose:   purpose,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NotifyResult reports the outcome of a status notification. Changed is
// false for idempotent re-notifications and unknown ids.
type NotifyResult struct {
	ID      id.ConsentID
	Status  Status
	Changed bool
}
