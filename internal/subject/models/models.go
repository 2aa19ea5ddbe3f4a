package models

import (
	"fmt"
	"time"

	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
)

// Subject is the patient a consent and its transfers are about. The gateway
// only tracks identity; demographics live with the data holder.
type Subject struct {
	ID          id.SubjectID
	DisplayName string
	CreatedAt   time.Time
}

// NewAutoCreated builds the placeholder subject registered on first use.
func NewAutoCreated(subjectID id.SubjectID, now time.Time) (*Subject, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	return &Subject{
		ID:          subjectID,
		DisplayName: fmt.Sprintf("Patient %s", subjectID),
		CreatedAt:   now,
	}, nil
}
