// Package domain provides typed identifiers so transfer, consent, subject and
// entity ids cannot be mixed up at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "hie-gateway/pkg/domain-errors"
)

// Distinct ID types. All are opaque strings on the wire.
type (
	TransferID string
	ConsentID  string
	SubjectID  string
	EntityID   string
)

const (
	transferPrefix = "req-"
	consentPrefix  = "consent-"
)

// NewTransferID allocates a fresh transfer id of the form req-<uuid>.
func NewTransferID() TransferID { return TransferID(transferPrefix + uuid.NewString()) }

// NewConsentID allocates a fresh consent id of the form consent-<uuid>.
func NewConsentID() ConsentID { return ConsentID(consentPrefix + uuid.NewString()) }

// Parse functions - use at trust boundaries (handlers, CLI args).

func ParseTransferID(s string) (TransferID, error) {
	v, err := parseOpaque(s, "transfer ID")
	return TransferID(v), err
}

func ParseConsentID(s string) (ConsentID, error) {
	v, err := parseOpaque(s, "consent ID")
	return ConsentID(v), err
}

func ParseSubjectID(s string) (SubjectID, error) {
	v, err := parseOpaque(s, "subject ID")
	return SubjectID(v), err
}

func ParseEntityID(s string) (EntityID, error) {
	v, err := parseOpaque(s, "entity ID")
	return EntityID(v), err
}

func (id TransferID) String() string { return string(id) }
func (id ConsentID) String() string  { return string(id) }
func (id SubjectID) String() string  { return string(id) }
func (id EntityID) String() string   { return string(id) }

func (id TransferID) IsNil() bool { return id == "" }
func (id ConsentID) IsNil() bool  { return id == "" }
func (id SubjectID) IsNil() bool  { return id == "" }
func (id EntityID) IsNil() bool   { return id == "" }

// maxIDLength keeps ids within index-friendly bounds.
const maxIDLength = 128

func parseOpaque(s, label string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	if strings.ContainsAny(s, " \t\r\n/") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return s, nil
}
