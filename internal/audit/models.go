package audit

import (
	"time"

	id "hie-gateway/pkg/domain"
)

// Event records one lifecycle step of a transfer or consent. It carries
// identifiers and statuses only, never payload content.
type Event struct {
	Timestamp  time.Time     `json:"timestamp"`
	Action     Action        `json:"action"`
	TransferID id.TransferID `json:"transferId,omitempty"`
	ConsentID  id.ConsentID  `json:"consentId,omitempty"`
	SubjectID  id.SubjectID  `json:"subjectId,omitempty"`
	EntityID   id.EntityID   `json:"entityId,omitempty"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
}

// Key groups events of the same aggregate; transfer events win over consent.
func (e Event) Key() string {
	if e.TransferID != "" {
		return string(e.TransferID)
	}
	return string(e.ConsentID)
}

type Action string

const (
	ActionTransferCreated    Action = "transfer_created"
	ActionTransferForwarded  Action = "transfer_forwarded"
	ActionTransferAcked      Action = "transfer_acknowledged"
	ActionPayloadReceived    Action = "payload_received"
	ActionDeliveryFailed     Action = "delivery_failed"
	ActionForwardFailed      Action = "forward_failed"
	ActionHolderTimeout      Action = "holder_timeout"
	ActionTransferDelivered  Action = "transfer_delivered"
	ActionTransferFailed     Action = "transfer_failed"
	ActionTransferExpired    Action = "transfer_expired"
	ActionTransferRedriven   Action = "transfer_redriven"
	ActionConsentInitiated   Action = "consent_initiated"
	ActionConsentStatusSet   Action = "consent_status_changed"
	ActionSubjectAutoCreated Action = "subject_auto_created"
)
