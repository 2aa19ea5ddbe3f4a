// Package dispatch performs outbound webhook calls to holders and requesters.
//
// A Dispatcher makes exactly one attempt per call. Retry and backoff belong
// to the scheduler, which records every failure on the transfer.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"hie-gateway/internal/transfer/codec"
	id "hie-gateway/pkg/domain"
)

//go:generate mockgen -source=dispatch.go -destination=mocks/mocks.go -package=mocks Dispatcher

// Kind names the webhook event.
type Kind string

const (
	// KindRequest asks the holder to assemble and submit the bundle.
	KindRequest Kind = "health-info.request"
	// KindDeliver carries the decrypted bundle to the requester.
	KindDeliver Kind = "health-info.deliver"
)

// Notification is the body of one webhook call.
type Notification struct {
	Kind           Kind          `json:"event"`
	TransferID     id.TransferID `json:"transferId"`
	ConsentID      id.ConsentID  `json:"consentId"`
	SubjectID      id.SubjectID  `json:"subjectId"`
	CareContextIDs []string      `json:"careContextIds,omitempty"`
	DataTypes      []string      `json:"dataTypes,omitempty"`
	Bundle         *codec.Bundle `json:"bundle,omitempty"`
}

// Dispatcher delivers a notification to an entity.
type Dispatcher interface {
	Dispatch(ctx context.Context, target id.EntityID, n Notification) error
}

// Error describes a failed dispatch. Timeouts, connection errors, non-2xx
// responses and open circuits are all reported this way.
type Error struct {
	Target     id.EntityID
	Reason     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dispatch to %s: %s (status %d)", e.Target, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("dispatch to %s: %s", e.Target, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Reason extracts the failure reason for recording on a transfer.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
