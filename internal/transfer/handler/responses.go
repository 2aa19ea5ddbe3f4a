package handler

import (
	"time"

	"hie-gateway/internal/transfer/models"
)

type HealthInfoResponse struct {
	RequestID string `json:"requestId"`
	ConsentID string `json:"consentId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// TransferResponse is the status view of a transfer. The payload itself is
// never returned.
type TransferResponse struct {
	RequestID       string     `json:"requestId"`
	ConsentID       string     `json:"consentId"`
	SubjectID       string     `json:"subjectId"`
	HolderID        string     `json:"hipId"`
	RequesterID     string     `json:"hiuId"`
	Status          string     `json:"status"`
	DataStored      bool       `json:"dataStored"`
	ItemCount       int        `json:"itemCount"`
	ReceivedCount   int        `json:"receivedCount"`
	DataTypes       []string   `json:"dataTypes,omitempty"`
	RetryCount      int        `json:"retryCount"`
	MaxRetries      int        `json:"maxRetries"`
	WebhookAttempts int        `json:"webhookAttempts"`
	ForwardAttempts int        `json:"forwardAttempts"`
	LastError       *string    `json:"lastError,omitempty"`
	NextActionAt    *time.Time `json:"nextActionAt,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toTransferResponse(t *models.Transfer) TransferResponse {
	resp := TransferResponse{
		RequestID:       string(t.ID),
		ConsentID:       string(t.ConsentID),
		SubjectID:       string(t.SubjectID),
		HolderID:        string(t.SourceID),
		RequesterID:     string(t.DestinationID),
		Status:          string(t.Status),
		DataStored:      t.HasPayload(),
		ItemCount:       t.ItemCount,
		ReceivedCount:   t.ReceivedCount,
		DataTypes:       t.DataTypes,
		RetryCount:      t.RetryCount,
		MaxRetries:      t.MaxRetries,
		WebhookAttempts: t.WebhookAttempts,
		ForwardAttempts: t.ForwardAttempts,
		LastError:       t.LastError,
		ExpiresAt:       t.ExpiresAt,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if !t.Status.IsTerminal() {
		next := t.NextActionAt
		resp.NextActionAt = &next
	}
	return resp
}
