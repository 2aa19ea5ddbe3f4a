package handler

import "time"

type ConsentResponse struct {
	ConsentRequestID string     `json:"consentRequestId"`
	Status           string     `json:"status"`
	SubjectID        string     `json:"subjectId,omitempty"`
	HolderID         string     `json:"holderId,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}
