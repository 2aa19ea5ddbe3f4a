package handler

import (
	"strings"

	"hie-gateway/internal/consent/models"
	id "hie-gateway/pkg/domain"
	dErrors "hie-gateway/pkg/domain-errors"
	limits "hie-gateway/pkg/platform/validation"
	"hie-gateway/pkg/validation"
)

type PurposeDTO struct {
	Code string `json:"code" validate:"notblank"`
	Text string `json:"text"`
}

type InitiateRequest struct {
	SubjectID string     `json:"subjectId" validate:"notblank"`
	HolderID  string     `json:"holderId" validate:"notblank"`
	Purpose   PurposeDTO `json:"purpose"`
}

func (r *InitiateRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.HolderID = strings.TrimSpace(r.HolderID)
	r.Purpose.Code = strings.ToUpper(strings.TrimSpace(r.Purpose.Code))
	r.Purpose.Text = strings.TrimSpace(r.Purpose.Text)
}

func (r *InitiateRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if err := limits.CheckStringLength("purpose.code", r.Purpose.Code, limits.MaxPurposeCodeLength); err != nil {
		return err
	}
	if err := limits.CheckStringLength("purpose.text", r.Purpose.Text, limits.MaxPurposeTextLength); err != nil {
		return err
	}
	if _, err := id.ParseSubjectID(r.SubjectID); err != nil {
		return err
	}
	_, err := id.ParseEntityID(r.HolderID)
	return err
}

func (r *InitiateRequest) purpose() models.Purpose {
	return models.Purpose{Code: r.Purpose.Code, Text: r.Purpose.Text}
}

type NotifyRequest struct {
	ConsentRequestID string `json:"consentRequestId" validate:"notblank"`
	Status           string `json:"status" validate:"notblank"`

	parsed models.Status
}

func (r *NotifyRequest) Normalize() {
	r.ConsentRequestID = strings.TrimSpace(r.ConsentRequestID)
}

func (r *NotifyRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "status must be one of PENDING, APPROVED, DENIED, REVOKED")
	}
	r.parsed = st
	return nil
}
