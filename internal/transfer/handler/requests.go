package handler

import (
	"strings"

	"hie-gateway/internal/transfer/service"
	id "hie-gateway/pkg/domain"
	platformstrings "hie-gateway/pkg/platform/strings"
	limits "hie-gateway/pkg/platform/validation"
	"hie-gateway/pkg/validation"
)

type HealthInfoRequest struct {
	SubjectID      string   `json:"subjectId" validate:"notblank"`
	HolderID       string   `json:"hipId" validate:"notblank"`
	RequesterID    string   `json:"hiuId" validate:"notblank,nefield=HolderID"`
	ConsentID      string   `json:"consentId"`
	CareContextIDs []string `json:"careContextIds"`
	DataTypes      []string `json:"dataTypes" validate:"min=1"`
}

func (r *HealthInfoRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.HolderID = strings.TrimSpace(r.HolderID)
	r.RequesterID = strings.TrimSpace(r.RequesterID)
	r.ConsentID = strings.TrimSpace(r.ConsentID)
	r.DataTypes = platformstrings.DedupeAndTrimUpper(r.DataTypes)
	r.CareContextIDs = platformstrings.DedupeAndTrim(r.CareContextIDs)
}

func (r *HealthInfoRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if err := limits.CheckSliceCount("dataTypes", len(r.DataTypes), limits.MaxDataTypes); err != nil {
		return err
	}
	if err := limits.CheckEachStringLength("dataTypes", r.DataTypes, limits.MaxDataTypeLength); err != nil {
		return err
	}
	if err := limits.CheckSliceCount("careContextIds", len(r.CareContextIDs), limits.MaxCareContexts); err != nil {
		return err
	}
	if err := limits.CheckEachStringLength("careContextIds", r.CareContextIDs, limits.MaxCareContextLength); err != nil {
		return err
	}
	if _, err := id.ParseSubjectID(r.SubjectID); err != nil {
		return err
	}
	if _, err := id.ParseEntityID(r.HolderID); err != nil {
		return err
	}
	if _, err := id.ParseEntityID(r.RequesterID); err != nil {
		return err
	}
	if r.ConsentID != "" {
		if _, err := id.ParseConsentID(r.ConsentID); err != nil {
			return err
		}
	}
	return nil
}

func (r *HealthInfoRequest) params() service.RequestParams {
	return service.RequestParams{
		SubjectID:      id.SubjectID(r.SubjectID),
		HolderID:       id.EntityID(r.HolderID),
		RequesterID:    id.EntityID(r.RequesterID),
		ConsentID:      id.ConsentID(r.ConsentID),
		CareContextIDs: r.CareContextIDs,
		DataTypes:      r.DataTypes,
	}
}
