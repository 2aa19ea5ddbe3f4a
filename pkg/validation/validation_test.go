package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hie-gateway/pkg/domain-errors"
)

type sample struct {
	SubjectID string   `json:"subjectId" validate:"notblank"`
	HolderID  string   `json:"hipId" validate:"required"`
	Requester string   `json:"hiuId" validate:"required,nefield=HolderID"`
	Types     []string `json:"dataTypes" validate:"max=2"`
	Status    string   `json:"status" validate:"omitempty,oneof=APPROVED DENIED"`
}

func TestValidate(t *testing.T) {
	valid := sample{SubjectID: "p-1", HolderID: "hip-1", Requester: "hiu-1"}

	t.Run("accepts a valid struct", func(t *testing.T) {
		require.NoError(t, Validate(valid))
	})

	tests := []struct {
		name    string
		mutate  func(*sample)
		message string
	}{
		{"blank subject", func(s *sample) { s.SubjectID = "   " }, "subjectId must not be blank"},
		{"missing holder", func(s *sample) { s.HolderID = "" }, "hipId is required"},
		{"same endpoints", func(s *sample) { s.Requester = s.HolderID }, "hiuId must differ from HolderID"},
		{"too many types", func(s *sample) { s.Types = []string{"a", "b", "c"} }, "dataTypes must be at most 2"},
		{"unknown status", func(s *sample) { s.Status = "MAYBE" }, "status must be one of [APPROVED DENIED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := Validate(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}
