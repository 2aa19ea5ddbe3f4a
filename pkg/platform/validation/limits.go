package validation

import (
	"fmt"

	dErrors "hie-gateway/pkg/domain-errors"
)

// Request slice limits
const (
	// MaxDataTypes is the maximum number of record types per health-information request.
	MaxDataTypes = 20

	// MaxCareContexts is the maximum number of care contexts per request.
	MaxCareContexts = 100
)

// String element length limits
const (
	// MaxDataTypeLength is the maximum length of a record type such as LAB_REPORT.
	MaxDataTypeLength = 64

	// MaxCareContextLength is the maximum length of a care context reference.
	MaxCareContextLength = 128

	// MaxPurposeCodeLength is the maximum length of a consent purpose code.
	MaxPurposeCodeLength = 64

	// MaxPurposeTextLength is the maximum length of a consent purpose description.
	MaxPurposeTextLength = 512
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates every element of values against max.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if err := CheckStringLength(fieldName, v, max); err != nil {
			return err
		}
	}
	return nil
}
