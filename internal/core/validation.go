package core

// validation.go defines the non-fatal problems pipeline stages report.
//
// Nothing a stage finds in the data aborts the run. Rejected mapping entries
// come back as ValidationErrors; skipped steps and empty selections come back
// as Warnings. Both carry a code so the UI and support can refer to them.

import "fmt"

// Mapping validation codes.
const (
	CodeUnknownPrimaryField   = "VAL010"
	CodeUnknownSecondaryField = "VAL011"
	CodeDuplicateTarget       = "VAL012"
)

// ValidationError represents a rejected entry of a caller declaration.
type ValidationError struct {
	Field   string `json:"field"`           // Declared field name
	Value   string `json:"value,omitempty"` // The rejected value
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// WarningCode classifies a warning.
type WarningCode string

const (
	WarnEmptySelection  WarningCode = "EMPTY_SELECTION"
	WarnMissingField    WarningCode = "MISSING_FIELD"
	WarnTypeMismatch    WarningCode = "TYPE_MISMATCH"
	WarnNoNumericField  WarningCode = "NO_NUMERIC_FIELD"
	WarnUnparseableDate WarningCode = "UNPARSEABLE_VALUE"
)

// Warning reports a step that was skipped or selected nothing.
type Warning struct {
	Code    WarningCode `json:"code"`
	Stage   string      `json:"stage"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Field != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", w.Stage, w.Field, w.Message, w.Code)
	}
	return fmt.Sprintf("[%s] %s (%s)", w.Stage, w.Message, w.Code)
}

func missingField(stage, field, what string) Warning {
	return Warning{
		Code:    WarnMissingField,
		Stage:   stage,
		Field:   field,
		Message: fmt.Sprintf("field %q not found, %s skipped", field, what),
	}
}
