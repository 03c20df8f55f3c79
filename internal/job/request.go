// Package job holds the caller's declaration for one pipeline run and its
// validation. The HTTP API decodes it from JSON, the batch CLI from YAML.
package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/report"
)

// Request is everything a run needs except the two CSV files.
type Request struct {
	Mapping     core.FieldMapping       `json:"mapping,omitempty" yaml:"mapping"`
	Policies    []core.FieldPolicy      `json:"policies,omitempty" yaml:"policies" validate:"dive"`
	Categorical *core.CategoricalFilter `json:"categorical,omitempty" yaml:"categorical"`
	Numeric     *core.NumericFilter     `json:"numeric,omitempty" yaml:"numeric"`
	Rules       []core.RuleID           `json:"rules,omitempty" yaml:"rules" validate:"dive,rule"`
	Reports     []report.ID             `json:"reports,omitempty" yaml:"reports" validate:"dive,report"`
}

// Pipeline builds the core request for the given tables.
func (rr Request) Pipeline(primary, secondary *core.Table) core.Request {
	return core.Request{
		Primary:     primary,
		Secondary:   secondary,
		Mapping:     rr.Mapping,
		Policies:    rr.Policies,
		Categorical: rr.Categorical,
		Numeric:     rr.Numeric,
		Rules:       rr.Rules,
	}
}

// ErrInvalidRequest is returned when the request document cannot be decoded.
var ErrInvalidRequest = errors.New("invalid request")

// ValidationError lists every field of a Request that failed validation.
type ValidationError struct {
	Fields []core.ValidationError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterValidation("rule", func(fl validator.FieldLevel) bool {
		_, ok := core.GetRule(core.RuleID(fl.Field().String()))
		return ok
	})
	v.RegisterValidation("report", func(fl validator.FieldLevel) bool {
		id := report.ID(fl.Field().String())
		for _, info := range report.Catalog() {
			if info.ID == id {
				return true
			}
		}
		return false
	})

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request against its declared constraints.
// It returns a *ValidationError listing every failing field.
func (rr Request) Validate() error {
	err := validate.Struct(rr)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, core.ValidationError{
			Field:   fieldPath(fe),
			Value:   fmt.Sprint(fe.Value()),
			Code:    "REQ002",
			Message: describe(fe),
		})
	}
	return out
}

// fieldPath returns the JSON path of a failing field, e.g. "policies[0].policy".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "rule":
		return fmt.Sprintf("%s: unknown exception rule %q", field, fe.Value())
	case "report":
		return fmt.Sprintf("%s: unknown report %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// DecodeJSON parses a JSON request document, rejecting unknown keys. Empty
// input is an empty request. The result is not validated.
func DecodeJSON(data []byte) (Request, error) {
	var rr Request
	if len(bytes.TrimSpace(data)) == 0 {
		return rr, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rr); err != nil {
		return rr, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return rr, nil
}

// DecodeYAML parses and validates a YAML request document, rejecting unknown
// keys. Empty input is an empty request.
func DecodeYAML(data []byte) (Request, error) {
	var rr Request
	if len(bytes.TrimSpace(data)) == 0 {
		return rr, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rr); err != nil {
		return rr, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return rr, rr.Validate()
}
