// Package core provides the reconciliation pipeline for sales CSV data.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"time"
)

// FieldMapping maps secondary field names to primary field names.
type FieldMapping map[string]string

// NullPolicy is the strategy applied to the nulls of one field.
type NullPolicy string

const (
	DropRow  NullPolicy = "drop_row"
	FillMean NullPolicy = "fill_mean"
	FillMode NullPolicy = "fill_mode"
)

// FieldPolicy binds a null policy to a field.
type FieldPolicy struct {
	Field  string     `json:"field" yaml:"field" validate:"required"`
	Policy NullPolicy `json:"policy" yaml:"policy" validate:"required,oneof=drop_row fill_mean fill_mode"`
}

// Fields names the designated columns the filters, rules and reports rely on.
type Fields struct {
	Region      string `json:"region" yaml:"region"`
	Dealer      string `json:"dealer" yaml:"dealer"`
	InvoiceDate string `json:"invoiceDate" yaml:"invoice_date"`
	SalesAmount string `json:"salesAmount" yaml:"sales_amount"`
	Quantity    string `json:"quantity" yaml:"quantity"`
}

// DefaultFields returns the column names used by the standard sales export.
func DefaultFields() Fields {
	return Fields{
		Region:      "State",
		Dealer:      "Dealer",
		InvoiceDate: "Inv Date",
		SalesAmount: "Sales Amt",
		Quantity:    "Qty",
	}
}

// Measures returns the primary measure fields, which filter by threshold.
func (f Fields) Measures() []string {
	return []string{f.SalesAmount, f.Quantity}
}

// Critical returns the fields that must never be null.
func (f Fields) Critical() []string {
	return []string{f.Region, f.Dealer, f.InvoiceDate}
}

// withDefaults fills unset names from DefaultFields.
func (f Fields) withDefaults() Fields {
	d := DefaultFields()
	if f.Region == "" {
		f.Region = d.Region
	}
	if f.Dealer == "" {
		f.Dealer = d.Dealer
	}
	if f.InvoiceDate == "" {
		f.InvoiceDate = d.InvoiceDate
	}
	if f.SalesAmount == "" {
		f.SalesAmount = d.SalesAmount
	}
	if f.Quantity == "" {
		f.Quantity = d.Quantity
	}
	return f
}

// CategoricalFilter keeps rows whose grouping field is in Values.
// An empty Field means the designated region field.
type CategoricalFilter struct {
	Field  string   `json:"field,omitempty" yaml:"field"`
	Values []string `json:"values" yaml:"values"`
}

// NumericFilter narrows rows on one numeric field.
//
// Measure fields use threshold mode: rows strictly above Threshold are kept
// (nil means the column minimum). Other fields use enumeration mode: rows whose
// value is in Values are kept (nil means every distinct value).
type NumericFilter struct {
	Field     string    `json:"field,omitempty" yaml:"field"`
	Threshold *float64  `json:"threshold,omitempty" yaml:"threshold"`
	Values    []float64 `json:"values,omitempty" yaml:"values"`
}

// Request is one pipeline invocation. Tables are read, never modified.
type Request struct {
	Primary   *Table
	Secondary *Table

	Mapping  FieldMapping
	Policies []FieldPolicy

	// Nil filters are not applied.
	Categorical *CategoricalFilter
	Numeric     *NumericFilter

	Rules []RuleID
}

// Result is the value handed to reporting, export and forecasting consumers.
// It replaces any ambient session state: callers pass it explicitly.
type Result struct {
	RunID string `json:"runId"`

	Mapped   *Table `json:"mapped,omitempty"`
	Cleaned  *Table `json:"cleaned,omitempty"`
	Merged   *Table `json:"merged"`
	Filtered *Table `json:"filtered"`

	MappingErrors []ValidationError `json:"mappingErrors,omitempty"`
	Warnings      []Warning         `json:"warnings,omitempty"`
	Exceptions    RuleResults       `json:"exceptions"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Stage names used in warnings, logs and metrics.
const (
	StageIngest     = "ingest"
	StageMap        = "map"
	StageNulls      = "nulls"
	StageMerge      = "merge"
	StageFilter     = "filter"
	StageExceptions = "exceptions"
)

// Observer receives pipeline measurements. Implementations must be safe
// for concurrent use because one observer serves every request.
type Observer interface {
	StageCompleted(stage string, d time.Duration)
	RuleEvaluated(result string, rows int)
	RunCompleted(rows int, warnings int)
}

type nopObserver struct{}

func (nopObserver) StageCompleted(string, time.Duration) {}
func (nopObserver) RuleEvaluated(string, int)            {}
func (nopObserver) RunCompleted(int, int)                {}
