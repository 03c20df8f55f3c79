package core

// exceptions.go implements the data-quality rules run against the filtered table.
//
// Every selected rule reads the same input table; no rule sees another rule's
// output. A rule whose designated fields are absent is skipped with a warning
// and contributes no result. Null cells never satisfy a numeric comparison.

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Result titles.
const (
	ResultNegatives     = "Negative Sales or Qty"
	ResultDuplicates    = "Duplicate Rows"
	ResultMissingFields = "Missing Critical Fields"
	ResultInvalidDates  = "Future/Invalid Dates"
	ResultMismatch      = "Zero Qty / Non-zero Sales Mismatch"
)

// OutlierResultName returns the result title for the outliers of one field.
func OutlierResultName(field string) string {
	return "Outliers in " + field
}

// IQRMultiplier scales the interquartile range into outlier fences.
const IQRMultiplier = 1.5

func init() {
	RegisterRule(RuleDefinition{
		Info:     RuleInfo{ID: RuleNegatives, Label: "Negative Sales or Quantity", Order: 1},
		Evaluate: negativeValues,
	})
	RegisterRule(RuleDefinition{
		Info:     RuleInfo{ID: RuleDuplicates, Label: "Duplicate Rows", Order: 2},
		Evaluate: duplicateRows,
	})
	RegisterRule(RuleDefinition{
		Info:     RuleInfo{ID: RuleMissingFields, Label: "Missing Critical Fields", Order: 3},
		Evaluate: missingCritical,
	})
	RegisterRule(RuleDefinition{
		Info:     RuleInfo{ID: RuleOutliers, Label: "Outliers in Sales Amt or Qty", Order: 4},
		Evaluate: outliers,
	})
	RegisterRule(RuleDefinition{
		Info:     RuleInfo{ID: RuleInvalidDates, Label: "Invalid Invoice Dates", Order: 5},
		Evaluate: futureDates,
	})
	RegisterRule(RuleDefinition{
		Info:     RuleInfo{ID: RuleMismatch, Label: "Zero Qty with non-zero Sales or vice versa", Order: 6},
		Evaluate: quantitySalesMismatch,
	})
}

// ExceptionEngine evaluates the selected rules against one table.
type ExceptionEngine struct {
	fields Fields
	now    func() time.Time
}

// NewExceptionEngine creates an engine for the designated fields.
// now supplies the reference time for date checks; nil means time.Now.
func NewExceptionEngine(fields Fields, now func() time.Time) *ExceptionEngine {
	if now == nil {
		now = time.Now
	}
	return &ExceptionEngine{fields: fields.withDefaults(), now: now}
}

// Run evaluates each selected rule once, in registry order.
// An empty selection returns no results and an EMPTY_SELECTION warning.
func (e *ExceptionEngine) Run(t *Table, selected []RuleID) (RuleResults, []Warning) {
	if len(selected) == 0 {
		return RuleResults{}, []Warning{{
			Code:    WarnEmptySelection,
			Stage:   StageExceptions,
			Message: "no exception rules selected",
		}}
	}

	want := make(map[RuleID]bool, len(selected))
	var warnings []Warning
	for _, id := range selected {
		if _, ok := GetRule(id); !ok {
			warnings = append(warnings, Warning{
				Code:    WarnMissingField,
				Stage:   StageExceptions,
				Message: fmt.Sprintf("unknown rule %q skipped", id),
			})
			continue
		}
		want[id] = true
	}

	in := ruleInput{table: t, fields: e.fields, now: e.now()}
	results := RuleResults{}
	for _, def := range AllRules() {
		if !want[def.Info.ID] {
			continue
		}
		rs, w := def.Evaluate(in)
		results = append(results, rs...)
		warnings = append(warnings, w...)
	}
	return results, warnings
}

// requireFields returns a warning per absent field.
func requireFields(t *Table, rule RuleID, fields ...string) []Warning {
	var out []Warning
	for _, f := range fields {
		if !t.HasField(f) {
			out = append(out, missingField(StageExceptions, f, fmt.Sprintf("rule %s", rule)))
		}
	}
	return out
}

func result(rule RuleID, name string, t *Table) []RuleResult {
	return []RuleResult{{Rule: rule, Name: name, Table: t}}
}

// negativeValues flags rows with a negative sales amount or quantity.
func negativeValues(in ruleInput) ([]RuleResult, []Warning) {
	sales, qty := in.fields.SalesAmount, in.fields.Quantity
	if w := requireFields(in.table, RuleNegatives, sales, qty); w != nil {
		return nil, w
	}
	si, qi := in.table.FieldIndex(sales), in.table.FieldIndex(qty)

	flagged := in.table.where(func(row []Value) bool {
		return lessThan(row[si], 0) || lessThan(row[qi], 0)
	})
	return result(RuleNegatives, ResultNegatives, flagged), nil
}

// duplicateRows flags every repeat of an earlier identical row.
func duplicateRows(in ruleInput) ([]RuleResult, []Warning) {
	seen := make(map[string]bool, in.table.Len())
	flagged := in.table.where(func(row []Value) bool {
		k := rowKey(row)
		if seen[k] {
			return true
		}
		seen[k] = true
		return false
	})
	return result(RuleDuplicates, ResultDuplicates, flagged), nil
}

// missingCritical flags rows with a null in any critical field.
func missingCritical(in ruleInput) ([]RuleResult, []Warning) {
	critical := in.fields.Critical()
	if w := requireFields(in.table, RuleMissingFields, critical...); w != nil {
		return nil, w
	}
	idx := make([]int, len(critical))
	for i, f := range critical {
		idx[i] = in.table.FieldIndex(f)
	}

	flagged := in.table.where(func(row []Value) bool {
		for _, i := range idx {
			if row[i].IsNull() {
				return true
			}
		}
		return false
	})
	return result(RuleMissingFields, ResultMissingFields, flagged), nil
}

// outliers flags values outside the IQR fences, separately for the sales
// amount and the quantity field.
func outliers(in ruleInput) ([]RuleResult, []Warning) {
	var (
		results  []RuleResult
		warnings []Warning
	)
	for _, field := range in.fields.Measures() {
		if w := requireFields(in.table, RuleOutliers, field); w != nil {
			warnings = append(warnings, w...)
			continue
		}
		if !in.table.IsNumeric(field) {
			warnings = append(warnings, Warning{
				Code:    WarnTypeMismatch,
				Stage:   StageExceptions,
				Field:   field,
				Message: "column is not numeric, outlier check skipped",
			})
			continue
		}
		results = append(results, result(RuleOutliers, OutlierResultName(field), OutliersIn(in.table, field))...)
	}
	return results, warnings
}

// OutliersIn returns the rows whose value in field lies outside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Quartiles use linear interpolation over the
// non-null values.
func OutliersIn(t *Table, field string) *Table {
	idx := t.FieldIndex(field)
	if idx < 0 {
		return t.Empty()
	}

	var xs []float64
	for _, row := range t.Rows {
		if f, ok := row[idx].Float(); ok {
			xs = append(xs, f)
		}
	}
	if len(xs) == 0 {
		return t.Empty()
	}
	sort.Float64s(xs)

	q1, q3 := Quantile(xs, 0.25), Quantile(xs, 0.75)
	iqr := q3 - q1
	lo, hi := q1-IQRMultiplier*iqr, q3+IQRMultiplier*iqr

	return t.where(func(row []Value) bool {
		f, ok := row[idx].Float()
		return ok && (f < lo || f > hi)
	})
}

// Quantile returns the p-quantile of sorted values using linear interpolation
// between the closest ranks: position (n-1)*p.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// futureDates flags invoices dated after now. Values that do not parse as
// dates are treated as null and never flagged.
func futureDates(in ruleInput) ([]RuleResult, []Warning) {
	field := in.fields.InvoiceDate
	if w := requireFields(in.table, RuleInvalidDates, field); w != nil {
		return nil, w
	}
	idx := in.table.FieldIndex(field)

	flagged := in.table.Empty()
	unparseable := 0
	for _, row := range in.table.Rows {
		v := row[idx]
		if v.IsNull() {
			continue
		}
		d, ok := AsDate(v)
		if !ok {
			unparseable++
			continue
		}
		if d.After(in.now) {
			out := append([]Value(nil), row...)
			out[idx] = DateValue(d)
			flagged.Rows = append(flagged.Rows, out)
		}
	}

	var warnings []Warning
	if unparseable > 0 {
		warnings = append(warnings, Warning{
			Code:    WarnUnparseableDate,
			Stage:   StageExceptions,
			Field:   field,
			Message: fmt.Sprintf("%d value(s) could not be parsed as dates and were treated as null", unparseable),
		})
	}
	return result(RuleInvalidDates, ResultInvalidDates, flagged), warnings
}

// quantitySalesMismatch flags a zero quantity with a non-zero amount, or a
// zero amount with a non-zero quantity.
func quantitySalesMismatch(in ruleInput) ([]RuleResult, []Warning) {
	sales, qty := in.fields.SalesAmount, in.fields.Quantity
	if w := requireFields(in.table, RuleMismatch, sales, qty); w != nil {
		return nil, w
	}
	si, qi := in.table.FieldIndex(sales), in.table.FieldIndex(qty)

	flagged := in.table.where(func(row []Value) bool {
		return zeroAgainstNonZero(row[qi], row[si]) || zeroAgainstNonZero(row[si], row[qi])
	})
	return result(RuleMismatch, ResultMismatch, flagged), nil
}

func lessThan(v Value, bound float64) bool {
	f, ok := v.Float()
	return ok && f < bound
}

// zeroAgainstNonZero reports a == 0 and b != 0. A null a is never zero; a
// null b is never equal to zero either.
func zeroAgainstNonZero(a, b Value) bool {
	fa, okA := a.Float()
	fb, okB := b.Float()
	return okA && fa == 0 && (!okB || fb != 0)
}
