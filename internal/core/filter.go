package core

import (
	"math"
	"slices"
	"sort"
)

// DefaultEnumerationCap is the row limit of an enumeration-mode numeric
// filter when none is configured.
const DefaultEnumerationCap = 1000

// FilterCategorical keeps the rows whose value in field is one of allowed.
//
// A missing field skips the filter and every row passes. An empty allowed set
// yields an empty table: nothing was selected.
func FilterCategorical(t *Table, field string, allowed []string) (*Table, []Warning) {
	idx := t.FieldIndex(field)
	if idx < 0 {
		return t.Clone(), []Warning{missingField(StageFilter, field, "categorical filter")}
	}
	if len(allowed) == 0 {
		return t.Empty(), []Warning{{
			Code:    WarnEmptySelection,
			Stage:   StageFilter,
			Field:   field,
			Message: "no values selected",
		}}
	}

	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return t.where(func(row []Value) bool {
		v := row[idx]
		return !v.IsNull() && set[v.String()]
	}), nil
}

// FilterNumeric narrows rows on one numeric field.
//
// Fields listed in measures are filtered by threshold: the threshold is
// clamped to the column's [min, max] and rows strictly greater are kept.
// Other fields are filtered by enumeration and keep at most limit rows; a
// limit of zero or less means DefaultEnumerationCap.
// An empty table, a table without numeric fields, or a field that is missing
// or not numeric skips the filter.
func FilterNumeric(t *Table, f NumericFilter, measures []string, limit int) (*Table, []Warning) {
	numeric := t.NumericFields()
	if t.Len() == 0 || len(numeric) == 0 {
		return t.Clone(), []Warning{{
			Code:    WarnNoNumericField,
			Stage:   StageFilter,
			Message: "no numeric columns or no data, numeric filter skipped",
		}}
	}

	field := f.Field
	if field == "" {
		field = numeric[0]
	}
	idx := t.FieldIndex(field)
	if idx < 0 {
		return t.Clone(), []Warning{missingField(StageFilter, field, "numeric filter")}
	}
	if !t.IsNumeric(field) {
		return t.Clone(), []Warning{{
			Code:    WarnTypeMismatch,
			Stage:   StageFilter,
			Field:   field,
			Message: "column is not numeric, numeric filter skipped",
		}}
	}

	if slices.Contains(measures, field) {
		lo, hi, ok := columnRange(t, idx)
		if !ok {
			return t.Empty(), nil
		}
		threshold := lo
		if f.Threshold != nil {
			threshold = math.Min(math.Max(*f.Threshold, lo), hi)
		}
		return t.where(func(row []Value) bool {
			v, ok := row[idx].Float()
			return ok && v > threshold
		}), nil
	}

	if limit <= 0 {
		limit = DefaultEnumerationCap
	}
	values := f.Values
	if values == nil {
		values = DistinctNumbers(t, field)
	}
	set := make(map[float64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}

	var positions []int
	for i, row := range t.Rows {
		if len(positions) >= limit {
			break
		}
		if v, ok := row[idx].Float(); ok && set[v] {
			positions = append(positions, i)
		}
	}
	return t.subset(positions), nil
}

func columnRange(t *Table, idx int) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range t.Rows {
		if v, isNum := row[idx].Float(); isNum {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}

// DistinctValues returns the sorted distinct non-null values of a field as strings.
func DistinctValues(t *Table, field string) []string {
	idx := t.FieldIndex(field)
	if idx < 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, row := range t.Rows {
		v := row[idx]
		if v.IsNull() {
			continue
		}
		s := v.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// DistinctNumbers returns the sorted distinct numeric values of a field.
func DistinctNumbers(t *Table, field string) []float64 {
	idx := t.FieldIndex(field)
	if idx < 0 {
		return nil
	}
	seen := make(map[float64]bool)
	var out []float64
	for _, row := range t.Rows {
		if v, ok := row[idx].Float(); ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// ApplyFilters runs the categorical then the numeric filter. Nil filters are
// skipped; enumLimit caps an enumeration-mode numeric filter.
func ApplyFilters(t *Table, fields Fields, cat *CategoricalFilter, num *NumericFilter, enumLimit int) (*Table, []Warning) {
	var warnings []Warning
	out := t
	if cat != nil {
		field := cat.Field
		if field == "" {
			field = fields.Region
		}
		var w []Warning
		out, w = FilterCategorical(out, field, cat.Values)
		warnings = append(warnings, w...)
	}
	if num != nil {
		var w []Warning
		out, w = FilterNumeric(out, *num, fields.Measures(), enumLimit)
		warnings = append(warnings, w...)
	}
	if out == t {
		out = t.Clone()
	}
	return out, warnings
}
