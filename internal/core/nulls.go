package core

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ResolveNulls applies the declared null policies in declaration order.
//
// Each policy reads the table left by the previous one: a DropRow shrinks the
// table before any later FillMean computes its mean. Fields without a policy
// are left as they are. Fill policies are no-ops on a field with no non-null
// values.
func ResolveNulls(t *Table, policies []FieldPolicy) (*Table, []Warning) {
	out := t.Clone()
	var warnings []Warning

	for _, p := range policies {
		idx := out.FieldIndex(p.Field)
		if idx < 0 {
			warnings = append(warnings, missingField(StageNulls, p.Field, "null policy"))
			continue
		}

		switch p.Policy {
		case DropRow:
			out = out.where(func(row []Value) bool { return !row[idx].IsNull() })

		case FillMean:
			if !out.IsNumeric(p.Field) {
				warnings = append(warnings, Warning{
					Code:    WarnTypeMismatch,
					Stage:   StageNulls,
					Field:   p.Field,
					Message: "fill_mean requires a numeric column, policy ignored",
				})
				continue
			}
			if mean, ok := columnMean(out, idx); ok {
				fillNulls(out, idx, NumberValue(mean))
			}

		case FillMode:
			if mode, ok := columnMode(out, idx); ok {
				fillNulls(out, idx, mode)
			}

		default:
			warnings = append(warnings, Warning{
				Code:    WarnTypeMismatch,
				Stage:   StageNulls,
				Field:   p.Field,
				Message: fmt.Sprintf("unknown null policy %q", p.Policy),
			})
		}
	}

	return out, warnings
}

func fillNulls(t *Table, idx int, v Value) {
	for _, row := range t.Rows {
		if row[idx].IsNull() {
			row[idx] = v
		}
	}
}

func columnMean(t *Table, idx int) (float64, bool) {
	var xs []float64
	for _, row := range t.Rows {
		if f, ok := row[idx].Float(); ok {
			xs = append(xs, f)
		}
	}
	if len(xs) == 0 {
		return 0, false
	}
	return stat.Mean(xs, nil), true
}

// columnMode returns the most frequent non-null value.
// Ties go to the value seen first in row order.
func columnMode(t *Table, idx int) (Value, bool) {
	counts := make(map[string]int)
	var order []Value
	for _, row := range t.Rows {
		v := row[idx]
		if v.IsNull() {
			continue
		}
		k := v.key()
		if counts[k] == 0 {
			order = append(order, v)
		}
		counts[k]++
	}
	if len(order) == 0 {
		return Value{}, false
	}

	best := order[0]
	for _, v := range order[1:] {
		if counts[v.key()] > counts[best.key()] {
			best = v
		}
	}
	return best, true
}

// NullColumn describes one field that still contains nulls.
type NullColumn struct {
	Field    string       `json:"field"`
	Nulls    int          `json:"nulls"`
	Numeric  bool         `json:"numeric"`
	Policies []NullPolicy `json:"policies"`
}

// NullSummary lists the fields containing nulls, in table order, with the
// policies each one accepts.
func NullSummary(t *Table) []NullColumn {
	var out []NullColumn
	for _, f := range t.Fields {
		n := t.NullCount(f)
		if n == 0 {
			continue
		}
		col := NullColumn{Field: f, Nulls: n, Numeric: t.IsNumeric(f)}
		if col.Numeric {
			col.Policies = []NullPolicy{DropRow, FillMean, FillMode}
		} else {
			col.Policies = []NullPolicy{DropRow, FillMode}
		}
		out = append(out, col)
	}
	return out
}
