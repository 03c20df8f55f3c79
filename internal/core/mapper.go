package core

import (
	"fmt"
	"sort"
)

// MapColumns renames the secondary table's fields onto primary field names.
//
// Entries are applied in secondary field order. A secondary field that is not
// mapped is dropped from the result. Invalid entries are rejected with a
// ValidationError and the remaining entries still apply:
//   - the target is not a primary field
//   - the source is not a secondary field
//   - the target was already claimed by an earlier secondary field
//
// The rename is one-to-one on the accepted entries, so UnmapColumns with the
// accepted mapping restores the original names.
func MapColumns(secondary, primary *Table, mapping FieldMapping) (*Table, []ValidationError) {
	var errs []ValidationError

	// Sources that do not exist are reported in a stable order.
	var unknown []string
	for src := range mapping {
		if !secondary.HasField(src) {
			unknown = append(unknown, src)
		}
	}
	sort.Strings(unknown)
	for _, src := range unknown {
		errs = append(errs, ValidationError{
			Field:   src,
			Value:   mapping[src],
			Code:    CodeUnknownSecondaryField,
			Message: "column not found in secondary dataset",
		})
	}

	var (
		positions []int
		names     []string
		claimed   = make(map[string]string)
	)
	for i, src := range secondary.Fields {
		dst, ok := mapping[src]
		if !ok {
			continue
		}
		if !primary.HasField(dst) {
			errs = append(errs, ValidationError{
				Field:   src,
				Value:   dst,
				Code:    CodeUnknownPrimaryField,
				Message: fmt.Sprintf("column %q not found in primary dataset", dst),
			})
			continue
		}
		if prev, dup := claimed[dst]; dup {
			errs = append(errs, ValidationError{
				Field:   src,
				Value:   dst,
				Code:    CodeDuplicateTarget,
				Message: fmt.Sprintf("column %q is already mapped from %q", dst, prev),
			})
			continue
		}
		claimed[dst] = src
		positions = append(positions, i)
		names = append(names, dst)
	}

	out := NewTable(names...)
	out.Rows = make([][]Value, len(secondary.Rows))
	for r, row := range secondary.Rows {
		mapped := make([]Value, len(positions))
		for j, p := range positions {
			mapped[j] = row[p]
		}
		out.Rows[r] = mapped
	}
	return out, errs
}

// Accepted returns the subset of mapping that MapColumns would apply.
func Accepted(secondary, primary *Table, mapping FieldMapping) FieldMapping {
	_, errs := MapColumns(NewTable(secondary.Fields...), NewTable(primary.Fields...), mapping)
	rejected := make(map[string]bool, len(errs))
	for _, e := range errs {
		rejected[e.Field] = true
	}
	out := make(FieldMapping, len(mapping))
	for src, dst := range mapping {
		if !rejected[src] {
			out[src] = dst
		}
	}
	return out
}

// UnmapColumns reverses a rename produced with mapping.
// Fields that no mapping entry targets keep their name.
func UnmapColumns(t *Table, mapping FieldMapping) *Table {
	reverse := make(map[string]string, len(mapping))
	for src, dst := range mapping {
		reverse[dst] = src
	}
	out := t.Clone()
	for i, f := range out.Fields {
		if src, ok := reverse[f]; ok {
			out.Fields[i] = src
		}
	}
	return out
}
