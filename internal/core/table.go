package core

// table.go defines the in-memory table every pipeline stage consumes and produces.
//
// A Table is an ordered list of field names plus rows of typed values aligned
// with those fields. Stages never mutate a table they received: they build a
// new one (see Clone and subset) so each stage owns its output exclusively.

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind identifies the dynamic type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindDate
)

// Value is a single typed table cell.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Time time.Time
}

// NullValue returns a missing value.
func NullValue() Value { return Value{} }

// NumberValue wraps a float.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// TextValue wraps a string.
func TextValue(s string) Value { return Value{Kind: KindText, Str: s} }

// DateValue wraps a timestamp.
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

// IsNull reports whether the value is missing.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float returns the numeric payload. ok is false for non-numbers.
func (v Value) Float() (f float64, ok bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// String renders the value the way it is written back to CSV.
// Null renders as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindText:
		return v.Str
	case KindDate:
		return formatDate(v.Time)
	default:
		return ""
	}
}

// key returns an identity string used for equality, grouping and modes.
// Values of different kinds never share a key.
func (v Value) key() string {
	switch v.Kind {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindText:
		return "s:" + v.Str
	case KindDate:
		return "d:" + v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return "null"
	}
}

// Equal reports whether two values are identical in kind and payload.
func (v Value) Equal(o Value) bool { return v.key() == o.key() }

// MarshalJSON encodes numbers as JSON numbers, null as null and everything
// else as its string form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return json.Marshal(v.Num)
	default:
		return json.Marshal(v.String())
	}
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// Table is an ordered set of rows sharing one field list.
type Table struct {
	Fields []string  `json:"fields"`
	Rows   [][]Value `json:"rows"`
}

// NewTable creates an empty table with the given fields.
func NewTable(fields ...string) *Table {
	f := make([]string, len(fields))
	copy(f, fields)
	return &Table{Fields: f, Rows: [][]Value{}}
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// FieldIndex returns the position of a field, or -1 if absent.
func (t *Table) FieldIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, f := range t.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// HasField reports whether the table carries the named field.
func (t *Table) HasField(name string) bool {
	return t.FieldIndex(name) >= 0
}

// AppendRow adds a row. Short rows are padded with nulls; extra values are dropped.
func (t *Table) AppendRow(values ...Value) {
	row := make([]Value, len(t.Fields))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// Column returns a copy of the values in the named field, or nil if absent.
func (t *Table) Column(name string) []Value {
	idx := t.FieldIndex(name)
	if idx < 0 {
		return nil
	}
	col := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		col[i] = row[idx]
	}
	return col
}

// IsNumeric reports whether every non-null value in the field is a number.
// A field holding only nulls counts as numeric.
func (t *Table) IsNumeric(name string) bool {
	idx := t.FieldIndex(name)
	if idx < 0 {
		return false
	}
	for _, row := range t.Rows {
		if k := row[idx].Kind; k != KindNull && k != KindNumber {
			return false
		}
	}
	return true
}

// NumericFields returns the numeric fields in table order.
func (t *Table) NumericFields() []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, f := range t.Fields {
		if t.IsNumeric(f) {
			out = append(out, f)
		}
	}
	return out
}

// NullCount returns how many values in the field are null.
func (t *Table) NullCount(name string) int {
	idx := t.FieldIndex(name)
	if idx < 0 {
		return 0
	}
	n := 0
	for _, row := range t.Rows {
		if row[idx].IsNull() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := NewTable(t.Fields...)
	out.Rows = make([][]Value, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]Value(nil), row...)
	}
	return out
}

// Empty returns a table with the same fields and no rows.
func (t *Table) Empty() *Table {
	return NewTable(t.Fields...)
}

// subset copies the rows at the given positions into a new table.
func (t *Table) subset(positions []int) *Table {
	out := NewTable(t.Fields...)
	out.Rows = make([][]Value, 0, len(positions))
	for _, p := range positions {
		out.Rows = append(out.Rows, append([]Value(nil), t.Rows[p]...))
	}
	return out
}

// where keeps the rows for which keep returns true.
func (t *Table) where(keep func(row []Value) bool) *Table {
	var positions []int
	for i, row := range t.Rows {
		if keep(row) {
			positions = append(positions, i)
		}
	}
	return t.subset(positions)
}

// rowKey identifies a full row for duplicate detection.
func rowKey(row []Value) string {
	b := make([]byte, 0, len(row)*8)
	for i, v := range row {
		if i > 0 {
			b = append(b, 0x1f)
		}
		b = append(b, v.key()...)
	}
	return string(b)
}

// Records renders the table as CSV records, header first.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Fields...))
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = v.String()
		}
		out = append(out, rec)
	}
	return out
}
