package core

// Merge places the cleaned secondary table beside the primary table.
//
// Rows are paired by position, not by key: row i of the result holds row i of
// each input. Primary fields come first; a secondary field whose name is
// already present is dropped, so primary values win. When the inputs differ
// in length, the shorter side is padded with nulls.
func Merge(primary, secondary *Table) *Table {
	if secondary == nil {
		return primary.Clone()
	}

	fields := append([]string(nil), primary.Fields...)
	var take []int
	for i, f := range secondary.Fields {
		if primary.HasField(f) {
			continue
		}
		fields = append(fields, f)
		take = append(take, i)
	}

	n := max(primary.Len(), secondary.Len())
	out := NewTable(fields...)
	out.Rows = make([][]Value, n)
	width := len(primary.Fields)
	for r := 0; r < n; r++ {
		row := make([]Value, len(fields))
		if r < primary.Len() {
			copy(row, primary.Rows[r])
		}
		if r < secondary.Len() {
			for j, p := range take {
				row[width+j] = secondary.Rows[r][p]
			}
		}
		out.Rows[r] = row
	}
	return out
}

// NewFields returns the secondary fields Merge would add to the primary table.
func NewFields(primary, secondary *Table) []string {
	var out []string
	for _, f := range secondary.Fields {
		if !primary.HasField(f) {
			out = append(out, f)
		}
	}
	return out
}
