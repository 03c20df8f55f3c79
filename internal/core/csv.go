package core

// csv.go reads delimited text into a typed Table.
//
// The reader strips a UTF-8 BOM (common in Windows/Excel exports) and repairs
// invalid UTF-8 before parsing. After parsing, each column is typed as a whole:
// a column whose non-empty cells all parse as numbers becomes numeric, anything
// else stays text. Empty cells and the usual blank markers (NA, null, ...)
// become null in every column.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrEmptyFile is returned when the input has no header row.
	ErrEmptyFile = errors.New("empty file")

	// ErrInvalidCSV is returned when the input is not well-formed delimited text.
	ErrInvalidCSV = errors.New("invalid csv")
)

// ReadCSV parses CSV with a header row into a Table.
func ReadCSV(r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	fields := headerFields(header)

	var raw [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		if len(rec) > len(fields) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrInvalidCSV, line, len(rec), len(fields))
		}
		cells := make([]string, len(fields))
		for i, c := range rec {
			cells[i] = CleanCell(c)
		}
		raw = append(raw, cells)
	}

	return typeColumns(fields, raw), nil
}

// headerFields cleans header names, names blank headers by position and
// suffixes repeated names (".1", ".2") so every field is unique.
func headerFields(header []string) []string {
	fields := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := CleanCell(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for seen[name] > 0 {
			name = base + "." + strconv.Itoa(seen[base])
			seen[base]++
		}
		seen[name]++
		fields[i] = name
	}
	return fields
}

// typeColumns infers one Kind per column and builds the typed table.
func typeColumns(fields []string, raw [][]string) *Table {
	t := NewTable(fields...)
	t.Rows = make([][]Value, len(raw))
	for i := range raw {
		t.Rows[i] = make([]Value, len(fields))
	}

	for col := range fields {
		numeric := true
		for _, rec := range raw {
			cell := rec[col]
			if isMissing(cell) {
				continue
			}
			if _, ok := ParseNumber(cell); !ok {
				numeric = false
				break
			}
		}

		for i, rec := range raw {
			cell := rec[col]
			switch {
			case isMissing(cell):
				t.Rows[i][col] = NullValue()
			case numeric:
				f, _ := ParseNumber(cell)
				t.Rows[i][col] = NumberValue(f)
			default:
				t.Rows[i][col] = TextValue(cell)
			}
		}
	}
	return t
}
