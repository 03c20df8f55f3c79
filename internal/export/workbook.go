package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// Sheet is one worksheet of a workbook.
type Sheet struct {
	Name  string
	Table *core.Table
}

// ExceptionSheets returns one sheet per exception result, in evaluation order.
func ExceptionSheets(rs core.RuleResults) []Sheet {
	sheets := make([]Sheet, len(rs))
	for i, r := range rs {
		sheets[i] = Sheet{Name: r.Name, Table: r.Table}
	}
	return sheets
}

// WriteWorkbook writes the sheets as an XLSX workbook to w.
//
// Sheet names are cleaned of characters Excel rejects, truncated to 31
// characters and made unique. The header row is bold. Numbers are stored as
// numbers; dates and text as strings. A workbook without sheets still has one
// empty sheet because Excel cannot open a workbook with none.
func WriteWorkbook(w io.Writer, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("workbook style: %w", err)
	}

	names := SheetNames(sheets)
	for i, sh := range sheets {
		name := names[i]
		if i == 0 {
			err = f.SetSheetName("Sheet1", name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, sh.Table, bold); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *core.Table, headerStyle int) error {
	if t == nil {
		return nil
	}

	header := make([]any, len(t.Fields))
	for i, name := range t.Fields {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if len(t.Fields) > 0 {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(v core.Value) any {
	switch v.Kind {
	case core.KindNull:
		return nil
	case core.KindNumber:
		return v.Num
	default:
		return v.String()
	}
}

// SheetNames returns the worksheet name used for each sheet, in order.
func SheetNames(sheets []Sheet) []string {
	out := make([]string, len(sheets))
	used := make(map[string]bool, len(sheets))
	for i, sh := range sheets {
		base := cleanSheetName(sh.Name)
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			suffix := " (" + strconv.Itoa(n) + ")"
			name = truncate(base, maxSheetName-len(suffix)) + suffix
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

// cleanSheetName replaces the characters Excel forbids in sheet names.
func cleanSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if name == "" {
		name = "Sheet"
	}
	return truncate(name, maxSheetName)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
