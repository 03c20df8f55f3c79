// Package export writes pipeline tables to CSV and XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

// WriteCSV writes t as comma-separated text with a header row.
// Nulls are written as empty cells and dates in ISO form.
func WriteCSV(w io.Writer, t *core.Table) error {
	if t == nil {
		return fmt.Errorf("write csv: no table")
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
