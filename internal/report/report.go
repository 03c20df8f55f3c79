// Package report aggregates a pipeline table into sales reports.
//
// Reports are pure group-by summaries: rows are grouped on one or more key
// fields and the sales amount and quantity are summed per group. Rows whose
// key is null are left out of every group. A report whose fields are absent
// is skipped with a warning.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/export"
)

// ID identifies a report.
type ID string

const (
	TopCustomers       ID = "top_customers"
	ProductPerformance ID = "product_performance"
	SalesByRegion      ID = "sales_by_region"
	SalesSummary       ID = "sales_summary"
)

// Fixed grouping fields of the standard sales export.
const (
	CustomerField = "Dealer_Name"
	ProductField  = "Mat Desc"
	YearField     = "Year"
	MonthField    = "Month"
)

// StageReports names the reporting step in warnings.
const StageReports = "reports"

// Info describes a report for catalogs and UIs.
type Info struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

type definition struct {
	info Info
	keys func(core.Fields) []string
	// byPeriod sorts ascending on the keys instead of descending on sales.
	byPeriod bool
}

var definitions = []definition{
	{
		info: Info{ID: TopCustomers, Title: "Top Customers"},
		keys: func(core.Fields) []string { return []string{CustomerField} },
	},
	{
		info: Info{ID: ProductPerformance, Title: "Product Performance"},
		keys: func(core.Fields) []string { return []string{ProductField} },
	},
	{
		info: Info{ID: SalesByRegion, Title: "Sales by Region"},
		keys: func(f core.Fields) []string { return []string{f.Region} },
	},
	{
		info:     Info{ID: SalesSummary, Title: "Sales Summary"},
		keys:     func(core.Fields) []string { return []string{YearField, MonthField} },
		byPeriod: true,
	},
}

// Catalog lists every report in generation order.
func Catalog() []Info {
	out := make([]Info, len(definitions))
	for i, d := range definitions {
		out[i] = d.info
	}
	return out
}

// Result is one generated report.
type Result struct {
	ID    ID          `json:"id"`
	Title string      `json:"title"`
	Table *core.Table `json:"table"`
}

// Results holds generated reports in catalog order.
type Results []Result

// Sheets converts the reports into workbook sheets named by title.
func (rs Results) Sheets() []export.Sheet {
	sheets := make([]export.Sheet, len(rs))
	for i, r := range rs {
		sheets[i] = export.Sheet{Name: r.Title, Table: r.Table}
	}
	return sheets
}

// Generate builds the selected reports from t. Unknown ids and reports with
// missing fields produce warnings instead of results.
func Generate(t *core.Table, selected []ID, fields core.Fields) (Results, []core.Warning) {
	if len(selected) == 0 {
		return Results{}, []core.Warning{{
			Code:    core.WarnEmptySelection,
			Stage:   StageReports,
			Message: "no reports selected",
		}}
	}

	want := make(map[ID]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}

	var warnings []core.Warning
	for id := range want {
		if !known(id) {
			warnings = append(warnings, core.Warning{
				Code:    core.WarnMissingField,
				Stage:   StageReports,
				Message: fmt.Sprintf("unknown report %q skipped", id),
			})
		}
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Message < warnings[j].Message })

	results := Results{}
	for _, d := range definitions {
		if !want[d.info.ID] {
			continue
		}
		keys := d.keys(fields)
		required := append(append([]string(nil), keys...), fields.SalesAmount, fields.Quantity)
		if missing := absent(t, required); len(missing) > 0 {
			warnings = append(warnings, core.Warning{
				Code:    core.WarnMissingField,
				Stage:   StageReports,
				Field:   strings.Join(missing, ", "),
				Message: fmt.Sprintf("report %s skipped, missing %s", d.info.ID, strings.Join(missing, ", ")),
			})
			continue
		}

		table := aggregate(t, keys, fields.SalesAmount, fields.Quantity)
		if d.byPeriod {
			sortByKeys(table, len(keys))
		} else {
			sortBySalesDesc(table, len(keys))
		}
		results = append(results, Result{ID: d.info.ID, Title: d.info.Title, Table: table})
	}
	return results, warnings
}

func known(id ID) bool {
	for _, d := range definitions {
		if d.info.ID == id {
			return true
		}
	}
	return false
}

func absent(t *core.Table, fields []string) []string {
	var out []string
	for _, f := range fields {
		if !t.HasField(f) {
			out = append(out, f)
		}
	}
	return out
}

// aggregate sums sales and quantity per distinct key. Groups come out in
// ascending key order; non-numeric measure cells count as zero.
func aggregate(t *core.Table, keys []string, sales, qty string) *core.Table {
	keyIdx := make([]int, len(keys))
	for i, k := range keys {
		keyIdx[i] = t.FieldIndex(k)
	}
	si, qi := t.FieldIndex(sales), t.FieldIndex(qty)

	type group struct {
		key        []core.Value
		sales, qty float64
	}
	groups := make(map[string]*group)
	var order []string

rows:
	for _, row := range t.Rows {
		key := make([]core.Value, len(keyIdx))
		parts := make([]string, len(keyIdx))
		for i, idx := range keyIdx {
			if row[idx].IsNull() {
				continue rows
			}
			key[i] = row[idx]
			parts[i] = row[idx].String()
		}
		id := strings.Join(parts, "\x1f")
		g, ok := groups[id]
		if !ok {
			g = &group{key: key}
			groups[id] = g
			order = append(order, id)
		}
		if f, ok := row[si].Float(); ok {
			g.sales += f
		}
		if f, ok := row[qi].Float(); ok {
			g.qty += f
		}
	}

	out := core.NewTable(append(append([]string(nil), keys...), sales, qty)...)
	for _, id := range order {
		g := groups[id]
		values := append(append([]core.Value(nil), g.key...), core.NumberValue(g.sales), core.NumberValue(g.qty))
		out.AppendRow(values...)
	}
	sortByKeys(out, len(keys))
	return out
}

// sortByKeys orders rows ascending on the first n fields. Numbers compare
// numerically, everything else by string form.
func sortByKeys(t *core.Table, n int) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		for k := 0; k < n; k++ {
			if c := compare(t.Rows[i][k], t.Rows[j][k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// sortBySalesDesc orders rows by the sales column, which follows the n key
// fields, largest first. Ties keep key order.
func sortBySalesDesc(t *core.Table, n int) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, _ := t.Rows[i][n].Float()
		b, _ := t.Rows[j][n].Float()
		return a > b
	})
}

func compare(a, b core.Value) int {
	fa, okA := a.Float()
	fb, okB := b.Float()
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a.String(), b.String())
}
