package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

func salesTable() *core.Table {
	t := core.NewTable("Dealer_Name", "Mat Desc", "State", "Year", "Month", "Sales Amt", "Qty")
	add := func(dealer, mat, state string, year, month, sales, qty float64) {
		t.AppendRow(
			core.TextValue(dealer), core.TextValue(mat), core.TextValue(state),
			core.NumberValue(year), core.NumberValue(month),
			core.NumberValue(sales), core.NumberValue(qty),
		)
	}
	add("Acme", "Widget", "TX", 2024, 2, 100, 1)
	add("Bolt", "Gadget", "CA", 2024, 1, 300, 3)
	add("Acme", "Gadget", "TX", 2023, 12, 50, 2)
	add("Core", "Widget", "NY", 2024, 10, 300, 4)
	t.AppendRow(
		core.NullValue(), core.TextValue("Widget"), core.TextValue("TX"),
		core.NumberValue(2024), core.NumberValue(2),
		core.NullValue(), core.NumberValue(5),
	)
	return t
}

func column(t *core.Table, field string) []string {
	var out []string
	for _, v := range t.Column(field) {
		out = append(out, v.String())
	}
	return out
}

func TestCatalog(t *testing.T) {
	cat := Catalog()
	require.Len(t, cat, 4)
	assert.Equal(t, TopCustomers, cat[0].ID)
	assert.Equal(t, "Top Customers", cat[0].Title)
	assert.Equal(t, SalesSummary, cat[3].ID)
}

func TestGenerate_TopCustomers(t *testing.T) {
	res, warnings := Generate(salesTable(), []ID{TopCustomers}, core.DefaultFields())
	require.Empty(t, warnings)
	require.Len(t, res, 1)

	tbl := res[0].Table
	assert.Equal(t, []string{"Dealer_Name", "Sales Amt", "Qty"}, tbl.Fields)
	// Null dealer rows are not grouped; Bolt and Core tie and keep key order.
	assert.Equal(t, []string{"Bolt", "Core", "Acme"}, column(tbl, "Dealer_Name"))
	assert.Equal(t, []string{"300", "300", "150"}, column(tbl, "Sales Amt"))
	assert.Equal(t, []string{"3", "4", "3"}, column(tbl, "Qty"))
}

func TestGenerate_ProductPerformanceSkipsNullMeasures(t *testing.T) {
	res, _ := Generate(salesTable(), []ID{ProductPerformance}, core.DefaultFields())
	require.Len(t, res, 1)

	tbl := res[0].Table
	assert.Equal(t, []string{"Widget", "Gadget"}, column(tbl, "Mat Desc"))
	assert.Equal(t, []string{"400", "350"}, column(tbl, "Sales Amt"))
	assert.Equal(t, []string{"10", "5"}, column(tbl, "Qty"))
}

func TestGenerate_SalesByRegionUsesDesignatedField(t *testing.T) {
	tbl := core.NewTable("Province", "Sales Amt", "Qty")
	tbl.AppendRow(core.TextValue("ON"), core.NumberValue(10), core.NumberValue(1))
	tbl.AppendRow(core.TextValue("QC"), core.NumberValue(20), core.NumberValue(1))

	fields := core.DefaultFields()
	fields.Region = "Province"

	res, warnings := Generate(tbl, []ID{SalesByRegion}, fields)
	require.Empty(t, warnings)
	require.Len(t, res, 1)
	assert.Equal(t, []string{"QC", "ON"}, column(res[0].Table, "Province"))
}

func TestGenerate_SalesSummarySortedByPeriod(t *testing.T) {
	res, _ := Generate(salesTable(), []ID{SalesSummary}, core.DefaultFields())
	require.Len(t, res, 1)

	tbl := res[0].Table
	assert.Equal(t, []string{"2023", "2024", "2024", "2024"}, column(tbl, "Year"))
	assert.Equal(t, []string{"12", "1", "2", "10"}, column(tbl, "Month"))
	assert.Equal(t, []string{"50", "300", "100", "300"}, column(tbl, "Sales Amt"))
	assert.Equal(t, []string{"2", "3", "6", "4"}, column(tbl, "Qty"))
}

func TestGenerate_MissingFieldsSkipReport(t *testing.T) {
	tbl := core.NewTable("Dealer_Name", "Sales Amt")
	tbl.AppendRow(core.TextValue("Acme"), core.NumberValue(1))

	res, warnings := Generate(tbl, []ID{TopCustomers, SalesSummary}, core.DefaultFields())
	assert.Empty(t, res)
	require.Len(t, warnings, 2)
	assert.Equal(t, core.WarnMissingField, warnings[0].Code)
	assert.Equal(t, "Qty", warnings[0].Field)
	assert.Equal(t, "Year, Month, Qty", warnings[1].Field)
}

func TestGenerate_EmptySelection(t *testing.T) {
	res, warnings := Generate(salesTable(), nil, core.DefaultFields())
	assert.Empty(t, res)
	require.Len(t, warnings, 1)
	assert.Equal(t, core.WarnEmptySelection, warnings[0].Code)
}

func TestGenerate_UnknownID(t *testing.T) {
	res, warnings := Generate(salesTable(), []ID{"forecast", TopCustomers}, core.DefaultFields())
	require.Len(t, res, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "forecast")
}

func TestGenerate_CatalogOrderAndInputUntouched(t *testing.T) {
	in := salesTable()
	before := in.Clone()

	res, _ := Generate(in, []ID{SalesSummary, TopCustomers}, core.DefaultFields())
	require.Len(t, res, 2)
	assert.Equal(t, TopCustomers, res[0].ID)
	assert.Equal(t, SalesSummary, res[1].ID)
	assert.Equal(t, before, in)
}

func TestResults_Sheets(t *testing.T) {
	res, _ := Generate(salesTable(), []ID{TopCustomers, ProductPerformance}, core.DefaultFields())
	sheets := res.Sheets()
	require.Len(t, sheets, 2)
	assert.Equal(t, "Top Customers", sheets[0].Name)
	assert.Same(t, res[1].Table, sheets[1].Table)
}
