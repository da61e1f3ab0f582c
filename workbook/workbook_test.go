package workbook

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

// createSalesWorkbook writes a workbook with a Summary sheet over a Sales
// table. Column C spills from C2, column D from D3.
func createSalesWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	if _, err := f.NewSheet("Data"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}

	data := [][]interface{}{
		{"Region", "Year", "Amount", "Qty"},
		{"East", 2024, 100, 1},
		{"West", 2024, 50, 2},
		{"East", 2023, 200, 3},
		{"North", 2024, 70, 4},
		{"West", 2023, 30, 5},
		{"East", 2024, 0, 6},
	}
	for i, row := range data {
		if err := f.SetSheetRow("Data", cellName(1, i+1), &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.AddTable("Data", &excelize.Table{Range: "A1:D7", Name: "Sales", StyleName: "TableStyleMedium2"}); err != nil {
		t.Fatalf("AddTable: %v", err)
	}

	summary := [][]interface{}{
		{"Region", "Total", "Count", "Spill"},
		{"East", 300, 3, 10},
		{"West", 80, 2, 20},
		{"North", 70, 1, 30},
	}
	for i, row := range summary {
		if err := f.SetSheetRow("Summary", cellName(1, i+1), &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	formulas := map[string]string{
		"B2": "SUMIFS(Sales[Amount],Sales[Region],$A2)",
		"B3": "SUMIFS(Sales[Amount],Sales[Region],$A3)",
		"B4": "SUMIFS(Sales[Amount],Sales[Region],$A4)",
		"C2": "_xlfn.COUNTIFS(Sales[Region],$A2:$A4)",
		"D3": "SEQUENCE(3)*10",
	}
	for cell, formula := range formulas {
		if err := f.SetCellFormula("Summary", cell, formula); err != nil {
			t.Fatalf("SetCellFormula: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "sales.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func openSales(t *testing.T) *Workbook {
	t.Helper()
	wb, err := Open(createSalesWorkbook(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { wb.Close() })
	return wb
}

func TestResolveSheet(t *testing.T) {
	wb := openSales(t)

	if got, err := wb.ResolveSheet(""); err != nil || got != "Summary" {
		t.Errorf("ResolveSheet(\"\") = %q, %v; want active sheet Summary", got, err)
	}
	if got, err := wb.ResolveSheet("data"); err != nil || got != "Data" {
		t.Errorf("ResolveSheet(data) = %q, %v", got, err)
	}
	if _, err := wb.ResolveSheet("Missing"); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("ResolveSheet(Missing) error = %v, want ErrSheetNotFound", err)
	}
	if got := wb.Sheets(); !reflect.DeepEqual(got, []string{"Summary", "Data"}) {
		t.Errorf("Sheets = %v", got)
	}
}

func TestCellValue(t *testing.T) {
	wb := openSales(t)

	v, err := wb.CellValue("Summary", "B2")
	if err != nil {
		t.Fatalf("CellValue: %v", err)
	}
	if !v.Numeric || v.Number != 300 || v.Text != "300" {
		t.Errorf("B2 = %+v, want numeric 300", v)
	}
	v, err = wb.CellValue("Summary", "A2")
	if err != nil {
		t.Fatalf("CellValue: %v", err)
	}
	if v.Numeric || v.Text != "East" {
		t.Errorf("A2 = %+v, want text East", v)
	}
	v, _ = wb.CellValue("Summary", "Z99")
	if !v.IsEmpty() {
		t.Errorf("Z99 = %+v, want empty", v)
	}
}

func TestLoadTables(t *testing.T) {
	wb := openSales(t)

	tables, err := wb.LoadTables()
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}
	sales := tables.Find("sales")
	if sales == nil {
		t.Fatal("Find(sales) = nil")
	}
	if want := []string{"Region", "Year", "Amount", "Qty"}; !reflect.DeepEqual(sales.Headers, want) {
		t.Errorf("Headers = %v, want %v", sales.Headers, want)
	}
	if len(sales.Rows) != 6 || sales.FirstRow != 2 || sales.FirstCol != 1 {
		t.Errorf("rows=%d firstRow=%d firstCol=%d", len(sales.Rows), sales.FirstRow, sales.FirstCol)
	}
	if amt := sales.Rows[0][sales.ColumnIndex("amount")]; !amt.Numeric || amt.Number != 100 {
		t.Errorf("first Amount = %+v", amt)
	}
	for _, row := range sales.Formulas {
		if !reflect.DeepEqual(row, []string{"", "", "", ""}) {
			t.Errorf("constant row formulas = %q", row)
		}
	}
	if sales.HasColumn("Tax") {
		t.Error("HasColumn(Tax) = true")
	}
	if got := tables.Names(); !reflect.DeepEqual(got, []string{"Sales"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestLoadTablesCalculatedColumn(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Item", "Price", "Qty", "Total"},
		{"Pen", 2, 3},
		{"Pad", 5, 4},
	}
	for i, row := range rows {
		f.SetSheetRow("Sheet1", cellName(1, i+1), &row)
	}
	f.SetCellFormula("Sheet1", "D2", "[@Price]*[@Qty]")
	f.SetCellFormula("Sheet1", "D3", "Orders[[#This Row],[Price]]*[@Qty]")
	if err := f.AddTable("Sheet1", &excelize.Table{Range: "A1:D3", Name: "Orders"}); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer wb.Close()
	tables, err := wb.LoadTables()
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	orders := tables.Find("Orders")
	want := [][]string{
		{"", "", "", "=[@Price]*[@Qty]"},
		{"", "", "", "=Orders[[#This Row],[Price]]*[@Qty]"},
	}
	if !reflect.DeepEqual(orders.Formulas, want) {
		t.Errorf("Formulas = %q, want %q", orders.Formulas, want)
	}
	if got := orders.ColumnFormula(3); got != "=[@Price]*[@Qty]" {
		t.Errorf("ColumnFormula(3) = %q", got)
	}
	if got := orders.ColumnFormula(1); got != "" {
		t.Errorf("ColumnFormula(1) = %q, want constant column", got)
	}
	if got := orders.DependsOn(3); !reflect.DeepEqual(got, []string{"Price", "Qty"}) {
		t.Errorf("DependsOn(3) = %v", got)
	}
	if got := orders.DependsOn(0); got != nil {
		t.Errorf("DependsOn(0) = %v, want nil", got)
	}
}

func TestLoadTablesWithoutTables(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "x")
	path := filepath.Join(t.TempDir(), "plain.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer wb.Close()
	if _, err := wb.LoadTables(); !errors.Is(err, ErrNoTables) {
		t.Errorf("LoadTables error = %v, want ErrNoTables", err)
	}
}

func TestDetectSummary(t *testing.T) {
	wb := openSales(t)

	s, err := wb.DetectSummary("Summary", "A2", 60)
	if err != nil {
		t.Fatalf("DetectSummary: %v", err)
	}
	if s.KeyHeader != "Region" || s.HeaderRow != 1 || s.StartCol != 1 {
		t.Errorf("summary = %+v", s)
	}
	if want := []string{"Total", "Count", "Spill"}; !reflect.DeepEqual(s.Headers, want) {
		t.Errorf("Headers = %v, want %v", s.Headers, want)
	}
	var keys []string
	for _, r := range s.Rows {
		keys = append(keys, r.Key.Text)
	}
	if want := []string{"East", "West", "North"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if s.Cells() != 9 {
		t.Errorf("Cells = %d, want 9", s.Cells())
	}
	c := s.Rows[1].Cells[2]
	if c.Address != "D3" || c.Header != "Spill" || c.Index != 3 || c.Value.Number != 20 {
		t.Errorf("West/Spill cell = %+v", c)
	}

	narrow, err := wb.DetectSummary("Summary", "A2", 2)
	if err != nil {
		t.Fatalf("DetectSummary: %v", err)
	}
	if !reflect.DeepEqual(narrow.Headers, []string{"Total"}) {
		t.Errorf("maxCols=2 headers = %v", narrow.Headers)
	}
}

func TestDetectSummaryErrors(t *testing.T) {
	wb := openSales(t)

	tests := []struct {
		name  string
		start string
	}{
		{"no header above", "A1"},
		{"blank header row", "A11"},
		{"blank key column", "A5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wb.DetectSummary("Summary", tt.start, 60); !errors.Is(err, ErrEmptySummary) {
				t.Errorf("DetectSummary(%s) error = %v, want ErrEmptySummary", tt.start, err)
			}
		})
	}
	if _, err := wb.DetectSummary("Summary", "not-a-cell", 60); err == nil {
		t.Error("DetectSummary accepted an invalid start cell")
	}
}

func TestResolveFormulas(t *testing.T) {
	wb := openSales(t)
	s, err := wb.DetectSummary("Summary", "A2", 60)
	if err != nil {
		t.Fatalf("DetectSummary: %v", err)
	}
	if err := wb.ResolveFormulas(s); err != nil {
		t.Fatalf("ResolveFormulas: %v", err)
	}

	tests := []struct {
		row, col int
		formula  string
		source   string
		spilled  bool
	}{
		{0, 0, "=SUMIFS(Sales[Amount],Sales[Region],$A2)", "B2", false},
		{2, 0, "=SUMIFS(Sales[Amount],Sales[Region],$A4)", "B4", false},
		{0, 1, "=COUNTIFS(Sales[Region],$A2:$A4)", "C2", false},
		{1, 1, "=COUNTIFS(Sales[Region],$A2:$A4)", "C2", true},
		{2, 1, "=COUNTIFS(Sales[Region],$A2:$A4)", "C2", true},
		{0, 2, "=SEQUENCE(3)*10", "D3", true},
		{1, 2, "=SEQUENCE(3)*10", "D3", false},
		{2, 2, "=SEQUENCE(3)*10", "D3", true},
	}
	for _, tt := range tests {
		c := s.Rows[tt.row].Cells[tt.col]
		if c.Formula != tt.formula || c.SourceAddress != tt.source || c.Spilled != tt.spilled {
			t.Errorf("%s: formula=%q source=%s spilled=%v; want %q %s %v",
				c.Address, c.Formula, c.SourceAddress, c.Spilled, tt.formula, tt.source, tt.spilled)
		}
	}

	f, src, err := wb.SpillSource(s, 3, 4)
	if err != nil || src != "C2" || f == "" {
		t.Errorf("SpillSource(C4) = %q, %s, %v", f, src, err)
	}
}

func TestResolveFormulasHorizontalSpill(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Key", "Q1", "Q2", "Q3"},
		{"East", 1, 2, 3},
	}
	for i, row := range rows {
		f.SetSheetRow("Sheet1", cellName(1, i+1), &row)
	}
	f.SetCellFormula("Sheet1", "B2", "SEQUENCE(1,3)")
	path := filepath.Join(t.TempDir(), "wide.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer wb.Close()
	s, err := wb.DetectSummary("Sheet1", "A2", 60)
	if err != nil {
		t.Fatalf("DetectSummary: %v", err)
	}
	if err := wb.ResolveFormulas(s); err != nil {
		t.Fatalf("ResolveFormulas: %v", err)
	}
	for _, c := range s.Rows[0].Cells {
		if c.Formula != "=SEQUENCE(1,3)" || c.SourceAddress != "B2" {
			t.Errorf("%s: formula=%q source=%s", c.Address, c.Formula, c.SourceAddress)
		}
	}
}

func TestResolver(t *testing.T) {
	wb := openSales(t)
	resolve := wb.Resolver("Summary")

	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"$A2", "East", true},
		{"A3", "West", true},
		{"Data!$B$2", "2024", true},
		{"'Data'!A4", "East", true},
		{"Nope!A1", "", false},
	}
	for _, tt := range tests {
		got, ok := resolve(tt.ref)
		if got != tt.want || ok != tt.ok {
			t.Errorf("resolve(%q) = %q, %v; want %q, %v", tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSpillResolver(t *testing.T) {
	wb := openSales(t)

	tests := []struct {
		src, cell, ref string
		want           string
		ok             bool
	}{
		{"C2", "C2", "$A2:$A4", "East", true},
		{"C2", "C3", "$A2:$A4", "West", true},
		{"C2", "C4", "$A$2:$A$4", "North", true},
		{"C2", "C5", "$A2:$A4", "", false},
		{"C2", "C3", "$A3", "West", true},
		{"", "C3", "Data!A2:A7", "East", true},
	}
	for _, tt := range tests {
		got, ok := wb.SpillResolver("Summary", tt.src, tt.cell)(tt.ref)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SpillResolver(%s->%s)(%q) = %q, %v; want %q, %v", tt.src, tt.cell, tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}
