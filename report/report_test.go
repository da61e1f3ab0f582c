package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/config"
	"github.com/AnandVetcha/excel-to-ppt-explainer/export"
	"github.com/AnandVetcha/excel-to-ppt-explainer/pptxpkg"
)

// createWorkbook writes a Summary sheet of three regions by three metrics
// over a Sales table. Count spills from C2, Spill from D3.
func createWorkbook(t *testing.T, dir string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Summary"))
	_, err := f.NewSheet("Data")
	require.NoError(t, err)

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
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Data", cell, &row))
	}
	require.NoError(t, f.AddTable("Data", &excelize.Table{Range: "A1:D7", Name: "Sales", StyleName: "TableStyleMedium2"}))

	summary := [][]interface{}{
		{"Region", "Total", "Count", "Spill"},
		{"East", 300, 3, 10},
		{"West", 80, 2, 20},
		{"North", 70, 1, 30},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Summary", cell, &row))
	}
	for cell, formula := range map[string]string{
		"B2": "SUMIFS(Sales[Amount],Sales[Region],$A2)",
		"B3": "SUMIFS(Sales[Amount],Sales[Region],$A3)",
		"B4": "SUMIFS(Sales[Amount],Sales[Region],$A4)",
		"C2": "_xlfn.COUNTIFS(Sales[Region],$A2:$A4)",
		"D3": "SEQUENCE(3)*10",
	} {
		require.NoError(t, f.SetCellFormula("Summary", cell, formula))
	}

	path := filepath.Join(dir, "sales.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Workbook = createWorkbook(t, dir)
	cfg.SummaryStart = "A2"
	cfg.Output = filepath.Join(dir, "deck.pptx")
	return cfg
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.LinkMode = "overlay"
	cfg.DetailWorkbook = filepath.Join(filepath.Dir(cfg.Output), "details.xlsx")

	res, err := NewService().Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Output, res.Output)
	assert.Equal(t, 1+3*3, res.Slides)
	assert.Equal(t, 9, res.Details)
	assert.Equal(t, 9+9, res.Links, "nine metrics and nine home buttons")

	deck, err := pptxpkg.OpenFile(cfg.Output)
	require.NoError(t, err)
	texts, err := deck.SlideTexts(0)
	require.NoError(t, err)
	assert.Contains(t, texts, export.SummaryTitle)
	assert.Contains(t, texts, "300.00")

	slides, err := deck.Slides()
	require.NoError(t, err)
	xml, ok := deck.Part(slides[0])
	require.True(t, ok)
	assert.GreaterOrEqual(t, strings.Count(string(xml), "ppaction://hlinksldjump"), 2*9,
		"overlay links the shape and its text")
	assert.Contains(t, string(xml), `tooltip="West – Count"`)

	detail, err := deck.SlideTexts(1)
	require.NoError(t, err)
	assert.Contains(t, detail, "East – Total")
	assert.Contains(t, detail, `Filter: Sales[Region] = "East"`)
	assert.Contains(t, detail, "Showing rows 1-3 of 3")

	f, err := excelize.OpenFile(cfg.DetailWorkbook)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 10)
}

func TestBuildSkipColumns(t *testing.T) {
	cfg := testConfig(t)
	cfg.SkipCols = []int{2}

	res, err := NewService().Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1+3*2, res.Slides)
	assert.Equal(t, 6, res.Details)

	deck, err := pptxpkg.OpenFile(cfg.Output)
	require.NoError(t, err)
	texts, err := deck.SlideTexts(0)
	require.NoError(t, err)
	assert.Contains(t, texts, "3.00", "skipped metrics stay on the summary")
	for i := 1; i < res.Slides; i++ {
		texts, err := deck.SlideTexts(i)
		require.NoError(t, err)
		assert.NotContains(t, strings.Join(texts, "\n"), "– Count")
	}
}

func TestBuildAppendsToTemplate(t *testing.T) {
	cfg := testConfig(t)
	tpl, err := export.NewDeckService().Render(export.DeckData{Headers: []string{"Agenda"}}, export.RenderOptions{})
	require.NoError(t, err)
	cfg.Template = filepath.Join(filepath.Dir(cfg.Output), "template.pptx")
	require.NoError(t, os.WriteFile(cfg.Template, tpl.Data, 0644))
	cfg.Output = ""

	res, err := NewService().Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Template, res.Output, "output defaults to the template")
	assert.Equal(t, 1+1+3*3, res.Slides)

	deck, err := pptxpkg.OpenFile(res.Output)
	require.NoError(t, err)
	first, err := deck.SlideTexts(0)
	require.NoError(t, err)
	assert.Contains(t, first, "Agenda")
	summary, err := deck.SlideTexts(1)
	require.NoError(t, err)
	assert.Contains(t, summary, "Region")
	assert.Contains(t, summary, "West")
	detail, err := deck.SlideTexts(2)
	require.NoError(t, err)
	assert.Contains(t, detail, "East – Total")
}

func TestBuildCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService().Build(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, cfg.Output)
}

func TestBuildInvalidConfig(t *testing.T) {
	_, err := NewService().Build(context.Background(), config.Default())
	assert.ErrorContains(t, err, "workbook is required")
}

func TestInspect(t *testing.T) {
	cfg := testConfig(t)
	cfg.SkipCols = []int{3}

	reports, err := NewService().Inspect(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, reports, 9)

	byCell := make(map[string]CellReport)
	for _, r := range reports {
		byCell[r.Address] = r
	}

	total := byCell["B3"]
	assert.Equal(t, "Sales", total.Table)
	assert.Equal(t, []string{"Region", "Amount"}, total.Columns)
	assert.Equal(t, []string{`Sales[Region] = "West"`}, total.Filters)
	assert.Equal(t, 2, total.Rows)

	count := byCell["C3"]
	assert.True(t, count.Spilled)
	assert.Equal(t, "C2", count.Source)
	assert.Equal(t, []string{`Sales[Region] = "West"`}, count.Filters)
	assert.Equal(t, 2, count.Rows)

	north := byCell["C4"]
	assert.Equal(t, []string{`Sales[Region] = "North"`}, north.Filters)
	assert.Equal(t, 1, north.Rows)

	spill := byCell["D2"]
	assert.True(t, spill.Skipped)
	assert.Empty(t, spill.Filters)
}

func TestInspectFallsBackToKeyColumn(t *testing.T) {
	cfg := testConfig(t)

	reports, err := NewService().Inspect(context.Background(), cfg)
	require.NoError(t, err)
	for _, r := range reports {
		if r.Address != "D2" {
			continue
		}
		assert.Equal(t, "D3", r.Source)
		assert.Empty(t, r.Criteria)
		assert.Equal(t, "Sales", r.Table, "formulas without table refs use the default table")
		assert.Equal(t, []string{"Region"}, r.Columns)
		assert.Equal(t, []string{`Sales[Region] = "East"`}, r.Filters)
		assert.Equal(t, 3, r.Rows)
		return
	}
	t.Fatal("no report for D2")
}

func TestInspectFallsBackToSummaryKeyHeader(t *testing.T) {
	dir := t.TempDir()
	f := excelize.NewFile()
	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	for i, row := range [][]interface{}{
		{"Year", "Region", "Amount"},
		{2024, "East", 100},
		{2024, "West", 50},
		{2023, "East", 200},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Data", cell, &row))
	}
	require.NoError(t, f.AddTable("Data", &excelize.Table{Range: "A1:C4", Name: "Orders"}))
	for i, row := range [][]interface{}{
		{"Region", "Total"},
		{"East", 300},
		{"West", 50},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(dir, "orders.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cfg := config.Default()
	cfg.Workbook = path
	cfg.Sheet = "Sheet1"
	cfg.SummaryStart = "A2"
	cfg.KeyHeader = "Product"
	cfg.Output = filepath.Join(dir, "deck.pptx")

	reports, err := NewService().Inspect(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{"Region"}, reports[0].Columns)
	assert.Equal(t, []string{`Orders[Region] = "East"`}, reports[0].Filters)
	assert.Equal(t, 2, reports[0].Rows)
	assert.Equal(t, []string{`Orders[Region] = "West"`}, reports[1].Filters)
	assert.Equal(t, 1, reports[1].Rows)
}
