package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	gospreadsheet "github.com/VantageDataChat/GoExcel"
)

const maxSheetName = 31

// DetailWorkbookService writes the detail data behind a deck to an xlsx
// workbook using GoExcel: an index sheet plus one sheet per detail.
type DetailWorkbookService struct{}

func NewDetailWorkbookService() *DetailWorkbookService {
	return &DetailWorkbookService{}
}

// Export builds the workbook. Numeric cells keep full precision.
func (s *DetailWorkbookService) Export(title string, details []Detail) ([]byte, error) {
	if len(details) == 0 {
		return nil, fmt.Errorf("no details to export")
	}

	wb := gospreadsheet.New()
	index := wb.GetActiveSheet()
	index.SetTitle("Index")

	headerStyle := gospreadsheet.NewStyle().
		SetFont(&gospreadsheet.Font{Bold: true, Size: 11, Color: "FFFFFF"}).
		SetFill(&gospreadsheet.Fill{Type: "solid", Color: "4472C4"}).
		SetAlignment(&gospreadsheet.Alignment{
			Horizontal: gospreadsheet.AlignCenter,
			Vertical:   gospreadsheet.AlignMiddle,
		}).
		SetBorders(borders("FFFFFF"))
	labelStyle := gospreadsheet.NewStyle().
		SetFont(&gospreadsheet.Font{Bold: true, Size: 10})
	dataStyle := gospreadsheet.NewStyle().
		SetFont(&gospreadsheet.Font{Size: 10}).
		SetAlignment(&gospreadsheet.Alignment{Vertical: gospreadsheet.AlignMiddle}).
		SetBorders(borders("D9D9D9"))

	writeRow(index, 0, headerStyle, "Sheet", "Key", "Metric", "Formula", "Value", "Rows")
	index.FreezePane("A2")
	for i, w := range []float64{24, 16, 20, 60, 14, 8} {
		index.SetColumnWidth(i, w)
	}

	names := make(map[string]bool)
	names[strings.ToLower(index.Title())] = true
	for i, d := range details {
		name := sheetName(d.Key+" - "+d.Metric, names)
		ws, err := wb.AddSheet(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}

		formula := d.Formula
		if formula == "" {
			formula = NoFormula
		}
		writeRow(index, i+1, dataStyle, name, d.Key, d.Metric, formula)
		setCell(index, i+1, 4, d.Value, dataStyle)
		setCell(index, i+1, 5, Cell{Number: float64(len(d.Rows)), Numeric: true}, dataStyle)

		row := 0
		label := func(k, v string) {
			writeRow(ws, row, nil, k, v)
			ref, _ := gospreadsheet.CellName(row, 0)
			ws.SetCellStyle(ref, labelStyle)
			row++
		}
		label("Formula", formula)
		label("Table", d.Table)
		ref, _ := gospreadsheet.CellName(row, 0)
		ws.SetCellValue(ref, "Evaluated value")
		ws.SetCellStyle(ref, labelStyle)
		setCell(ws, row, 1, d.Value, nil)
		row++
		for _, f := range d.Filters {
			label("Filter", f)
		}
		row++

		writeRow(ws, row, headerStyle, d.Columns...)
		ws.SetRowHeight(row, 22)
		freeze, _ := gospreadsheet.CellName(row+1, 0)
		ws.FreezePane(freeze)
		for j, c := range d.Columns {
			ws.SetColumnWidth(j, columnWidth(c))
		}
		for _, r := range d.Rows {
			row++
			for j := 0; j < len(d.Columns) && j < len(r); j++ {
				setCell(ws, row, j, r[j], dataStyle)
			}
		}
	}

	wb.Properties.Title = title
	wb.Properties.Creator = "sheetdeck"
	wb.Properties.Description = "Source rows behind each linked summary metric"

	var buf bytes.Buffer
	if err := gospreadsheet.NewXLSXWriter().Write(wb, &buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(ws *gospreadsheet.Worksheet, row int, style *gospreadsheet.Style, values ...string) {
	for j, v := range values {
		ref, _ := gospreadsheet.CellName(row, j)
		ws.SetCellValue(ref, v)
		if style != nil {
			ws.SetCellStyle(ref, style)
		}
	}
}

func setCell(ws *gospreadsheet.Worksheet, row, col int, c Cell, style *gospreadsheet.Style) {
	ref, _ := gospreadsheet.CellName(row, col)
	if c.Numeric {
		ws.SetCellValue(ref, c.Number)
	} else {
		ws.SetCellValue(ref, c.Text)
	}
	if style != nil {
		ws.SetCellStyle(ref, style)
	}
}

func borders(color string) *gospreadsheet.Borders {
	b := gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: color}
	return &gospreadsheet.Borders{Left: b, Top: b, Bottom: b, Right: b}
}

func columnWidth(title string) float64 {
	return min(max(float64(len([]rune(title)))*1.5, 12), 60)
}

// sheetName makes name a valid, unused worksheet name: no []:*?/\ and at
// most 31 characters. taken is updated with the result.
func sheetName(name string, taken map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if name == "" {
		name = "Detail"
	}
	base := name
	for n := 2; ; n++ {
		if r := []rune(name); len(r) > maxSheetName {
			name = string(r[:maxSheetName])
		}
		if !taken[strings.ToLower(name)] {
			break
		}
		suffix := " (" + strconv.Itoa(n) + ")"
		r := []rune(base)
		if len(r)+len([]rune(suffix)) > maxSheetName {
			r = r[:maxSheetName-len([]rune(suffix))]
		}
		name = string(r) + suffix
	}
	taken[strings.ToLower(name)] = true
	return name
}
