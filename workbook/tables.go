package workbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/formula"
)

// Table is a named Excel table (ListObject) with its cached data.
type Table struct {
	Name     string
	Sheet    string
	Range    string
	Headers  []string
	Rows     [][]Value
	Formulas [][]string // per data cell, "" for constants
	FirstRow int        // worksheet row of the first data row
	FirstCol int
}

// ColumnIndex returns the position of the named header, matched
// case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	name = strings.TrimSpace(name)
	for i, h := range t.Headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// ColumnFormula returns the first formula in column col, or "" when the
// column holds only constants.
func (t *Table) ColumnFormula(col int) string {
	for _, row := range t.Formulas {
		if col < len(row) && row[col] != "" {
			return row[col]
		}
	}
	return ""
}

// DependsOn lists the columns of t that the formula of column col reads,
// whether written as Table[Col] or as an implicit [@Col].
func (t *Table) DependsOn(col int) []string {
	f := t.ColumnFormula(col)
	if f == "" {
		return nil
	}
	cols := append(formula.ColumnsFor(f, t.Name, t.Headers), formula.ColumnsFor(f, "", t.Headers)...)
	return lo.Uniq(cols)
}

// HasColumn reports whether the table has the named header.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Tables is every table of a workbook in sheet order.
type Tables []*Table

// Find returns the table with the given name, matched case-insensitively.
func (ts Tables) Find(name string) *Table {
	for _, t := range ts {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t
		}
	}
	return nil
}

// Names lists the table names.
func (ts Tables) Names() []string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.Name)
	}
	return names
}

// LoadTables reads every table on every sheet. The first row of a table's
// range is its header row.
func (w *Workbook) LoadTables() (Tables, error) {
	var tables Tables
	for _, sheet := range w.f.GetSheetList() {
		defs, err := w.f.GetTables(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables on %s: %w", sheet, err)
		}
		for _, def := range defs {
			t, err := w.loadTable(sheet, def)
			if err != nil {
				return nil, err
			}
			log.WithFields(logrus.Fields{
				"table": t.Name,
				"sheet": sheet,
				"rows":  len(t.Rows),
			}).Debugf("columns: %s", strings.Join(t.Headers, ", "))
			for col, h := range t.Headers {
				if f := t.ColumnFormula(col); f != "" {
					log.WithFields(logrus.Fields{
						"table":  t.Name,
						"column": h,
					}).Debugf("calculated from %s: %s", strings.Join(t.DependsOn(col), ", "), f)
				}
			}
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	return tables, nil
}

func (w *Workbook) loadTable(sheet string, def excelize.Table) (*Table, error) {
	firstCol, firstRow, lastCol, lastRow, err := parseRange(def.Range)
	if err != nil {
		return nil, fmt.Errorf("table %s has invalid range %q: %w", def.Name, def.Range, err)
	}
	t := &Table{
		Name:     def.Name,
		Sheet:    sheet,
		Range:    def.Range,
		FirstRow: firstRow + 1,
		FirstCol: firstCol,
	}
	for col := firstCol; col <= lastCol; col++ {
		v, err := w.CellValue(sheet, cellName(col, firstRow))
		if err != nil {
			return nil, err
		}
		t.Headers = append(t.Headers, strings.TrimSpace(v.Display()))
	}
	for row := firstRow + 1; row <= lastRow; row++ {
		values := make([]Value, 0, len(t.Headers))
		formulas := make([]string, 0, len(t.Headers))
		for col := firstCol; col <= lastCol; col++ {
			addr := cellName(col, row)
			v, err := w.CellValue(sheet, addr)
			if err != nil {
				return nil, err
			}
			f, err := w.Formula(sheet, addr)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			formulas = append(formulas, f)
		}
		t.Rows = append(t.Rows, values)
		t.Formulas = append(t.Formulas, formulas)
	}
	return t, nil
}

// parseRange splits "A1:D20" into its corner coordinates.
func parseRange(ref string) (firstCol, firstRow, lastCol, lastRow int, err error) {
	parts := strings.Split(strings.ReplaceAll(ref, "$", ""), ":")
	if len(parts) != 2 {
		return 0, 0, 0, 0, errors.New("expected two corners")
	}
	if firstCol, firstRow, err = excelize.CellNameToCoordinates(parts[0]); err != nil {
		return
	}
	if lastCol, lastRow, err = excelize.CellNameToCoordinates(parts[1]); err != nil {
		return
	}
	if firstCol > lastCol {
		firstCol, lastCol = lastCol, firstCol
	}
	if firstRow > lastRow {
		firstRow, lastRow = lastRow, firstRow
	}
	return
}
