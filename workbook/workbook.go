// Package workbook reads the parts of an .xlsx file the deck is built from:
// named tables, the summary block and the formulas behind each metric.
package workbook

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AnandVetcha/excel-to-ppt-explainer/formula"
	"github.com/AnandVetcha/excel-to-ppt-explainer/logger"
	"github.com/xuri/excelize/v2"
)

var log = logger.Get().WithField("prefix", "workbook")

var (
	ErrNoTables      = errors.New("workbook has no tables")
	ErrEmptySummary  = errors.New("summary range is empty")
	ErrSheetNotFound = errors.New("sheet not found")
)

// Workbook is an open .xlsx file.
type Workbook struct {
	f    *excelize.File
	path string
}

// Open opens the workbook at path.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &Workbook{f: f, path: path}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// Path returns the file the workbook was opened from.
func (w *Workbook) Path() string {
	return w.path
}

// Sheets lists the worksheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

// ResolveSheet returns the canonical name of sheet. An empty name selects the
// active sheet; names match case-insensitively.
func (w *Workbook) ResolveSheet(sheet string) (string, error) {
	if strings.TrimSpace(sheet) == "" {
		name := w.f.GetSheetName(w.f.GetActiveSheetIndex())
		if name == "" {
			return "", ErrSheetNotFound
		}
		return name, nil
	}
	for _, name := range w.f.GetSheetList() {
		if strings.EqualFold(name, strings.TrimSpace(sheet)) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
}

// Value is a cell's cached result.
type Value struct {
	Text      string // raw stored value
	Formatted string // value with the cell's number format applied
	Number    float64
	Numeric   bool
}

func (v Value) String() string {
	return v.Text
}

// IsEmpty reports whether the cell holds nothing.
func (v Value) IsEmpty() bool {
	return strings.TrimSpace(v.Text) == ""
}

// Display is the text shown for v: the formatted value for text and dates,
// the raw value for plain numbers.
func (v Value) Display() string {
	if v.Numeric || v.Formatted == "" {
		return v.Text
	}
	return v.Formatted
}

// CellValue returns the cached value of a cell. Formula cells saved without a
// cached result are calculated.
func (w *Workbook) CellValue(sheet, cell string) (Value, error) {
	raw, err := w.f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return Value{}, fmt.Errorf("failed to read %s!%s: %w", sheet, cell, err)
	}
	typ, err := w.f.GetCellType(sheet, cell)
	if err != nil {
		return Value{}, fmt.Errorf("failed to read %s!%s: %w", sheet, cell, err)
	}
	if raw == "" {
		if f, _ := w.f.GetCellFormula(sheet, cell); f != "" {
			calc, err := w.f.CalcCellValue(sheet, cell, excelize.Options{RawCellValue: true})
			if err != nil {
				log.WithField("cell", sheet+"!"+cell).Debugf("no cached value and calculation failed: %v", err)
			} else {
				raw = calc
				typ = excelize.CellTypeUnset
			}
		}
	}
	formatted, err := w.f.GetCellValue(sheet, cell)
	if err != nil {
		formatted = raw
	}
	v := Value{Text: raw, Formatted: formatted}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeBool, excelize.CellTypeError:
	default:
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			v.Number, v.Numeric = n, true
		}
	}
	return v, nil
}

// Formula returns the normalized formula stored in a cell, or "".
func (w *Workbook) Formula(sheet, cell string) (string, error) {
	f, err := w.f.GetCellFormula(sheet, cell)
	if err != nil {
		return "", fmt.Errorf("failed to read formula %s!%s: %w", sheet, cell, err)
	}
	return formula.Normalize(f), nil
}

// Resolver looks up criterion cells. Unqualified references such as "$A12"
// are read from sheet.
func (w *Workbook) Resolver(sheet string) formula.CellResolver {
	return func(ref string) (string, bool) {
		target, cell := sheet, ref
		if i := strings.LastIndex(ref, "!"); i >= 0 {
			target = strings.Trim(ref[:i], "'")
			cell = ref[i+1:]
		}
		cell = strings.ReplaceAll(cell, "$", "")
		name, err := w.ResolveSheet(target)
		if err != nil {
			return "", false
		}
		v, err := w.CellValue(name, cell)
		if err != nil {
			return "", false
		}
		return v.Text, true
	}
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
