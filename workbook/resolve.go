package workbook

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/AnandVetcha/excel-to-ppt-explainer/formula"
)

// ResolveFormulas sets the formula behind every metric cell of s.
//
// A cell filled by a dynamic array has no formula of its own; its formula
// lives in the anchor cell the array spills from. For such cells the column
// is searched upward to the first data row, then downward to the last data
// row, and finally the row is searched leftward for a horizontal spill. The
// nearest stored formula wins and the cell is marked Spilled.
func (w *Workbook) ResolveFormulas(s *Summary) error {
	first, last := s.HeaderRow+1, s.HeaderRow
	if n := len(s.Rows); n > 0 {
		last = s.Rows[n-1].Row
	}
	for ri := range s.Rows {
		row := &s.Rows[ri]
		for ci := range row.Cells {
			cell := &row.Cells[ci]
			f, src, err := w.resolveCell(s, cell.Col, row.Row, first, last)
			if err != nil {
				return err
			}
			cell.Formula = f
			cell.SourceAddress = src
			cell.Spilled = f != "" && src != cell.Address
			entry := log.WithFields(logrus.Fields{"cell": cell.Address, "key": row.Key.Text, "metric": cell.Header})
			switch {
			case f == "":
				entry.Warn("no formula found")
			case cell.Spilled:
				entry.Debugf("spilled from %s: %s", src, f)
			default:
				entry.Debugf("formula: %s", f)
			}
		}
	}
	return nil
}

// SpillSource returns the formula behind the cell at (col,row) and the
// address it is stored in, searching the summary block as ResolveFormulas
// does. Both are empty when no formula is found.
func (w *Workbook) SpillSource(s *Summary, col, row int) (string, string, error) {
	first, last := s.HeaderRow+1, s.HeaderRow
	if n := len(s.Rows); n > 0 {
		last = s.Rows[n-1].Row
	}
	return w.resolveCell(s, col, row, first, last)
}

func (w *Workbook) resolveCell(s *Summary, col, row, first, last int) (string, string, error) {
	try := func(c, r int) (string, string, error) {
		addr := cellName(c, r)
		f, err := w.Formula(s.Sheet, addr)
		return f, addr, err
	}
	if f, addr, err := try(col, row); err != nil || f != "" {
		return f, addr, err
	}
	for r := row - 1; r >= first; r-- {
		if f, addr, err := try(col, r); err != nil || f != "" {
			return f, addr, err
		}
	}
	for r := row + 1; r <= last; r++ {
		if f, addr, err := try(col, r); err != nil || f != "" {
			return f, addr, err
		}
	}
	for c := col - 1; c > s.StartCol; c-- {
		if f, addr, err := try(c, row); err != nil || f != "" {
			return f, addr, err
		}
	}
	return "", "", nil
}

// SpillResolver is Resolver for a cell whose formula is stored at src. A
// range operand resolves to the element at the cell's offset from src, the
// way a spilled array pairs each input with an output: with the anchor in C2,
// "$A2:$A4" reads A3 for C3 and A4 for C4.
func (w *Workbook) SpillResolver(sheet, src, cell string) formula.CellResolver {
	base := w.Resolver(sheet)
	dc, dr := 0, 0
	if src != "" && src != cell {
		sc, sr, err1 := excelize.CellNameToCoordinates(src)
		cc, cr, err2 := excelize.CellNameToCoordinates(cell)
		if err1 == nil && err2 == nil {
			dc, dr = cc-sc, cr-sr
		}
	}
	return func(ref string) (string, bool) {
		prefix, rng := "", ref
		if i := strings.LastIndex(ref, "!"); i >= 0 {
			prefix, rng = ref[:i+1], ref[i+1:]
		}
		from, to, ok := strings.Cut(strings.ReplaceAll(rng, "$", ""), ":")
		if !ok {
			return base(ref)
		}
		c1, r1, err := excelize.CellNameToCoordinates(from)
		if err != nil {
			return "", false
		}
		c2, r2, err := excelize.CellNameToCoordinates(to)
		if err != nil {
			return "", false
		}
		c, r := c1, r1
		switch {
		case c1 == c2:
			r += dr
		case r1 == r2:
			c += dc
		default:
			c, r = c+dc, r+dr
		}
		if c < min(c1, c2) || c > max(c1, c2) || r < min(r1, r2) || r > max(r1, r2) {
			return "", false
		}
		return base(prefix + cellName(c, r))
	}
}
