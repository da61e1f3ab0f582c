package workbook

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// SummaryCell is one metric value in the summary block.
type SummaryCell struct {
	Address string
	Header  string
	Col     int // worksheet column
	Index   int // 1-based position among the metric columns
	Value   Value

	// Filled by ResolveFormulas.
	Formula       string
	SourceAddress string
	Spilled       bool
}

// SummaryRow is one row of the summary block: a key and its metrics.
type SummaryRow struct {
	Row   int
	Key   Value
	Cells []SummaryCell
}

// Summary is the block of metrics the summary slide reproduces. The first
// column holds row keys; every other column is a metric.
type Summary struct {
	Sheet     string
	HeaderRow int
	StartCol  int
	KeyHeader string
	Headers   []string // metric headers, key column excluded
	Rows      []SummaryRow
}

// Cells returns the number of metric cells in the block.
func (s *Summary) Cells() int {
	n := 0
	for _, r := range s.Rows {
		n += len(r.Cells)
	}
	return n
}

// DetectSummary reads the summary block whose first key cell is start. The
// header row is the row above start and runs right until an empty header or
// maxCols columns; data rows run down until the key column is empty.
func (w *Workbook) DetectSummary(sheet, start string, maxCols int) (*Summary, error) {
	col, row, err := excelize.CellNameToCoordinates(strings.ReplaceAll(strings.TrimSpace(start), "$", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid summary start %q: %w", start, err)
	}
	if row < 2 {
		return nil, fmt.Errorf("summary start %s has no header row above it: %w", start, ErrEmptySummary)
	}
	if maxCols <= 0 {
		maxCols = 60
	}
	s := &Summary{Sheet: sheet, HeaderRow: row - 1, StartCol: col}

	var headers []string
	for c := col; c < col+maxCols; c++ {
		v, err := w.CellValue(sheet, cellName(c, s.HeaderRow))
		if err != nil {
			return nil, err
		}
		h := strings.TrimSpace(v.Display())
		if h == "" {
			break
		}
		headers = append(headers, h)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("no headers at row %d: %w", s.HeaderRow, ErrEmptySummary)
	}
	s.KeyHeader = headers[0]
	s.Headers = headers[1:]

	for r := row; ; r++ {
		key, err := w.CellValue(sheet, cellName(col, r))
		if err != nil {
			return nil, err
		}
		if key.IsEmpty() {
			break
		}
		sr := SummaryRow{Row: r, Key: key}
		for i, h := range s.Headers {
			c := col + 1 + i
			addr := cellName(c, r)
			v, err := w.CellValue(sheet, addr)
			if err != nil {
				return nil, err
			}
			sr.Cells = append(sr.Cells, SummaryCell{Address: addr, Header: h, Col: c, Index: i + 1, Value: v})
		}
		s.Rows = append(s.Rows, sr)
	}
	if len(s.Rows) == 0 {
		return nil, fmt.Errorf("no rows below %s: %w", start, ErrEmptySummary)
	}
	log.WithFields(logrus.Fields{
		"sheet":   sheet,
		"headers": len(headers),
		"rows":    len(s.Rows),
	}).Debugf("summary block: %s", strings.Join(headers, ", "))
	return s, nil
}
