// Package report turns a workbook's summary block into a linked deck: it
// reads the workbook, works out the rows behind every metric, renders the
// slides and adds the slide-jump links.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/AnandVetcha/excel-to-ppt-explainer/config"
	"github.com/AnandVetcha/excel-to-ppt-explainer/export"
	"github.com/AnandVetcha/excel-to-ppt-explainer/formula"
	"github.com/AnandVetcha/excel-to-ppt-explainer/logger"
	"github.com/AnandVetcha/excel-to-ppt-explainer/pptxpkg"
	"github.com/AnandVetcha/excel-to-ppt-explainer/workbook"
)

var log = logger.Get().WithField("prefix", "report")

// Result describes a written deck.
type Result struct {
	Output         string
	DetailWorkbook string
	Slides         int // slides in the output, template slides included
	Details        int
	Links          int
}

// CellReport explains how one summary cell was traced back to its rows.
type CellReport struct {
	Address  string
	Source   string // cell holding the formula
	Spilled  bool
	Key      string
	Metric   string
	Value    string
	Formula  string
	Skipped  bool
	Table    string
	Tables   []string // tables the formula references
	Columns  []string
	Criteria []string // criteria found in the formula
	Filters  []string // filters applied to the table
	Rows     int
}

// Service builds decks.
type Service struct {
	decks   *export.DeckService
	details *export.DetailWorkbookService
}

func NewService() *Service {
	return &Service{
		decks:   export.NewDeckService(),
		details: export.NewDetailWorkbookService(),
	}
}

// Build writes the deck described by cfg, and the detail workbook when one is
// configured. Slides are appended to cfg.Template when it is set.
func (s *Service) Build(ctx context.Context, cfg config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, err := pptxpkg.ParseLinkMode(cfg.LinkMode)
	if err != nil {
		return nil, err
	}

	var tpl *pptxpkg.Package
	if cfg.Template != "" {
		if tpl, err = pptxpkg.OpenFile(cfg.Template); err != nil {
			return nil, err
		}
	}

	p, err := s.collect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := export.RenderOptions{
		FontPt:  cfg.TableFontPt,
		Digits:  cfg.RoundDigits,
		MaxRows: cfg.MaxDetailRows,
	}
	if tpl != nil {
		if cx, cy, err := tpl.SlideSize(); err == nil {
			opts.Width, opts.Height = cx, cy
		} else {
			log.Warnf("using default slide size: %v", err)
		}
	}
	rendered, err := s.decks.Render(p.deck, opts)
	if err != nil {
		return nil, err
	}

	deck, err := pptxpkg.Open(rendered.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered deck: %w", err)
	}
	links := rendered.Links
	if tpl != nil {
		start, err := tpl.Append(deck)
		if err != nil {
			return nil, fmt.Errorf("failed to append to %s: %w", cfg.Template, err)
		}
		links = lo.Map(links, func(l pptxpkg.Link, _ int) pptxpkg.Link {
			l.FromSlide += start
			l.ToSlide += start
			return l
		})
		deck = tpl
		log.Debugf("appended %d slides after %d template slides", rendered.Slides, start)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	placed, err := deck.LinkAll(links, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to add links: %w", err)
	}
	if placed < len(links) {
		log.Warnf("placed %d of %d links", placed, len(links))
	}

	out := cfg.OutputPath()
	if err := deck.WriteFile(out); err != nil {
		return nil, err
	}
	slides, err := deck.Slides()
	if err != nil {
		return nil, err
	}
	res := &Result{Output: out, Slides: len(slides), Details: len(p.deck.Details), Links: placed}

	if cfg.DetailWorkbook != "" {
		if len(p.deck.Details) == 0 {
			log.Warn("every metric column is skipped, no detail workbook written")
		} else {
			data, err := s.details.Export(p.deck.Title, p.deck.Details)
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(cfg.DetailWorkbook, data, 0644); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", cfg.DetailWorkbook, err)
			}
			res.DetailWorkbook = cfg.DetailWorkbook
		}
	}

	log.WithFields(logrus.Fields{
		"slides":  res.Slides,
		"details": res.Details,
		"links":   res.Links,
	}).Infof("deck written to %s", out)
	return res, nil
}

// Inspect traces every summary cell without rendering anything.
func (s *Service) Inspect(ctx context.Context, cfg config.Config) ([]CellReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	p, err := s.collect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return p.reports, nil
}

type plan struct {
	deck    export.DeckData
	reports []CellReport
}

func (s *Service) collect(ctx context.Context, cfg config.Config) (*plan, error) {
	wb, err := workbook.Open(cfg.Workbook)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheet, err := wb.ResolveSheet(cfg.Sheet)
	if err != nil {
		return nil, err
	}
	tables, err := wb.LoadTables()
	if err != nil {
		return nil, err
	}
	def := tables[0]
	if cfg.RawTable != "" {
		if t := tables.Find(cfg.RawTable); t != nil {
			def = t
		} else {
			log.Warnf("table %q not found, using %s (have %s)", cfg.RawTable, def.Name, strings.Join(tables.Names(), ", "))
		}
	}

	summary, err := wb.DetectSummary(sheet, cfg.SummaryStart, cfg.MaxColumns)
	if err != nil {
		return nil, err
	}
	if err := wb.ResolveFormulas(summary); err != nil {
		return nil, err
	}

	t := &tracer{wb: wb, sheet: sheet, tables: tables, def: def, keyHeaders: []string{cfg.KeyHeader, summary.KeyHeader}}

	p := &plan{deck: export.DeckData{
		Title:   strings.TrimSuffix(filepath.Base(cfg.Workbook), filepath.Ext(cfg.Workbook)),
		Headers: append([]string{summary.KeyHeader}, summary.Headers...),
	}}
	for _, row := range summary.Rows {
		sr := export.SummaryRow{Key: cell(row.Key)}
		for _, c := range row.Cells {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sc := export.SummaryCell{Cell: cell(c.Value), Detail: -1}
			if cfg.Skipped(c.Index) {
				p.reports = append(p.reports, CellReport{
					Address: c.Address, Source: c.SourceAddress, Spilled: c.Spilled,
					Key: row.Key.Display(), Metric: c.Header, Value: c.Value.Display(),
					Formula: c.Formula, Skipped: true,
				})
				sr.Cells = append(sr.Cells, sc)
				continue
			}
			d, rep := t.trace(row, c)
			sc.Detail = len(p.deck.Details)
			p.deck.Details = append(p.deck.Details, d)
			p.reports = append(p.reports, rep)
			sr.Cells = append(sr.Cells, sc)
		}
		p.deck.Rows = append(p.deck.Rows, sr)
	}
	return p, nil
}

// tracer finds the table rows behind summary cells.
type tracer struct {
	wb        *workbook.Workbook
	sheet      string
	tables     workbook.Tables
	def        *workbook.Table
	keyHeaders []string // configured key header, then the summary's
}

// keyColumn is the first of the key headers present in table, or -1.
func (t *tracer) keyColumn(table *workbook.Table) int {
	for _, h := range t.keyHeaders {
		if h == "" {
			continue
		}
		if i := table.ColumnIndex(h); i >= 0 {
			return i
		}
	}
	return -1
}

type filter struct {
	col   int
	match func(string) bool
}

func (t *tracer) trace(row workbook.SummaryRow, c workbook.SummaryCell) (export.Detail, CellReport) {
	a := formula.Analyze(c.Formula)
	entry := log.WithFields(logrus.Fields{"cell": c.Address, "key": row.Key.Text, "metric": c.Header})

	table := t.def
	for _, name := range a.Tables() {
		if found := t.tables.Find(name); found != nil {
			table = found
			break
		}
		entry.Warnf("formula references unknown table %s", name)
	}

	var idx []int
	var columns []string
	names := a.Columns(table.Name, table.Headers)
	if k := t.keyColumn(table); k >= 0 {
		names = append([]string{table.Headers[k]}, names...)
	}
	for _, name := range names {
		if i := table.ColumnIndex(name); i >= 0 && !lo.Contains(idx, i) {
			idx = append(idx, i)
			columns = append(columns, table.Headers[i])
		}
	}
	if len(idx) == 0 {
		idx = lo.Range(len(table.Headers))
		columns = append([]string(nil), table.Headers...)
	}

	rep := CellReport{
		Address: c.Address, Source: c.SourceAddress, Spilled: c.Spilled,
		Key: row.Key.Display(), Metric: c.Header, Value: c.Value.Display(),
		Formula: c.Formula, Table: table.Name, Tables: a.Tables(), Columns: columns,
	}

	resolve := t.wb.SpillResolver(t.sheet, c.SourceAddress, c.Address)
	var filters []filter
	for _, cr := range a.CriteriaFor(table.Name) {
		rep.Criteria = append(rep.Criteria, cr.String())
		col := table.ColumnIndex(cr.Column)
		if col < 0 {
			entry.Warnf("%s has no column %s", table.Name, cr.Column)
			continue
		}
		match, ok := cr.Predicate(resolve)
		if !ok {
			entry.Warnf("can't resolve criterion %s", cr)
			continue
		}
		v, _ := cr.Operand.Resolve(resolve)
		op := cr.Op
		if cr.FromIFS {
			op, v = formula.ParseCriterion(v)
		}
		filters = append(filters, filter{col: col, match: match})
		rep.Filters = append(rep.Filters, describe(table.Name, table.Headers[col], op, v))
	}
	if len(filters) == 0 {
		col := t.keyColumn(table)
		if col < 0 {
			col = 0
		}
		key := row.Key.Text
		filters = append(filters, filter{col: col, match: func(s string) bool {
			return formula.Matches("=", key, s, false)
		}})
		rep.Filters = append(rep.Filters, describe(table.Name, table.Headers[col], "=", row.Key.Display()))
		entry.Debugf("no usable criteria, filtering on %s", table.Headers[col])
	}

	d := export.Detail{
		Key:     rep.Key,
		Metric:  c.Header,
		Formula: c.Formula,
		Value:   cell(c.Value),
		Table:   table.Name,
		Filters: rep.Filters,
		Columns: columns,
	}
	for _, r := range table.Rows {
		if !lo.EveryBy(filters, func(f filter) bool { return f.col < len(r) && f.match(r[f.col].Text) }) {
			continue
		}
		out := make([]export.Cell, 0, len(idx))
		for _, i := range idx {
			if i < len(r) {
				out = append(out, cell(r[i]))
			} else {
				out = append(out, export.Cell{})
			}
		}
		d.Rows = append(d.Rows, out)
	}
	rep.Rows = len(d.Rows)
	entry.WithFields(logrus.Fields{"table": table.Name, "rows": rep.Rows}).Debugf("columns: %s", strings.Join(columns, ", "))
	return d, rep
}

func describe(table, column, op, value string) string {
	return fmt.Sprintf("%s[%s] %s %s", table, column, op, strconv.Quote(value))
}

func cell(v workbook.Value) export.Cell {
	return export.Cell{Text: v.Display(), Number: v.Number, Numeric: v.Numeric}
}
