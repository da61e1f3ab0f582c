// Package export renders the summary and detail slides with GoPPT and the
// companion detail workbook with GoExcel.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	ppt "github.com/VantageDataChat/GoPPT"

	"github.com/AnandVetcha/excel-to-ppt-explainer/logger"
	"github.com/AnandVetcha/excel-to-ppt-explainer/pptxpkg"
)

var log = logger.Get().WithField("prefix", "export")

const (
	SummaryTitle = "Summary Table"
	HomeText     = "Back to summary"
	NoFormula    = "(no formula found)"
	NoRows       = "(no matching rows)"
)

// Layout constants, 16:9 by default.
const (
	emuPerInch = 914400

	DefaultSlideWidth  = int64(10.0 * emuPerInch)
	DefaultSlideHeight = int64(5.625 * emuPerInch)

	marginX       = int64(0.4 * emuPerInch)
	titleTop      = int64(0.3 * emuPerInch)
	titleHeight   = int64(0.6 * emuPerInch)
	contentTop    = int64(1.1 * emuPerInch)
	footerHeight  = int64(0.3 * emuPerInch)
	formulaHeight = int64(1.2 * emuPerInch) // minimum
	formulaPad    = int64(0.15 * emuPerInch)
	gap           = int64(0.1 * emuPerInch)
	homeWidth     = int64(1.4 * emuPerInch)
	homeHeight    = int64(0.4 * emuPerInch)
	minRowHeight  = int64(0.25 * emuPerInch)

	fontTitle   = 28
	fontFormula = 14
	fontHome    = 10
	fontFooter  = 9
	fontMin     = 6

	colorAccent   = "FF3B82F6"
	colorTitle    = "FF1E40AF"
	colorText     = "FF334155"
	colorMuted    = "FF94A3B8"
	colorRowEven  = "FFF8FAFC"
	colorRowOdd   = "FFF1F5F9"
	colorHomeFill = "FFE2E8F0"
)

// Cell is one value shown in a grid.
type Cell struct {
	Text    string
	Number  float64
	Numeric bool
}

// SummaryCell is a metric on the summary slide. Detail indexes
// DeckData.Details; -1 means the cell has no detail slide.
type SummaryCell struct {
	Cell
	Detail int
}

type SummaryRow struct {
	Key   Cell
	Cells []SummaryCell
}

// Detail is the content of one detail slide (and its continuation pages).
type Detail struct {
	Key     string
	Metric  string
	Formula string
	Value   Cell
	Table   string
	Filters []string
	Columns []string
	Rows    [][]Cell
}

// Title is the detail slide title, also used as the link tooltip.
func (d Detail) Title() string {
	return d.Key + " – " + d.Metric
}

// DeckData is everything the rendered deck shows.
type DeckData struct {
	Title   string   // document title
	Headers []string // key header first, then metric headers
	Rows    []SummaryRow
	Details []Detail
}

// RenderOptions zero values select the defaults, except Digits: 0 rounds to
// whole numbers. config.Default supplies the usual 2.
type RenderOptions struct {
	Width   int64 // slide size in EMU
	Height  int64
	FontPt  int // grid font size
	Digits  int // decimals for numeric values, negative is treated as 0
	MaxRows int // detail rows per slide, upper bound
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = DefaultSlideWidth, DefaultSlideHeight
	}
	if o.FontPt <= 0 {
		o.FontPt = 12
	}
	if o.Digits < 0 {
		o.Digits = 0
	}
	if o.MaxRows <= 0 {
		o.MaxRows = 14
	}
	return o
}

// RenderedDeck is a standalone deck plus the hyperlinks still to be added to
// it. Slide numbers in Links and DetailSlides are 0-based within the deck.
type RenderedDeck struct {
	Data          []byte
	Slides        int
	SummarySlides int
	DetailSlides  []int // first slide of each detail
	Links         []pptxpkg.Link
}

// DeckService renders decks using GoPPT.
type DeckService struct{}

func NewDeckService() *DeckService {
	return &DeckService{}
}

// Render lays out the summary slides followed by one or more slides per
// detail. GoPPT does not write slide-jump hyperlinks, so the links are
// returned for pptxpkg to add once the deck is in its final position.
func (s *DeckService) Render(deck DeckData, opts RenderOptions) (*RenderedDeck, error) {
	if len(deck.Headers) == 0 {
		return nil, fmt.Errorf("deck has no summary headers")
	}
	opts = opts.withDefaults()
	l := newLayout(opts)

	summaryPages := pages(len(deck.Rows), l.summaryRows)
	out := &RenderedDeck{SummarySlides: summaryPages}
	next := summaryPages
	for _, d := range deck.Details {
		out.DetailSlides = append(out.DetailSlides, next)
		next += pages(len(d.Rows), l.detailRows(d))
	}
	out.Slides = next

	p := ppt.New()
	p.GetLayout().SetCustomLayout(opts.Width, opts.Height)
	p.GetDocumentProperties().Title = deck.Title
	p.GetDocumentProperties().Creator = "sheetdeck"

	slide := func(i int) *slideBuilder {
		if i == 0 {
			return &slideBuilder{slide: p.GetActiveSlide(), index: 0}
		}
		return &slideBuilder{slide: p.CreateSlide(), index: i}
	}

	for page := 0; page < summaryPages; page++ {
		b := slide(page)
		title := SummaryTitle
		if page > 0 {
			title = fmt.Sprintf("%s (%d/%d)", SummaryTitle, page+1, summaryPages)
		}
		b.header(l, title, false)

		lo := page * l.summaryRows
		hi := min(lo+l.summaryRows, len(deck.Rows))
		rows := make([][]Cell, 0, hi-lo)
		for _, r := range deck.Rows[lo:hi] {
			row := []Cell{r.Key}
			for _, c := range r.Cells {
				row = append(row, c.Cell)
			}
			rows = append(rows, row)
		}
		g := b.grid(l, contentTop, deck.Headers, rows)
		for i, r := range deck.Rows[lo:hi] {
			for j, c := range r.Cells {
				if c.Detail < 0 || c.Detail >= len(deck.Details) || j+1 >= len(g.shapes[i]) {
					continue
				}
				text := g.texts[i][j+1]
				if text == "" {
					continue
				}
				out.Links = append(out.Links, pptxpkg.Link{
					FromSlide: page,
					Shape:     g.shapes[i][j+1],
					Text:      text,
					ToSlide:   out.DetailSlides[c.Detail],
					Tooltip:   deck.Details[c.Detail].Title(),
				})
			}
		}
	}

	for i, d := range deck.Details {
		perPage := l.detailRows(d)
		n := pages(len(d.Rows), perPage)
		for page := 0; page < n; page++ {
			b := slide(out.DetailSlides[i] + page)
			title := d.Title()
			if page > 0 {
				title = fmt.Sprintf("%s (cont. %d)", title, page+1)
			}
			home := b.header(l, title, true)
			out.Links = append(out.Links, pptxpkg.Link{
				FromSlide: b.index,
				Shape:     home,
				Text:      HomeText,
				ToSlide:   0,
				Tooltip:   SummaryTitle,
			})
			b.formulaBox(l, d)

			lo := page * perPage
			hi := min(lo+perPage, len(d.Rows))
			top := contentTop + l.formulaHeight(d) + gap
			b.grid(l, top, d.Columns, d.Rows[lo:hi])
			if len(d.Rows) == 0 {
				b.note(l, top+l.rowHeight+gap, NoRows, ppt.HorizontalLeft)
			} else {
				b.footer(l, fmt.Sprintf("Showing rows %d-%d of %d", lo+1, hi, len(d.Rows)))
			}
		}
	}

	w, err := ppt.NewWriter(p, ppt.WriterPowerPoint2007)
	if err != nil {
		return nil, fmt.Errorf("failed to create PPT writer: %w", err)
	}
	var buf bytes.Buffer
	if err := w.(*ppt.PPTXWriter).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to save PPT: %w", err)
	}
	out.Data = buf.Bytes()

	log.WithField("slides", out.Slides).Debugf("rendered %d summary and %d detail slides", summaryPages, out.Slides-summaryPages)
	return out, nil
}

// layout is the geometry shared by every slide of a deck.
type layout struct {
	opts         RenderOptions
	contentWidth int64
	rowHeight    int64
	summaryRows  int // data rows per summary slide
}

func newLayout(opts RenderOptions) layout {
	l := layout{
		opts:         opts,
		contentWidth: opts.Width - 2*marginX,
		rowHeight:    max(int64(float64(emuPerInch)*0.4*float64(opts.FontPt)/18), minRowHeight),
	}
	bottom := opts.Height - footerHeight
	l.summaryRows = max(int((bottom-contentTop)/l.rowHeight)-1, 1)
	return l
}

// formulaHeight is the height of d's formula box: one line each for the
// label, the wrapped formula, the value and every filter.
func (l layout) formulaHeight(d Detail) int64 {
	formula := d.Formula
	if formula == "" {
		formula = NoFormula
	}
	perLine := maxChars(l.contentWidth, fontFormula)
	lines := 2 + (len([]rune(formula))+perLine-1)/perLine
	for _, f := range d.Filters {
		lines += (len([]rune("Filter: "+f)) + perLine - 1) / perLine
	}
	lineHeight := int64(float64(emuPerInch) * fontFormula * 1.2 / 72)
	return max(int64(lines)*lineHeight+formulaPad, formulaHeight)
}

// detailRows is the number of data rows per slide of d.
func (l layout) detailRows(d Detail) int {
	bottom := l.opts.Height - footerHeight
	fit := max(int((bottom-contentTop-l.formulaHeight(d)-gap)/l.rowHeight)-1, 1)
	return min(l.opts.MaxRows, fit)
}

func pages(rows, perPage int) int {
	if rows <= perPage {
		return 1
	}
	return (rows + perPage - 1) / perPage
}

// slideBuilder counts shapes as they are created so links can refer to them
// by position.
type slideBuilder struct {
	slide  *ppt.Slide
	index  int
	shapes int
}

func (b *slideBuilder) text(x, y, w, h int64) (*ppt.RichTextShape, int) {
	shape := b.slide.CreateRichTextShape()
	shape.SetOffsetX(x).SetOffsetY(y)
	shape.SetWidth(w).SetHeight(h)
	b.shapes++
	return shape, b.shapes - 1
}

// header draws the accent bar and the title. With home set it also draws
// the home button and returns its shape index.
func (b *slideBuilder) header(l layout, title string, home bool) int {
	bar, _ := b.text(0, 0, l.opts.Width, int64(0.08*emuPerInch))
	bar.SetFill(solidFill(colorAccent))

	width := l.contentWidth
	if home {
		width -= homeWidth + gap
	}
	t, _ := b.text(marginX, titleTop, width, titleHeight)
	t.SetWordWrap(false)
	tr := t.CreateTextRun(title)
	tr.GetFont().SetSize(fontTitle).SetBold(true).SetColor(ppt.NewColor(colorTitle))

	if !home {
		return -1
	}
	btn, idx := b.text(l.opts.Width-marginX-homeWidth, titleTop+(titleHeight-homeHeight)/2, homeWidth, homeHeight)
	btn.SetFill(solidFill(colorHomeFill))
	btn.SetTextAnchor(ppt.TextAnchorMiddle)
	btr := btn.CreateTextRun(HomeText)
	btr.GetFont().SetSize(fontHome).SetColor(ppt.NewColor(colorTitle))
	alignCenter(btn.GetActiveParagraph())
	return idx
}

func (b *slideBuilder) formulaBox(l layout, d Detail) {
	box, _ := b.text(marginX, contentTop, l.contentWidth, l.formulaHeight(d))
	tr := box.CreateTextRun("Formula:")
	tr.GetFont().SetSize(fontFormula).SetBold(true).SetColor(ppt.NewColor(colorText))

	formula := d.Formula
	if formula == "" {
		formula = NoFormula
	}
	line := func(text string) {
		para := box.CreateParagraph()
		a := ppt.NewAlignment()
		a.Level = 1
		para.SetAlignment(a)
		r := box.CreateTextRun(text)
		r.GetFont().SetSize(fontFormula).SetColor(ppt.NewColor(colorText))
	}
	line(formula)
	line("Evaluated value: " + FormatCell(d.Value, l.opts.Digits))
	for _, f := range d.Filters {
		line("Filter: " + f)
	}
}

// grid is the shape index and rendered text of every data cell.
type grid struct {
	shapes [][]int
	texts  [][]string
}

// grid draws a table as one text shape per cell: a bold header row and
// alternating row fills. Columns share the width evenly with the remainder
// on the last column.
func (b *slideBuilder) grid(l layout, top int64, headers []string, rows [][]Cell) grid {
	var g grid
	n := len(headers)
	if n == 0 {
		return g
	}
	fontPt := l.opts.FontPt
	base := l.contentWidth / int64(n)
	widths := make([]int64, n)
	for j := range widths {
		widths[j] = base
	}
	widths[n-1] += l.contentWidth - base*int64(n)

	// Numbers are never cut: they shrink to fit, down to fontMin, and
	// overflow past that. Text is truncated.
	cell := func(x, y, w int64, text string, numeric bool, fill string) (*ppt.RichTextShape, int, string, int) {
		shape, idx := b.text(x, y, w, l.rowHeight)
		shape.SetFill(solidFill(fill))
		shape.SetWordWrap(false)
		shape.SetTextAnchor(ppt.TextAnchorMiddle)
		if numeric {
			return shape, idx, text, fitFont(text, w, fontPt)
		}
		return shape, idx, truncate(text, maxChars(w, fontPt)), fontPt
	}

	x := marginX
	for j, h := range headers {
		shape, _, text, size := cell(x, top, widths[j], h, false, colorAccent)
		tr := shape.CreateTextRun(text)
		tr.GetFont().SetSize(size).SetBold(true).SetColor(ppt.ColorWhite)
		x += widths[j]
	}

	y := top + l.rowHeight
	for i, row := range rows {
		fill := colorRowEven
		if i%2 == 1 {
			fill = colorRowOdd
		}
		x = marginX
		shapes := make([]int, 0, n)
		texts := make([]string, 0, n)
		for j := 0; j < n; j++ {
			var c Cell
			if j < len(row) {
				c = row[j]
			}
			shape, idx, text, size := cell(x, y, widths[j], FormatCell(c, l.opts.Digits), c.Numeric, fill)
			if text != "" {
				tr := shape.CreateTextRun(text)
				tr.GetFont().SetSize(size).SetColor(ppt.NewColor(colorText))
			}
			if c.Numeric {
				alignRight(shape.GetActiveParagraph())
			}
			shapes = append(shapes, idx)
			texts = append(texts, text)
			x += widths[j]
		}
		g.shapes = append(g.shapes, shapes)
		g.texts = append(g.texts, texts)
		y += l.rowHeight
	}
	return g
}

func (b *slideBuilder) note(l layout, y int64, text string, align ppt.HorizontalAlignment) {
	shape, _ := b.text(marginX, y, l.contentWidth, l.rowHeight)
	tr := shape.CreateTextRun(text)
	tr.GetFont().SetSize(l.opts.FontPt).SetItalic(true).SetColor(ppt.NewColor(colorMuted))
	shape.GetActiveParagraph().SetAlignment(ppt.NewAlignment().SetHorizontal(align))
}

func (b *slideBuilder) footer(l layout, text string) {
	shape, _ := b.text(marginX, l.opts.Height-footerHeight, l.contentWidth, int64(0.25*emuPerInch))
	tr := shape.CreateTextRun(text)
	tr.GetFont().SetSize(fontFooter).SetColor(ppt.NewColor(colorMuted))
	alignRight(shape.GetActiveParagraph())
}

// FormatNumber renders a value with a fixed number of decimals when it is
// numeric and returns text unchanged.
func FormatNumber(text string, number float64, numeric bool, digits int) string {
	if !numeric {
		return text
	}
	return strconv.FormatFloat(number, 'f', max(digits, 0), 64)
}

func FormatCell(c Cell, digits int) string {
	return FormatNumber(c.Text, c.Number, c.Numeric, digits)
}

// maxChars estimates how many characters fit in width at fontPt.
func maxChars(width int64, fontPt int) int {
	return max(int(float64(width)/emuPerInch*144/float64(fontPt)), 4)
}

// fitFont is the largest size up to fontPt at which s fits in width, but no
// smaller than fontMin.
func fitFont(s string, width int64, fontPt int) int {
	n := len([]rune(s))
	if n <= maxChars(width, fontPt) {
		return fontPt
	}
	size := int(float64(width) / emuPerInch * 144 / float64(n))
	return max(min(size, fontPt), fontMin)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-2]) + ".."
}

func solidFill(argb string) *ppt.Fill {
	return ppt.NewFill().SetSolid(ppt.NewColor(argb))
}

func alignCenter(p *ppt.Paragraph) {
	p.SetAlignment(ppt.NewAlignment().SetHorizontal(ppt.HorizontalCenter))
}

func alignRight(p *ppt.Paragraph) {
	p.SetAlignment(ppt.NewAlignment().SetHorizontal(ppt.HorizontalRight))
}
