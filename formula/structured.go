// Package formula reads Excel formulas: structured table references, the
// functions called and the row filters applied to table columns.
package formula

import (
	"strings"

	"github.com/samber/lo"
)

// Special item specifiers that may appear inside a structured reference.
const (
	SpecialAll     = "#All"
	SpecialData    = "#Data"
	SpecialHeaders = "#Headers"
	SpecialTotals  = "#Totals"
	SpecialThisRow = "#This Row"
)

var specials = []string{SpecialAll, SpecialData, SpecialHeaders, SpecialTotals, SpecialThisRow}

// StructuredRef is a single Table[...] reference found in a formula.
// Table is empty for implicit references such as [@Qty] written inside a
// table's own calculated column.
type StructuredRef struct {
	Table    string
	Columns  []string
	IsRange  bool // Columns holds the two endpoints of Table[[A]:[C]]
	Specials []string
	ThisRow  bool
	Text     string
	Start    int
	End      int
}

// ScanStructuredRefs returns every structured reference in f in the order
// they appear. Text inside string literals and quoted sheet names is ignored.
// A malformed or unterminated bracket group is skipped and scanning resumes
// after its opening bracket.
func ScanStructuredRefs(f string) []StructuredRef {
	var refs []StructuredRef
	inString := false
	for i := 0; i < len(f); i++ {
		c := f[i]
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '\'':
			i = skipQuoted(f, i)
		case '[':
			nameStart := i
			for nameStart > 0 && isNameByte(f[nameStart-1]) {
				nameStart--
			}
			end, ref, ok := parseBracket(f, i)
			if !ok {
				continue
			}
			table := f[nameStart:i]
			if table == "" && end < len(f) && isNameByte(f[end]) {
				// [1]Sheet1!A1 style external workbook index
				i = end - 1
				continue
			}
			if nameStart > 0 && f[nameStart-1] == '@' {
				nameStart--
			}
			ref.Table = table
			ref.Start = nameStart
			ref.End = end
			ref.Text = f[nameStart:end]
			refs = append(refs, ref)
			i = end - 1
		}
	}
	return refs
}

// TableNames lists the distinct table names referenced by f in
// first-appearance order.
func TableNames(f string) []string {
	var names []string
	for _, ref := range ScanStructuredRefs(f) {
		if ref.Table == "" {
			continue
		}
		if !lo.ContainsBy(names, func(n string) bool { return strings.EqualFold(n, ref.Table) }) {
			names = append(names, ref.Table)
		}
	}
	return names
}

// ColumnsFor lists the distinct columns of table referenced anywhere in f,
// nested calls included. When headers are known, column ranges expand across
// the header order and names take the header's spelling.
func ColumnsFor(f, table string, headers []string) []string {
	var cols []string
	add := func(name string) {
		if idx := headerIndex(headers, name); idx >= 0 {
			name = headers[idx]
		}
		if !lo.ContainsBy(cols, func(c string) bool { return strings.EqualFold(c, name) }) {
			cols = append(cols, name)
		}
	}
	for _, ref := range ScanStructuredRefs(f) {
		if !strings.EqualFold(ref.Table, table) {
			continue
		}
		if ref.IsRange && len(ref.Columns) == 2 {
			from, to := headerIndex(headers, ref.Columns[0]), headerIndex(headers, ref.Columns[1])
			if from >= 0 && to >= 0 {
				if from > to {
					from, to = to, from
				}
				for _, h := range headers[from : to+1] {
					add(h)
				}
				continue
			}
		}
		for _, c := range ref.Columns {
			add(c)
		}
	}
	return cols
}

func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// parseBracket parses the bracket group opening at f[open]. It returns the
// index just past the closing bracket.
func parseBracket(f string, open int) (int, StructuredRef, bool) {
	var ref StructuredRef
	i := skipSpaces(f, open+1)
	if i >= len(f) {
		return 0, ref, false
	}
	switch f[i] {
	case ']':
		return i + 1, ref, true
	case '[':
		return parseItemList(f, i, ref)
	case '@':
		ref.ThisRow = true
		i = skipSpaces(f, i+1)
		if i >= len(f) {
			return 0, ref, false
		}
		if f[i] == ']' {
			return i + 1, ref, true
		}
		if f[i] == '[' {
			item, next, _, ok := readItem(f, i+1)
			if !ok {
				return 0, ref, false
			}
			next = skipSpaces(f, next)
			if next >= len(f) || f[next] != ']' {
				return 0, ref, false
			}
			ref.Columns = []string{item}
			return next + 1, ref, true
		}
	}
	item, next, special, ok := readItem(f, i)
	if !ok {
		return 0, ref, false
	}
	ref.addItem(item, special)
	return next, ref, true
}

func parseItemList(f string, i int, ref StructuredRef) (int, StructuredRef, bool) {
	var (
		items     []string
		isSpecial []bool
		rangeSep  bool
	)
	for {
		i = skipSpaces(f, i)
		if i >= len(f) || f[i] != '[' {
			return 0, ref, false
		}
		item, next, special, ok := readItem(f, i+1)
		if !ok {
			return 0, ref, false
		}
		items = append(items, item)
		isSpecial = append(isSpecial, special)
		i = skipSpaces(f, next)
		if i >= len(f) {
			return 0, ref, false
		}
		switch f[i] {
		case ',':
			i++
		case ':':
			rangeSep = true
			i++
		case ']':
			var cols []string
			for n, item := range items {
				if isSpecial[n] {
					ref.addItem(item, true)
				} else {
					cols = append(cols, item)
				}
			}
			if rangeSep && len(cols) == 2 && !strings.EqualFold(cols[0], cols[1]) {
				ref.IsRange = true
			} else if rangeSep && len(cols) == 2 {
				cols = cols[:1]
			}
			ref.Columns = append(ref.Columns, cols...)
			return i + 1, ref, true
		default:
			return 0, ref, false
		}
	}
}

func (r *StructuredRef) addItem(item string, special bool) {
	if !special {
		r.Columns = append(r.Columns, item)
		return
	}
	name := strings.TrimSpace(item)
	for _, s := range specials {
		if strings.EqualFold(name, s) {
			name = s
			break
		}
	}
	if name == SpecialThisRow {
		r.ThisRow = true
	}
	r.Specials = append(r.Specials, name)
}

// readItem reads a bracketed item body starting at f[i] up to the first
// unescaped ']'. A single quote escapes the character that follows it.
func readItem(f string, i int) (string, int, bool, bool) {
	var b strings.Builder
	special := i < len(f) && f[i] == '#'
	for i < len(f) {
		c := f[i]
		switch c {
		case '\'':
			if i+1 >= len(f) {
				return "", 0, false, false
			}
			b.WriteByte(f[i+1])
			i += 2
			continue
		case '[':
			return "", 0, false, false
		case ']':
			return b.String(), i + 1, special, true
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, false, false
}

func skipQuoted(f string, i int) int {
	for j := i + 1; j < len(f); j++ {
		if f[j] != '\'' {
			continue
		}
		if j+1 < len(f) && f[j+1] == '\'' {
			j++
			continue
		}
		return j
	}
	return len(f)
}

func skipSpaces(f string, i int) int {
	for i < len(f) && (f[i] == ' ' || f[i] == '\n' || f[i] == '\r' || f[i] == '\t') {
		i++
	}
	return i
}

func isNameByte(c byte) bool {
	return c == '_' || c == '.' || c == '\\' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= 0x80
}
