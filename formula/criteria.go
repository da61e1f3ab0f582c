package formula

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// PartKind says how an operand part obtains its value.
type PartKind int

const (
	PartCell PartKind = iota
	PartText
	PartNumber
)

// Part is one piece of a possibly concatenated criterion operand,
// e.g. ">"&$B$1 has a text part and a cell part.
type Part struct {
	Kind  PartKind
	Value string
}

// Operand is the right-hand side of a filter criterion.
type Operand struct {
	Parts []Part
}

// CellResolver returns the displayed value of a cell reference such as
// "$A12" or "Sheet1!B3". It reports false when the reference can't be read.
type CellResolver func(ref string) (string, bool)

// Resolve concatenates the operand parts, looking up cell parts with r.
func (o Operand) Resolve(r CellResolver) (string, bool) {
	var b strings.Builder
	for _, p := range o.Parts {
		switch p.Kind {
		case PartCell:
			if r == nil {
				return "", false
			}
			v, ok := r(p.Value)
			if !ok {
				return "", false
			}
			b.WriteString(v)
		default:
			b.WriteString(p.Value)
		}
	}
	return b.String(), true
}

// Cells lists the cell references the operand depends on.
func (o Operand) Cells() []string {
	var out []string
	for _, p := range o.Parts {
		if p.Kind == PartCell {
			out = append(out, p.Value)
		}
	}
	return out
}

func (o Operand) String() string {
	parts := make([]string, 0, len(o.Parts))
	for _, p := range o.Parts {
		if p.Kind == PartText {
			parts = append(parts, strconv.Quote(p.Value))
			continue
		}
		parts = append(parts, p.Value)
	}
	return strings.Join(parts, "&")
}

// Criterion is a row filter on one table column taken from a formula.
// FromIFS marks criteria that came from a *IFS style argument pair, whose
// operand carries its own comparison operator and may use wildcards.
type Criterion struct {
	Table   string
	Column  string
	Op      string
	Operand Operand
	Source  string
	FromIFS bool
}

func (c Criterion) String() string {
	if c.FromIFS {
		return fmt.Sprintf("%s[%s] matches %s", c.Table, c.Column, c.Operand)
	}
	return fmt.Sprintf("%s[%s] %s %s", c.Table, c.Column, c.Op, c.Operand)
}

// Predicate builds a matcher for column values. It reports false when the
// operand references a cell r can't resolve.
func (c Criterion) Predicate(r CellResolver) (func(string) bool, bool) {
	v, ok := c.Operand.Resolve(r)
	if !ok {
		return nil, false
	}
	op := c.Op
	if c.FromIFS {
		op, v = ParseCriterion(v)
	}
	wildcards := c.FromIFS
	return func(cell string) bool {
		return Matches(op, v, cell, wildcards)
	}, true
}

// ParseCriterion splits a COUNTIFS style criterion such as ">=10" into its
// operator and value. Criteria without an operator compare for equality.
func ParseCriterion(s string) (op, value string) {
	for _, p := range []string{">=", "<=", "<>", ">", "<", "="} {
		if strings.HasPrefix(s, p) {
			return p, s[len(p):]
		}
	}
	return "=", s
}

// Matches reports whether cell satisfies "cell op crit". Values compare
// numerically when both parse as numbers and case-insensitively as text
// otherwise. With wildcards set, * ? and ~ act as in COUNTIFS.
func Matches(op, crit, cell string, wildcards bool) bool {
	crit = strings.TrimSpace(crit)
	cell = strings.TrimSpace(cell)
	switch op {
	case "=", "==":
		return equal(crit, cell, wildcards)
	case "<>", "!=":
		return !equal(crit, cell, wildcards)
	}
	cn, cok := parseNumber(crit)
	vn, vok := parseNumber(cell)
	var cmp int
	switch {
	case cok && vok:
		switch {
		case vn < cn:
			cmp = -1
		case vn > cn:
			cmp = 1
		}
	case !cok && !vok:
		cmp = strings.Compare(strings.ToLower(cell), strings.ToLower(crit))
	default:
		return false
	}
	switch op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

func equal(crit, cell string, wildcards bool) bool {
	if crit == "" {
		return cell == ""
	}
	cn, cok := parseNumber(crit)
	vn, vok := parseNumber(cell)
	if cok && vok {
		return cn == vn
	}
	if wildcards && strings.ContainsAny(crit, "*?~") {
		return wildcardRegexp(crit).MatchString(cell)
	}
	return strings.EqualFold(crit, cell)
}

// parseNumber accepts finite decimal numbers only; words such as "NaN" or
// "Inf" stay text.
func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func wildcardRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '~':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				b.WriteString("~")
			}
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
