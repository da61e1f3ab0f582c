package formula

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/efp"
)

// Analysis is everything the deck needs to know about one formula.
type Analysis struct {
	Formula   string
	Refs      []StructuredRef
	Functions []string
	Criteria  []Criterion
}

// Tables lists the distinct table names the formula references.
func (a Analysis) Tables() []string {
	return TableNames(a.Formula)
}

// Columns lists the columns of table the formula references.
func (a Analysis) Columns(table string, headers []string) []string {
	return ColumnsFor(a.Formula, table, headers)
}

// CriteriaFor returns the criteria that filter table.
func (a Analysis) CriteriaFor(table string) []Criterion {
	return lo.Filter(a.Criteria, func(c Criterion, _ int) bool {
		return strings.EqualFold(c.Table, table)
	})
}

// criteriaPairs maps conditional aggregate functions to the index of their
// first (range, criterion) argument pair. Pairs repeat every two arguments
// unless single is set.
var criteriaPairs = map[string]struct {
	first  int
	single bool
}{
	"SUMIFS":     {first: 1},
	"AVERAGEIFS": {first: 1},
	"MAXIFS":     {first: 1},
	"MINIFS":     {first: 1},
	"COUNTIFS":   {first: 0},
	"SUMIF":      {first: 0, single: true},
	"COUNTIF":    {first: 0, single: true},
	"AVERAGEIF":  {first: 0, single: true},
}

// lookupFunctions take the looked up value first and the column searched
// second.
var lookupFunctions = map[string]bool{
	"XLOOKUP": true,
	"XMATCH":  true,
	"MATCH":   true,
}

// cellRefRe matches a cell or a range, as a spilled criterion such as
// COUNTIFS(T[c],$A2:$A9) passes one.
var cellRefRe = regexp.MustCompile(`^(?:.+!)?\$?[A-Za-z]{1,3}\$?[0-9]+(?::\$?[A-Za-z]{1,3}\$?[0-9]+)?$`)

var flipOp = map[string]string{
	"=":  "=",
	"<>": "<>",
	">":  "<",
	"<":  ">",
	">=": "<=",
	"<=": ">=",
}

// Analyze tokenizes f and extracts its structured references, the functions
// it calls and the row filters it applies to table columns. Filters are found
// in comparisons such as Sales[Region]=$A12, anywhere in the formula, and in
// the range/criterion pairs of SUMIFS style functions.
func Analyze(f string) Analysis {
	a := Analysis{Formula: Normalize(f)}
	if a.Formula == "" {
		return a
	}
	a.Refs = ScanStructuredRefs(a.Formula)

	masked, byPlaceholder := maskRefs(a.Formula, a.Refs)
	ps := efp.ExcelParser()
	tokens := ps.Parse(masked)
	if len(tokens) > 0 && tokens[0].TType == efp.TokenTypeOperatorInfix && tokens[0].TValue == "=" {
		tokens = tokens[1:]
	}

	w := &walker{tokens: tokens, refs: byPlaceholder}
	w.comparisons()
	w.functionArgs()

	a.Functions = w.functions
	a.Criteria = lo.UniqBy(w.criteria, func(c Criterion) string {
		return fmt.Sprintf("%s|%s|%s|%s|%t", strings.ToLower(c.Table), strings.ToLower(c.Column), c.Op, c.Operand, c.FromIFS)
	})
	return a
}

// maskRefs swaps each structured reference for a plain name so the
// tokenizer, which ends a bracket group at its first ']', sees one operand.
func maskRefs(f string, refs []StructuredRef) (string, map[string]StructuredRef) {
	byPlaceholder := make(map[string]StructuredRef, len(refs))
	order := make([]int, len(refs))
	for i := range refs {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return refs[order[i]].Start > refs[order[j]].Start })
	for _, i := range order {
		ref := refs[i]
		name := fmt.Sprintf("__ref%d__", i)
		byPlaceholder[name] = ref
		f = f[:ref.Start] + name + f[ref.End:]
	}
	return f, byPlaceholder
}

type walker struct {
	tokens    []efp.Token
	refs      map[string]StructuredRef
	functions []string
	criteria  []Criterion
}

// columnRef returns the structured reference behind a single-column operand.
func (w *walker) columnRef(tokens []efp.Token) (StructuredRef, bool) {
	if len(tokens) != 1 || tokens[0].TType != efp.TokenTypeOperand {
		return StructuredRef{}, false
	}
	ref, ok := w.refs[tokens[0].TValue]
	if !ok || ref.Table == "" || ref.IsRange || len(ref.Columns) != 1 {
		return StructuredRef{}, false
	}
	return ref, true
}

// operand converts a run of literals, cells and & operators into an Operand.
func (w *walker) operand(tokens []efp.Token) (Operand, bool) {
	var o Operand
	if len(tokens) == 0 || len(tokens)%2 == 0 {
		return o, false
	}
	for i, t := range tokens {
		if i%2 == 1 {
			if t.TType != efp.TokenTypeOperatorInfix || t.TSubType != efp.TokenSubTypeConcatenation {
				return o, false
			}
			continue
		}
		if t.TType != efp.TokenTypeOperand {
			return o, false
		}
		switch t.TSubType {
		case efp.TokenSubTypeText:
			o.Parts = append(o.Parts, Part{Kind: PartText, Value: t.TValue})
		case efp.TokenSubTypeNumber:
			o.Parts = append(o.Parts, Part{Kind: PartNumber, Value: t.TValue})
		case efp.TokenSubTypeLogical:
			o.Parts = append(o.Parts, Part{Kind: PartText, Value: t.TValue})
		case efp.TokenSubTypeRange:
			if _, isRef := w.refs[t.TValue]; isRef || !cellRefRe.MatchString(t.TValue) {
				return o, false
			}
			o.Parts = append(o.Parts, Part{Kind: PartCell, Value: t.TValue})
		default:
			return o, false
		}
	}
	return o, true
}

// comparisons finds "column op value" and "value op column" expressions.
func (w *walker) comparisons() {
	for k, t := range w.tokens {
		if t.TType != efp.TokenTypeOperatorInfix || t.TSubType != efp.TokenSubTypeLogical {
			continue
		}
		op, ok := flipOp[t.TValue]
		if !ok {
			continue
		}
		left := w.chain(k, -1)
		right := w.chain(k, 1)
		if ref, ok := w.columnRef(left); ok {
			if o, ok := w.operand(right); ok {
				w.addComparison(ref, t.TValue, o)
			}
			continue
		}
		if ref, ok := w.columnRef(right); ok {
			if o, ok := w.operand(left); ok {
				w.addComparison(ref, op, o)
			}
		}
	}
}

func (w *walker) addComparison(ref StructuredRef, op string, o Operand) {
	w.criteria = append(w.criteria, Criterion{
		Table:   ref.Table,
		Column:  ref.Columns[0],
		Op:      op,
		Operand: o,
		Source:  fmt.Sprintf("%s%s%s", ref.Text, op, o),
	})
}

// chain returns the operand side of the comparison at k, walking in
// direction dir. The side must be delimited by an argument separator, a
// bracket of the enclosing call or the end of the formula, otherwise a
// higher precedence operator belongs to it and nil is returned.
func (w *walker) chain(k, dir int) []efp.Token {
	var side []efp.Token
	i := k + dir
	for ; i >= 0 && i < len(w.tokens); i += dir {
		t := w.tokens[i]
		if t.TType == efp.TokenTypeOperand ||
			(t.TType == efp.TokenTypeOperatorInfix && t.TSubType == efp.TokenSubTypeConcatenation) {
			side = append(side, t)
			continue
		}
		break
	}
	if i >= 0 && i < len(w.tokens) && !isBoundary(w.tokens[i], dir) {
		return nil
	}
	if dir < 0 {
		side = lo.Reverse(side)
	}
	return side
}

func isBoundary(t efp.Token, dir int) bool {
	switch t.TType {
	case efp.TokenTypeArgument:
		return true
	case efp.TokenTypeFunction, efp.TokenTypeSubexpression:
		if dir < 0 {
			return t.TSubType == efp.TokenSubTypeStart
		}
		return t.TSubType == efp.TokenSubTypeStop
	case efp.TokenTypeOperatorInfix:
		return t.TSubType == efp.TokenSubTypeUnion
	}
	return false
}

type frame struct {
	name string
	args [][]efp.Token
}

// functionArgs walks the call tree, recording every function name and the
// criteria carried by conditional aggregate and lookup calls at any depth.
func (w *walker) functionArgs() {
	var stack []*frame
	appendToken := func(t efp.Token) {
		for _, f := range stack {
			f.args[len(f.args)-1] = append(f.args[len(f.args)-1], t)
		}
	}
	for _, t := range w.tokens {
		switch {
		case (t.TType == efp.TokenTypeFunction || t.TType == efp.TokenTypeSubexpression) && t.TSubType == efp.TokenSubTypeStart:
			appendToken(t)
			name := ""
			if t.TType == efp.TokenTypeFunction {
				name = strings.ToUpper(t.TValue)
				if name != "ARRAY" && name != "ARRAYROW" && !lo.Contains(w.functions, name) {
					w.functions = append(w.functions, name)
				}
			}
			stack = append(stack, &frame{name: name, args: [][]efp.Token{nil}})
		case (t.TType == efp.TokenTypeFunction || t.TType == efp.TokenTypeSubexpression) && t.TSubType == efp.TokenSubTypeStop:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			w.callCriteria(top)
			appendToken(t)
		case t.TType == efp.TokenTypeArgument && len(stack) > 0:
			top := stack[len(stack)-1]
			// outer frames keep the separator as part of their current argument
			for _, f := range stack[:len(stack)-1] {
				f.args[len(f.args)-1] = append(f.args[len(f.args)-1], t)
			}
			top.args = append(top.args, nil)
		default:
			appendToken(t)
		}
	}
}

func (w *walker) callCriteria(f *frame) {
	if lookupFunctions[f.name] && len(f.args) >= 2 {
		if ref, ok := w.columnRef(f.args[1]); ok {
			if o, ok := w.operand(f.args[0]); ok {
				w.addComparison(ref, "=", o)
			}
		}
		return
	}
	pairs, ok := criteriaPairs[f.name]
	if !ok {
		return
	}
	for i := pairs.first; i+1 < len(f.args); i += 2 {
		ref, ok := w.columnRef(f.args[i])
		if ok {
			if o, ok := w.operand(f.args[i+1]); ok {
				w.criteria = append(w.criteria, Criterion{
					Table:   ref.Table,
					Column:  ref.Columns[0],
					Op:      "=",
					Operand: o,
					Source:  fmt.Sprintf("%s, %s", ref.Text, o),
					FromIFS: true,
				})
			}
		}
		if pairs.single {
			return
		}
	}
}
