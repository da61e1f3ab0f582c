package formula

import (
	"reflect"
	"testing"
)

func cell(ref string) Part      { return Part{Kind: PartCell, Value: ref} }
func text(s string) Part        { return Part{Kind: PartText, Value: s} }
func number(n string) Part      { return Part{Kind: PartNumber, Value: n} }
func operand(p ...Part) Operand { return Operand{Parts: p} }

type criterionKey struct {
	Table, Column, Op string
	Operand           Operand
	FromIFS           bool
}

func keys(cs []Criterion) []criterionKey {
	var out []criterionKey
	for _, c := range cs {
		out = append(out, criterionKey{c.Table, c.Column, c.Op, c.Operand, c.FromIFS})
	}
	return out
}

func TestAnalyzeCriteria(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    []criterionKey
	}{
		{
			name:    "sumifs pair",
			formula: "=SUMIFS(Sales[Amount],Sales[Region],$A12)",
			want:    []criterionKey{{"Sales", "Region", "=", operand(cell("$A12")), true}},
		},
		{
			name:    "countifs pairs start at the first argument",
			formula: `=COUNTIFS(Sales[Region], $A2, Sales[Year], 2024)`,
			want: []criterionKey{
				{"Sales", "Region", "=", operand(cell("$A2")), true},
				{"Sales", "Year", "=", operand(number("2024")), true},
			},
		},
		{
			name:    "concatenated criterion",
			formula: `=COUNTIFS(Sales[Amount],">"&$B$1)`,
			want:    []criterionKey{{"Sales", "Amount", "=", operand(text(">"), cell("$B$1")), true}},
		},
		{
			name:    "boolean products",
			formula: "=SUMPRODUCT((Sales[Region]=$A12)*(Sales[Year]>=2024),Sales[Amount])",
			want: []criterionKey{
				{"Sales", "Region", "=", operand(cell("$A12")), false},
				{"Sales", "Year", ">=", operand(number("2024")), false},
			},
		},
		{
			name:    "reversed comparison inside filter",
			formula: "=SUM(FILTER(Sales[Amount],$A12=Sales[Region]))",
			want:    []criterionKey{{"Sales", "Region", "=", operand(cell("$A12")), false}},
		},
		{
			name:    "reversed ordering flips the operator",
			formula: "=COUNT(FILTER(Sales[Qty],5<Sales[Qty]))",
			want:    []criterionKey{{"Sales", "Qty", ">", operand(number("5")), false}},
		},
		{
			name:    "spilled range criterion",
			formula: "=_xlfn.COUNTIFS(Sales[Region],$A2:$A4)",
			want:    []criterionKey{{"Sales", "Region", "=", operand(cell("$A2:$A4")), true}},
		},
		{
			name:    "lookup nested in error handler",
			formula: "=IFERROR(_xlfn.XLOOKUP($A2,Sales[Region],Sales[Amount]),0)",
			want:    []criterionKey{{"Sales", "Region", "=", operand(cell("$A2")), false}},
		},
		{
			name:    "deeply nested ifs call",
			formula: `=ROUND(IF(A1>0,_xlfn.MAXIFS(Sales[Amount],Sales[Region],"East",Sales[Year],2024),0),2)`,
			want: []criterionKey{
				{"Sales", "Region", "=", operand(text("East")), true},
				{"Sales", "Year", "=", operand(number("2024")), true},
			},
		},
		{
			name:    "arithmetic on the operand is not a filter",
			formula: "=SUM(FILTER(Sales[Amount],Sales[Qty]=$A2+1))",
		},
		{
			name:    "whole-table ranges are not filters",
			formula: "=SUMIFS(Sales[Amount],Sales[[Qty]:[Price]],1)",
		},
		{
			name:    "duplicates collapse",
			formula: "=SUMIFS(Sales[Amount],Sales[Region],$A2)/COUNTIFS(Sales[Region],$A2)",
			want:    []criterionKey{{"Sales", "Region", "=", operand(cell("$A2")), true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(Analyze(tt.formula).Criteria)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Analyze(%q) criteria\n got %+v\nwant %+v", tt.formula, got, tt.want)
			}
		})
	}
}

func TestAnalyzeFunctionsAndTables(t *testing.T) {
	a := Analyze("_xlfn.IFERROR(SUM(Sales[Amount])/COUNT(Returns[Qty]),0)")
	if a.Formula != "=IFERROR(SUM(Sales[Amount])/COUNT(Returns[Qty]),0)" {
		t.Errorf("Formula = %q", a.Formula)
	}
	if want := []string{"IFERROR", "SUM", "COUNT"}; !reflect.DeepEqual(a.Functions, want) {
		t.Errorf("Functions = %v, want %v", a.Functions, want)
	}
	if want := []string{"Sales", "Returns"}; !reflect.DeepEqual(a.Tables(), want) {
		t.Errorf("Tables = %v, want %v", a.Tables(), want)
	}
	if len(a.Refs) != 2 {
		t.Errorf("Refs = %d, want 2", len(a.Refs))
	}
	if got := Analyze("").Criteria; got != nil {
		t.Errorf("empty formula criteria = %v", got)
	}
}

func TestAnalyzeCriteriaFor(t *testing.T) {
	a := Analyze("=SUMIFS(Sales[Amount],Sales[Region],$A2)+SUMIFS(Returns[Amount],Returns[Region],$A2)")
	got := a.CriteriaFor("returns")
	if len(got) != 1 || got[0].Table != "Returns" || got[0].Column != "Region" {
		t.Fatalf("CriteriaFor(returns) = %+v", got)
	}
	if got[0].Source != "Returns[Region], $A2" {
		t.Errorf("Source = %q", got[0].Source)
	}
}
