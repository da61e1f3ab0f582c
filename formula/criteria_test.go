package formula

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		op, crit, cell string
		wildcards      bool
		want           bool
	}{
		{"=", "east", "East", false, true},
		{"=", "E*", "East", true, true},
		{"=", "E*", "East", false, false},
		{"=", "E?st", "EAST", true, true},
		{"=", "~*", "*", true, true},
		{"=", "~*", "x", true, false},
		{"=", "5", "5.00", false, true},
		{"=", "", "", false, true},
		{"=", "", "x", false, false},
		{"<>", "East", "West", false, true},
		{"<>", "", "x", false, true},
		{">", "10", "11", false, true},
		{">", "10", "9", false, false},
		{"<=", "10", "10.0", false, true},
		{">=", "b", "C", false, true},
		{">", "10", "abc", false, false},
		{"?", "1", "1", false, false},
	}
	for _, tt := range tests {
		if got := Matches(tt.op, tt.crit, tt.cell, tt.wildcards); got != tt.want {
			t.Errorf("Matches(%q, %q, %q, %v) = %v, want %v", tt.op, tt.crit, tt.cell, tt.wildcards, got, tt.want)
		}
	}
}

func TestParseCriterion(t *testing.T) {
	tests := []struct {
		in, op, value string
	}{
		{">=10", ">=", "10"},
		{"<>", "<>", ""},
		{"East", "=", "East"},
		{"=West", "=", "West"},
		{"<5", "<", "5"},
	}
	for _, tt := range tests {
		op, value := ParseCriterion(tt.in)
		if op != tt.op || value != tt.value {
			t.Errorf("ParseCriterion(%q) = %q, %q; want %q, %q", tt.in, op, value, tt.op, tt.value)
		}
	}
}

func TestCriterionPredicate(t *testing.T) {
	cells := map[string]string{"$B$1": "100", "$A2": "East"}
	resolve := func(ref string) (string, bool) {
		v, ok := cells[ref]
		return v, ok
	}

	ifs := Criterion{Table: "Sales", Column: "Amount", Op: "=", Operand: operand(text(">"), cell("$B$1")), FromIFS: true}
	match, ok := ifs.Predicate(resolve)
	if !ok {
		t.Fatal("Predicate: operand not resolved")
	}
	if !match("150") || match("100") || match("abc") {
		t.Error("criterion >100 matched the wrong values")
	}

	cmp := Criterion{Table: "Sales", Column: "Region", Op: "=", Operand: operand(cell("$A2"))}
	match, ok = cmp.Predicate(resolve)
	if !ok {
		t.Fatal("Predicate: operand not resolved")
	}
	if !match("east") || match("E*") {
		t.Error("comparison criterion matched the wrong values")
	}

	missing := Criterion{Op: "=", Operand: operand(cell("$Z$9"))}
	if _, ok := missing.Predicate(resolve); ok {
		t.Error("Predicate resolved an unknown cell")
	}
	if _, ok := missing.Predicate(nil); ok {
		t.Error("Predicate resolved a cell without a resolver")
	}
}

func TestOperandString(t *testing.T) {
	o := operand(text(">="), cell("Summary!$B$1"), number("5"))
	if got, want := o.String(), `">="&Summary!$B$1&5`; got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
	if got := o.Cells(); len(got) != 1 || got[0] != "Summary!$B$1" {
		t.Errorf("Cells() = %v", got)
	}
}
