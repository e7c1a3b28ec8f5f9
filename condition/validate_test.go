package condition

import (
	"strings"
	"testing"
)

func TestValidateAcceptsSupportedGrammar(t *testing.T) {
	testCases := []struct {
		name string
		expr string
	}{
		{"boolean literal", `True`},
		{"simple comparison", `pour_temp < 30`},
		{"boolean composition", `pour_temp < 30 and slump_mm > 50`},
		{"or composition", `a > 1 or b > 2 or c > 3`},
		{"negation", `not overdue`},
		{"unary minus", `-variance <= 5`},
		{"unary plus", `+x > 0`},
		{"arithmetic", `poured_volume / planned_volume * 100 >= 95`},
		{"modulo", `batch_no % 2 == 0`},
		{"chained comparison", `0 < moisture < 12`},
		{"equality with None", `sensor_fault == None`},
		{"membership in list", `current_month in ["jun", "jul", "aug"]`},
		{"negated membership", `current_month not in ["dec", "jan"]`},
		{"tuple literal", `grade in ("c25", "c30")`},
		{"set literal", `shift in {"day", "night"}`},
		{"nested parens", `((a + b) * 2) > (c - 1)`},
		{"string comparison", `supplier == "norcem"`},
		{"mixed", `pour_temp <= max_pour_temp and curing_days >= required_curing_days`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.expr); err != nil {
				t.Errorf("Validate(%q) returned error: %v", tc.expr, err)
			}
		})
	}
}

func TestValidateRejectsUnsupportedConstructs(t *testing.T) {
	testCases := []struct {
		name    string
		expr    string
		wantMsg string
	}{
		{"function call", `max(a, b) > 2`, "function calls"},
		{"call on literal", `abs(-1) == 1`, "function calls"},
		{"attribute access", `reading.value > 2`, "attribute access"},
		{"subscripting", `readings[0] > 2`, "subscripting"},
		{"lambda", `lambda x: x > 2`, "lambda"},
		{"comprehension", `[x for x in readings]`, "comprehensions"},
		{"assignment", `a = 5`, "assignment"},
		{"dict literal", `{"a": 1}`, "dict"},
		{"empty braces", `a in {}`, "dict"},
		{"conditional expression", `a if b else c`, "conditional"},
		{"identity comparison", `a is None`, "identity"},
		{"unterminated string", `name == "abc`, "unterminated"},
		{"trailing garbage", `a > 2 b`, "unexpected"},
		{"empty expression", ``, "expected an expression"},
		{"bare operator", `and`, "keyword"},
		{"unknown character", `a > 2 ; b < 3`, "unexpected character"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.expr)
			if err == nil {
				t.Fatalf("Validate(%q) should have been rejected", tc.expr)
			}
			if _, ok := err.(*SyntaxError); !ok {
				t.Errorf("Validate(%q) error type = %T, want *SyntaxError", tc.expr, err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("Validate(%q) error = %q, want it to mention %q", tc.expr, err, tc.wantMsg)
			}
		})
	}
}

func TestValidateNeverEvaluates(t *testing.T) {
	// A division by zero is an evaluation-time failure; validation must
	// accept it because the expression is grammatically fine.
	if err := Validate(`10 / 0 > 1`); err != nil {
		t.Errorf("Validate should not evaluate, got error: %v", err)
	}
	if err := Validate(`unknown_reading < 5`); err != nil {
		t.Errorf("Validate should not resolve names, got error: %v", err)
	}
}
