package rules

import (
	"strings"
	"testing"
)

func TestValidateRule(t *testing.T) {
	valid := func() *Rule {
		return &Rule{
			Category:  "concrete",
			Condition: "pour_temp < max_pour_temp",
			Severity:  SeverityCritical,
			Message:   "pour temperature exceeds limit",
		}
	}

	if err := ValidateRule(valid()); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	testCases := []struct {
		name    string
		mutate  func(*Rule)
		wantMsg string
	}{
		{"empty condition", func(r *Rule) { r.Condition = "" }, "condition cannot be empty"},
		{"unparseable condition", func(r *Rule) { r.Condition = "pour_temp <" }, "expected an expression"},
		{"function call in condition", func(r *Rule) { r.Condition = "max(a, b) > 2" }, "function calls"},
		{"empty category", func(r *Rule) { r.Category = "" }, "category cannot be empty"},
		{"unknown severity", func(r *Rule) { r.Severity = "severe" }, "invalid severity"},
		{"empty severity", func(r *Rule) { r.Severity = "" }, "invalid severity"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid()
			tc.mutate(r)
			err := ValidateRule(r)
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tc.wantMsg)
			}
		})
	}
}
