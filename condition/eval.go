package condition

import (
	"math"
	"strings"
)

// Evaluate interprets a condition against a variable context and coerces
// the final result to a boolean. Unknown names resolve to nil rather than
// failing; only the subsequent use of a nil value in arithmetic, ordering
// or membership produces an *EvalError.
func Evaluate(expr string, ctx map[string]any) (bool, error) {
	n, err := parse(expr)
	if err != nil {
		return false, err
	}
	v, err := eval(n, ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func eval(n node, ctx map[string]any) (any, error) {
	switch e := n.(type) {
	case *literalNode:
		return e.value, nil
	case *nameNode:
		return ctx[e.ident], nil
	case *listNode:
		out := make([]any, 0, len(e.elems))
		for _, elem := range e.elems {
			v, err := eval(elem, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *boolNode:
		return evalBool(e, ctx)
	case *unaryNode:
		return evalUnary(e, ctx)
	case *binNode:
		return evalArith(e, ctx)
	case *compareNode:
		return evalCompare(e, ctx)
	default:
		return nil, evalErrorf("unknown expression node %T", n)
	}
}

// evalBool short-circuits: "and" stops at the first falsy operand, "or"
// at the first truthy one. The operand value itself is returned, not a
// coerced boolean, so "a or 0" yields the operand that decided the chain.
func evalBool(e *boolNode, ctx map[string]any) (any, error) {
	var last any
	for _, operand := range e.values {
		v, err := eval(operand, ctx)
		if err != nil {
			return nil, err
		}
		if e.op == "and" && !truthy(v) {
			return v, nil
		}
		if e.op == "or" && truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func evalUnary(e *unaryNode, ctx map[string]any) (any, error) {
	v, err := eval(e.operand, ctx)
	if err != nil {
		return nil, err
	}
	switch e.op {
	case "not":
		return !truthy(v), nil
	case "-", "+":
		f, err := toNumber(v, e.op)
		if err != nil {
			return nil, err
		}
		if e.op == "-" {
			return -f, nil
		}
		return f, nil
	}
	return nil, evalErrorf("unknown unary operator %q", e.op)
}

func evalArith(e *binNode, ctx map[string]any) (any, error) {
	lv, err := eval(e.left, ctx)
	if err != nil {
		return nil, err
	}
	rv, err := eval(e.right, ctx)
	if err != nil {
		return nil, err
	}
	l, err := toNumber(lv, e.op)
	if err != nil {
		return nil, err
	}
	r, err := toNumber(rv, e.op)
	if err != nil {
		return nil, err
	}
	switch e.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, evalErrorf("division by zero")
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return nil, evalErrorf("modulo by zero")
		}
		return math.Mod(l, r), nil
	}
	return nil, evalErrorf("unknown arithmetic operator %q", e.op)
}

// evalCompare walks a comparison chain pairwise left-to-right: the chain
// is false as soon as one link is false, and later comparators are not
// evaluated past that point.
func evalCompare(e *compareNode, ctx map[string]any) (any, error) {
	left, err := eval(e.left, ctx)
	if err != nil {
		return nil, err
	}
	for i, op := range e.ops {
		right, err := eval(e.comparators[i], ctx)
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareValues(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return valuesEqual(l, r), nil
	case "!=":
		return !valuesEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return orderValues(op, l, r)
	case "in":
		return contains(r, l)
	case "not in":
		ok, err := contains(r, l)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
	return false, evalErrorf("unknown comparison operator %q", op)
}

// valuesEqual tolerates nil on either side so "field is absent" remains a
// legitimate comparable condition. Numbers compare numerically regardless
// of how they were written.
func valuesEqual(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	lb, lIsBool := l.(bool)
	rb, rIsBool := r.(bool)
	if lIsBool || rIsBool {
		return lIsBool && rIsBool && lb == rb
	}
	if lf, ok := asFloat(l); ok {
		rf, rok := asFloat(r)
		return rok && lf == rf
	}
	if ls, ok := l.(string); ok {
		rs, rok := r.(string)
		return rok && ls == rs
	}
	if ll, ok := l.([]any); ok {
		rl, rok := r.([]any)
		if !rok || len(ll) != len(rl) {
			return false
		}
		for i := range ll {
			if !valuesEqual(ll[i], rl[i]) {
				return false
			}
		}
		return true
	}
	return l == r
}

// orderValues fails on a nil operand: ordering against a missing
// telemetry reading is an evaluation error, not a silent false.
func orderValues(op string, l, r any) (bool, error) {
	if l == nil || r == nil {
		return false, evalErrorf("cannot order missing value with %q", op)
	}
	if lf, ok := asFloat(l); ok {
		rf, rok := asFloat(r)
		if !rok {
			return false, evalErrorf("cannot compare number with %T using %q", r, op)
		}
		return orderFloat(op, lf, rf), nil
	}
	if ls, ok := l.(string); ok {
		rs, rok := r.(string)
		if !rok {
			return false, evalErrorf("cannot compare string with %T using %q", r, op)
		}
		return orderString(op, ls, rs), nil
	}
	return false, evalErrorf("unsupported operand type %T for %q", l, op)
}

func orderFloat(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

func orderString(op string, l, r string) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

// contains implements "needle in haystack" over list values and string
// containment. A nil on either side is an evaluation error.
func contains(haystack, needle any) (bool, error) {
	if haystack == nil || needle == nil {
		return false, evalErrorf("membership test against missing value")
	}
	switch h := haystack.(type) {
	case []any:
		for _, elem := range h {
			if valuesEqual(elem, needle) {
				return true, nil
			}
		}
		return false, nil
	case string:
		n, ok := needle.(string)
		if !ok {
			return false, evalErrorf("membership of %T in string", needle)
		}
		return strings.Contains(h, n), nil
	}
	return false, evalErrorf("membership test requires a list, got %T", haystack)
}

// toNumber coerces an arithmetic operand to float64. nil fails with an
// explicit missing-value error rather than becoming a silent zero.
func toNumber(v any, op string) (float64, error) {
	if v == nil {
		return 0, evalErrorf("missing value in %q operation", op)
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, evalErrorf("non-numeric operand %v (%T) in %q operation", v, v, op)
	}
	return f, nil
}

// asFloat reports a numeric view of v. Booleans are not numbers here:
// True == 1 would make boolean telemetry flags silently comparable with
// readings.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// truthy coerces a value to boolean: nil, false, zero, the empty string
// and the empty list are falsy, everything else is truthy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return true
}
