// Package condition implements the restricted expression language used for
// alarm rule conditions. A condition is a boolean/arithmetic expression over
// a flat variable namespace: boolean composition (and/or/not), arithmetic,
// chained comparisons, membership tests and list/tuple/set literals. Nothing
// else — no calls, no attribute access, no subscripting — so an operator-
// authored condition can never reach outside the variable context it is
// evaluated against.
//
// Validate is the security boundary: a condition that passes Validate uses
// only the supported grammar. Evaluate interprets a condition against a
// context map and reports runtime failures (missing values, division by
// zero) as *EvalError.
package condition

// node is the common interface for all AST variants.
type node interface {
	nodeKind() string
}

// boolNode is an "and"/"or" chain with short-circuit evaluation.
type boolNode struct {
	op     string // "and" | "or"
	values []node
}

// unaryNode is "not x", "-x" or "+x".
type unaryNode struct {
	op      string // "not" | "-" | "+"
	operand node
}

// binNode is a binary arithmetic operation.
type binNode struct {
	op    string // + - * / %
	left  node
	right node
}

// compareNode is a comparison chain: left ops[0] comparators[0] ops[1] ...
// Chains evaluate pairwise left-to-right, so "a < b < c" behaves as
// "a < b and b < c" with b evaluated once.
type compareNode struct {
	left        node
	ops         []string // == != < <= > >= in "not in"
	comparators []node
}

// nameNode resolves an identifier against the evaluation context.
type nameNode struct {
	ident string
}

// literalNode is a numeric, string, boolean or None constant.
type literalNode struct {
	value any // float64 | string | bool | nil
}

// listNode is a list, tuple or set literal. All three behave identically
// at evaluation time: an ordered collection used for membership tests.
type listNode struct {
	elems []node
}

func (*boolNode) nodeKind() string    { return "boolop" }
func (*unaryNode) nodeKind() string   { return "unaryop" }
func (*binNode) nodeKind() string     { return "binop" }
func (*compareNode) nodeKind() string { return "compare" }
func (*nameNode) nodeKind() string    { return "name" }
func (*literalNode) nodeKind() string { return "literal" }
func (*listNode) nodeKind() string    { return "list" }
