package condition

import (
	"strconv"
)

// Validate statically checks a condition against the supported grammar.
// It never evaluates anything. A nil return means the condition is built
// only from supported constructs and is safe to store and evaluate.
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// parse turns a condition string into an AST, rejecting any construct
// outside the grammar with a descriptive *SyntaxError.
func parse(expr string) (node, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokName {
			switch t.val {
			case "if", "else":
				return nil, syntaxErrorf(t.pos, "conditional expressions are not supported")
			case "for":
				return nil, syntaxErrorf(t.pos, "comprehensions are not supported")
			}
		}
		return nil, syntaxErrorf(t.pos, "unexpected %q after expression", t.val)
	}
	return n, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// isName reports whether the next token is the given bare word.
func (p *parser) isName(word string) bool {
	t := p.peek()
	return t.kind == tokName && t.val == word
}

// or_expr = and_expr ( "or" and_expr )*
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isName("or") {
		return left, nil
	}
	values := []node{left}
	for p.isName("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	return &boolNode{op: "or", values: values}, nil
}

// and_expr = not_expr ( "and" not_expr )*
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isName("and") {
		return left, nil
	}
	values := []node{left}
	for p.isName("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	return &boolNode{op: "and", values: values}, nil
}

// not_expr = "not" not_expr | comparison
func (p *parser) parseNot() (node, error) {
	if p.isName("not") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", operand: inner}, nil
	}
	return p.parseComparison()
}

// comparison = arith ( cmp_op arith )*
// cmp_op     = "==" | "!=" | "<" | "<=" | ">" | ">=" | "in" | "not" "in"
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []node
	for {
		op, ok, err := p.comparisonOp()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comparators = append(comparators, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &compareNode{left: left, ops: ops, comparators: comparators}, nil
}

// comparisonOp consumes a comparison operator if one is next.
func (p *parser) comparisonOp() (string, bool, error) {
	t := p.peek()
	switch {
	case t.kind == tokOp:
		switch t.val {
		case "==", "!=", "<", "<=", ">", ">=":
			p.next()
			return t.val, true, nil
		}
		return "", false, nil
	case t.kind == tokName && t.val == "in":
		p.next()
		return "in", true, nil
	case t.kind == tokName && t.val == "not":
		// "not in" is the only comparison spelling of "not"; a bare
		// "not" here belongs to an enclosing boolean expression.
		if n := p.tokens[p.pos+1]; n.kind == tokName && n.val == "in" {
			p.next()
			p.next()
			return "not in", true, nil
		}
		return "", false, nil
	case t.kind == tokName && t.val == "is":
		return "", false, syntaxErrorf(t.pos, "identity comparison %q is not supported, use == or !=", "is")
	}
	return "", false, nil
}

// arith = term ( ("+"|"-") term )*
func (p *parser) parseArith() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.val != "+" && t.val != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binNode{op: t.val, left: left, right: right}
	}
}

// term = unary ( ("*"|"/"|"%") unary )*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.val != "*" && t.val != "/" && t.val != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binNode{op: t.val, left: left, right: right}
	}
}

// unary = ("-"|"+") unary | postfix
func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.val == "-" || t.val == "+") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: t.val, operand: inner}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses an atom and rejects the postfix forms the grammar
// deliberately lacks: calls, attribute access and subscripting. These are
// the constructs that would let a condition escape its variable context,
// so every one of them gets its own descriptive rejection.
func (p *parser) parsePostfix() (node, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	switch t.kind {
	case tokLParen:
		return nil, syntaxErrorf(t.pos, "function calls are not supported")
	case tokDot:
		return nil, syntaxErrorf(t.pos, "attribute access is not supported")
	case tokLBracket:
		return nil, syntaxErrorf(t.pos, "subscripting is not supported")
	}
	return atom, nil
}

// atom = NUMBER | STRING | "True" | "False" | "None" | NAME
//      | "(" expr ("," expr)* ")" | "[" exprs "]" | "{" exprs "}"
func (p *parser) parseAtom() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, syntaxErrorf(t.pos, "invalid number %q", t.val)
		}
		return &literalNode{value: f}, nil
	case tokString:
		p.next()
		return &literalNode{value: t.val}, nil
	case tokName:
		switch t.val {
		case "True":
			p.next()
			return &literalNode{value: true}, nil
		case "False":
			p.next()
			return &literalNode{value: false}, nil
		case "None":
			p.next()
			return &literalNode{value: nil}, nil
		case "lambda":
			return nil, syntaxErrorf(t.pos, "lambda expressions are not supported")
		case "if", "else":
			return nil, syntaxErrorf(t.pos, "conditional expressions are not supported")
		case "for":
			return nil, syntaxErrorf(t.pos, "comprehensions are not supported")
		case "and", "or", "not", "in", "is":
			return nil, syntaxErrorf(t.pos, "unexpected keyword %q", t.val)
		}
		p.next()
		return &nameNode{ident: t.val}, nil
	case tokLParen:
		p.next()
		first, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		// A parenthesized expression is grouping unless a comma makes
		// it a tuple literal.
		if p.peek().kind != tokComma {
			if err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return first, nil
		}
		elems := []node{first}
		for p.peek().kind == tokComma {
			p.next()
			if p.peek().kind == tokRParen {
				break // trailing comma
			}
			elem, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return &listNode{elems: elems}, nil
	case tokLBracket:
		p.next()
		elems, err := p.parseElems(tokRBracket, "]")
		if err != nil {
			return nil, err
		}
		return &listNode{elems: elems}, nil
	case tokLBrace:
		p.next()
		elems, err := p.parseElems(tokRBrace, "}")
		if err != nil {
			return nil, err
		}
		if len(elems) == 0 {
			return nil, syntaxErrorf(t.pos, "dict literals are not supported")
		}
		return &listNode{elems: elems}, nil
	case tokColon:
		return nil, syntaxErrorf(t.pos, "unexpected %q", ":")
	}
	return nil, syntaxErrorf(t.pos, "expected an expression, got %q", t.val)
}

// parseElems parses a comma-separated element list up to the closing token.
func (p *parser) parseElems(closer tokenKind, closerVal string) ([]node, error) {
	elems := []node{}
	for p.peek().kind != closer {
		elem, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		// A "for" after the first element is a comprehension.
		if p.isName("for") {
			return nil, syntaxErrorf(p.peek().pos, "comprehensions are not supported")
		}
		if p.peek().kind == tokColon {
			return nil, syntaxErrorf(p.peek().pos, "dict literals are not supported")
		}
		elems = append(elems, elem)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.expect(closer, closerVal); err != nil {
		return nil, err
	}
	return elems, nil
}

func (p *parser) expect(kind tokenKind, val string) error {
	t := p.peek()
	if t.kind != kind {
		return syntaxErrorf(t.pos, "expected %q, got %q", val, t.val)
	}
	p.next()
	return nil
}
