package condition

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName            // identifier or keyword
	tokNumber          // 42 | 3.14
	tokString          // "…" or '…'
	tokOp              // == != < <= > >= + - * / %
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokDot   // attribute access, always rejected by the parser
	tokColon // dict/lambda syntax, always rejected by the parser
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

// keywords of the condition grammar. Anything else scanned as a word is a
// context variable name.
var keywords = map[string]bool{
	"and":    true,
	"or":     true,
	"not":    true,
	"in":     true,
	"True":   true,
	"False":  true,
	"None":   true,
	"lambda": true,
	"for":    true,
	"if":     true,
	"else":   true,
	"is":     true,
}

func isKeyword(word string) bool { return keywords[word] }

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		if unicode.IsSpace(rune(ch)) {
			i++
			continue
		}
		switch ch {
		case '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
			continue
		case ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
			continue
		case '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
			continue
		case ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
			continue
		case '{':
			tokens = append(tokens, token{tokLBrace, "{", i})
			i++
			continue
		case '}':
			tokens = append(tokens, token{tokRBrace, "}", i})
			i++
			continue
		case ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
			continue
		case '.':
			tokens = append(tokens, token{tokDot, ".", i})
			i++
			continue
		case ':':
			tokens = append(tokens, token{tokColon, ":", i})
			i++
			continue
		}

		// Comparison and arithmetic operators. '=' on its own is an
		// assignment, which the grammar does not have.
		if ch == '=' || ch == '!' || ch == '<' || ch == '>' {
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, token{tokOp, expr[i : i+2], i})
				i += 2
				continue
			}
			if ch == '=' {
				return nil, syntaxErrorf(i, "assignment is not supported")
			}
			if ch == '!' {
				return nil, syntaxErrorf(i, "unexpected character %q", ch)
			}
			tokens = append(tokens, token{tokOp, string(ch), i})
			i++
			continue
		}
		if ch == '+' || ch == '-' || ch == '*' || ch == '/' || ch == '%' {
			tokens = append(tokens, token{tokOp, string(ch), i})
			i++
			continue
		}

		// String literals, single or double quoted with basic escapes.
		if ch == '"' || ch == '\'' {
			quote := ch
			j := i + 1
			for j < len(expr) && expr[j] != quote {
				if expr[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(expr) {
				return nil, syntaxErrorf(i, "unterminated string literal")
			}
			inner := expr[i+1 : j]
			inner = strings.ReplaceAll(inner, `\"`, `"`)
			inner = strings.ReplaceAll(inner, `\'`, `'`)
			inner = strings.ReplaceAll(inner, `\\`, `\`)
			tokens = append(tokens, token{tokString, inner, i})
			i = j + 1
			continue
		}

		// Numbers. A leading digit or a dot followed by a digit starts a
		// numeric literal; the dot token above only fires for bare dots.
		if unicode.IsDigit(rune(ch)) {
			j := i
			seenDot := false
			for j < len(expr) {
				c := expr[j]
				if unicode.IsDigit(rune(c)) {
					j++
					continue
				}
				if c == '.' && !seenDot {
					seenDot = true
					j++
					continue
				}
				break
			}
			tokens = append(tokens, token{tokNumber, expr[i:j], i})
			i = j
			continue
		}

		// Words: variable names and keywords.
		if unicode.IsLetter(rune(ch)) || ch == '_' {
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j])) || expr[j] == '_') {
				j++
			}
			tokens = append(tokens, token{tokName, expr[i:j], i})
			i = j
			continue
		}

		return nil, syntaxErrorf(i, "unexpected character %q", ch)
	}
	tokens = append(tokens, token{tokEOF, "", len(expr)})
	return tokens, nil
}
