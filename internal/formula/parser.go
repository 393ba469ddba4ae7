// Package formula implements the formula evaluation layer of the
// reconciliation engine: a field mapping resolver, a small typed expression
// language (identifiers, decimal literals, + - * / and parentheses), and a
// compiler that resolves formula-to-formula references into closed-form
// expression trees evaluated per record.
package formula

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Env supplies per-record values for physical field identifiers. Unbound
// identifiers evaluate to zero rather than failing the record.
type Env func(name string) (decimal.Decimal, bool)

// node is a compiled expression tree node.
type node interface {
	eval(env Env) (decimal.Decimal, error)
}

type numberNode struct {
	value decimal.Decimal
}

func (n numberNode) eval(Env) (decimal.Decimal, error) {
	return n.value, nil
}

type identNode struct {
	name string
}

func (n identNode) eval(env Env) (decimal.Decimal, error) {
	if v, ok := env(n.name); ok {
		return v, nil
	}
	return decimal.Zero, nil
}

type unaryNode struct {
	operand node
}

func (n unaryNode) eval(env Env) (decimal.Decimal, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n binaryNode) eval(env Env) (decimal.Decimal, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := n.right.eval(env)
	if err != nil {
		return decimal.Zero, err
	}

	switch n.op {
	case '+':
		return left.Add(right), nil
	case '-':
		return left.Sub(right), nil
	case '*':
		return left.Mul(right), nil
	case '/':
		if right.IsZero() {
			return decimal.Zero, fmt.Errorf("division by zero")
		}
		return left.Div(right), nil
	}
	return decimal.Zero, fmt.Errorf("unknown operator %q", n.op)
}

// tokenKind enumerates lexer token types
type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenOperator
	tokenLeftParen
	tokenRightParen
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// parser is a recursive-descent parser over the tokenized expression.
type parser struct {
	tokens []token
	pos    int
}

// parseExpression parses an expression string into a tree. Identifiers are
// left unresolved; reference resolution and column substitution happen in
// the compiler.
func parseExpression(expr string) (node, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
	}
	return root, nil
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)

	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLeftParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRightParen, text: ")", pos: i})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{kind: tokenOperator, text: string(c), pos: i})
			i++
		case unicode.IsDigit(c) || c == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if strings.Count(text, ".") > 1 {
				return nil, fmt.Errorf("invalid number %q at position %d", text, start)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, pos: start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[start:i]), pos: start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: len(runes)})
	return tokens, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

// parseAdditive handles + and - at the lowest precedence level.
func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()

		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text[0], left: left, right: right}
	}
}

// parseMultiplicative handles * and /.
func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.next()

		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text[0], left: left, right: right}
	}
}

// parseFactor handles numbers, identifiers, parenthesized expressions and
// unary minus.
func (p *parser) parseFactor() (node, error) {
	tok := p.next()

	switch tok.kind {
	case tokenNumber:
		value, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.text, tok.pos)
		}
		return numberNode{value: value}, nil

	case tokenIdent:
		return identNode{name: tok.text}, nil

	case tokenLeftParen:
		inner, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRightParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", closing.pos)
		}
		return inner, nil

	case tokenOperator:
		if tok.text == "-" {
			operand, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return unaryNode{operand: operand}, nil
		}
	}

	return nil, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
}

// rewriteIdents returns a copy of the tree with every identifier node
// replaced by whatever fn returns for it.
func rewriteIdents(n node, fn func(identNode) (node, error)) (node, error) {
	switch v := n.(type) {
	case identNode:
		return fn(v)
	case unaryNode:
		operand, err := rewriteIdents(v.operand, fn)
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	case binaryNode:
		left, err := rewriteIdents(v.left, fn)
		if err != nil {
			return nil, err
		}
		right, err := rewriteIdents(v.right, fn)
		if err != nil {
			return nil, err
		}
		return binaryNode{op: v.op, left: left, right: right}, nil
	default:
		return n, nil
	}
}
