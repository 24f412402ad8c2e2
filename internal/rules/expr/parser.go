// Package expr implements a small expression language used by program rule
// conditions and action data expressions: arithmetic, comparisons, boolean
// connectives, string literals and parenthesization. Expressions are parsed
// by recursive descent into an AST and evaluated by a tree walk. Both
// phases return errors instead of panicking so a malformed expression can
// never take down an evaluation pass.
package expr

import (
	"fmt"
	"strconv"
)

type node interface{}

type literalNode struct {
	val Value
}

type unaryNode struct {
	op    string
	child node
}

type binaryNode struct {
	op          string
	left, right node
}

type parser struct {
	toks []token
	pos  int
}

// Parse parses input into an AST.
func Parse(input string) (node, error) {
	toks, err := newLexer(input).lexAll()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().typ != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.peek().lit, p.peek().pos)
	}
	return n, nil
}

// Evaluate parses and evaluates input in one step.
func Evaluate(input string) (Value, error) {
	n, err := Parse(input)
	if err != nil {
		return Null(), err
	}
	return eval(n)
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.typ != tokOperator {
		return "", false
	}
	for _, op := range ops {
		if t.lit == op {
			p.advance()
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("==", "!=", "<", "<=", ">", ">=")
		if !ok {
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("!", "-"); ok {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.typ {
	case tokNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.lit, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.lit, err)
		}
		return &literalNode{val: Number(f)}, nil
	case tokString:
		p.advance()
		return &literalNode{val: String(t.lit)}, nil
	case tokIdent:
		p.advance()
		switch t.lit {
		case "true":
			return &literalNode{val: Boolean(true)}, nil
		case "false":
			return &literalNode{val: Boolean(false)}, nil
		case "null":
			return &literalNode{val: Null()}, nil
		}
		return nil, fmt.Errorf("unknown identifier %q at position %d", t.lit, t.pos)
	case tokLParen:
		p.advance()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().typ != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.peek().pos)
		}
		p.advance()
		return n, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", t.lit, t.pos)
	}
}
