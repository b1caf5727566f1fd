// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"fmt"
	"math"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// =============================================================================
// AST
// =============================================================================

// node is an arithmetic AST node. eval reads variable values from the
// environment slice by slot index.
type node interface {
	eval(env []float64) (float64, error)
}

// boolNode is a boolean AST node for conditions.
type boolNode interface {
	evalBool(env []float64) (bool, error)
}

type numberNode struct {
	v float64
}

func (n *numberNode) eval(_ []float64) (float64, error) {
	return n.v, nil
}

type varNode struct {
	name string
	slot int
}

func (n *varNode) eval(env []float64) (float64, error) {
	return env[n.slot], nil
}

type binOp int

const (
	opAdd binOp = iota
	opSub
	opMul
	opDiv
	opPow
)

type binaryNode struct {
	op          binOp
	left, right node
}

func (n *binaryNode) eval(env []float64) (float64, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return 0, err
	}

	var v float64
	switch n.op {
	case opAdd:
		v = l + r
	case opSub:
		v = l - r
	case opMul:
		v = l * r
	case opDiv:
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", engine.ErrEvaluation)
		}
		v = l / r
	case opPow:
		v = math.Pow(l, r)
		if math.IsNaN(v) && !math.IsNaN(l) && !math.IsNaN(r) {
			return 0, fmt.Errorf("%w: %v ** %v is undefined", engine.ErrEvaluation, l, r)
		}
	}

	if math.IsInf(v, 0) && !math.IsInf(l, 0) && !math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: overflow", engine.ErrEvaluation)
	}
	return v, nil
}

type negNode struct {
	operand node
}

func (n *negNode) eval(env []float64) (float64, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

type callNode struct {
	name string
	fn   builtinFunc
	args []node
}

func (n *callNode) eval(env []float64) (float64, error) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return n.fn(args)
}

type cmpOp int

const (
	cmpLT cmpOp = iota
	cmpLE
	cmpGT
	cmpGE
	cmpEQ
	cmpNE
)

type compareNode struct {
	op          cmpOp
	left, right node
}

func (n *compareNode) evalBool(env []float64) (bool, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return false, err
	}

	switch n.op {
	case cmpLT:
		return l < r, nil
	case cmpLE:
		return l <= r, nil
	case cmpGT:
		return l > r, nil
	case cmpGE:
		return l >= r, nil
	case cmpEQ:
		return l == r, nil
	case cmpNE:
		return l != r, nil
	}
	return false, fmt.Errorf("%w: unknown comparison", engine.ErrEvaluation)
}

type logicOp int

const (
	opAnd logicOp = iota
	opOr
)

type logicalNode struct {
	op          logicOp
	left, right boolNode
}

func (n *logicalNode) evalBool(env []float64) (bool, error) {
	l, err := n.left.evalBool(env)
	if err != nil {
		return false, err
	}
	// No short-circuit: the right side may carry a math fault the
	// caller's drop policy must see regardless of the left value.
	r, err := n.right.evalBool(env)
	if err != nil {
		return false, err
	}
	if n.op == opAnd {
		return l && r, nil
	}
	return l || r, nil
}

type notNode struct {
	operand boolNode
}

func (n *notNode) evalBool(env []float64) (bool, error) {
	v, err := n.operand.evalBool(env)
	if err != nil {
		return false, err
	}
	return !v, nil
}

// =============================================================================
// Function Whitelist
// =============================================================================

// builtinFunc applies a whitelisted math function, reporting domain
// errors and overflow as ErrEvaluation.
type builtinFunc func(args []float64) (float64, error)

type builtin struct {
	minArgs int
	maxArgs int // -1 means unbounded
	fn      builtinFunc
}

var builtins = map[string]builtin{
	"exp": {1, 1, func(args []float64) (float64, error) {
		v := math.Exp(args[0])
		if math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: exp overflow", engine.ErrEvaluation)
		}
		return v, nil
	}},
	"log": {1, 1, func(args []float64) (float64, error) {
		if args[0] <= 0 {
			return 0, fmt.Errorf("%w: log of non-positive value %v", engine.ErrEvaluation, args[0])
		}
		return math.Log(args[0]), nil
	}},
	"sqrt": {1, 1, func(args []float64) (float64, error) {
		if args[0] < 0 {
			return 0, fmt.Errorf("%w: sqrt of negative value %v", engine.ErrEvaluation, args[0])
		}
		return math.Sqrt(args[0]), nil
	}},
	"abs": {1, 1, func(args []float64) (float64, error) {
		return math.Abs(args[0]), nil
	}},
	"min": {2, -1, func(args []float64) (float64, error) {
		v := args[0]
		for _, a := range args[1:] {
			v = math.Min(v, a)
		}
		return v, nil
	}},
	"max": {2, -1, func(args []float64) (float64, error) {
		v := args[0]
		for _, a := range args[1:] {
			v = math.Max(v, a)
		}
		return v, nil
	}},
}

// =============================================================================
// Parser
// =============================================================================

// parser is a recursive-descent parser over the lexer's token stream.
// One parser compiles one formula; it is not reused.
type parser struct {
	lex   *lexer
	tok   token
	slots map[string]int
	refs  []string
	seen  map[string]bool
}

func newParser(src string, slots map[string]int) *parser {
	return &parser{
		lex:   newLexer(src),
		slots: slots,
		seen:  make(map[string]bool),
	}
}

// referenced returns the declared variables the source referenced, in
// first-use order.
func (p *parser) referenced() []string {
	return p.refs
}

// advance moves to the next token.
func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// expect consumes the current token if it matches, else errors.
func (p *parser) expect(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return p.unexpected(what)
	}
	return p.advance()
}

func (p *parser) unexpected(what string) error {
	if p.tok.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of formula, expected %s", engine.ErrInvalidExpression, what)
	}
	return fmt.Errorf("%w: unexpected %q at position %d, expected %s",
		engine.ErrInvalidExpression, p.tok.text, p.tok.pos, what)
}

// parseFull parses a complete arithmetic formula through EOF.
func (p *parser) parseFull() (node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected("end of formula")
	}
	return root, nil
}

// parseConditionFull parses a complete boolean condition through EOF.
func (p *parser) parseConditionFull() (boolNode, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected("end of condition")
	}
	return root, nil
}

// parseConjunction = negation { ("and"|"or") negation }
//
// "and" and "or" share one precedence level and associate left; mixed
// chains evaluate left to right.
func (p *parser) parseConjunction() (boolNode, error) {
	left, err := p.parseNegation()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokIdent && (p.tok.text == "and" || p.tok.text == "or") {
		op := opAnd
		if p.tok.text == "or" {
			op = opOr
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: op, left: left, right: right}
	}
	return left, nil
}

// parseNegation = "not" negation | comparison
func (p *parser) parseNegation() (boolNode, error) {
	if p.tok.kind == tokIdent && p.tok.text == "not" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parseComparison()
}

// parseComparison = expr cmpOp expr
//
// Exactly one comparison; chains like a < b < c are rejected.
func (p *parser) parseComparison() (boolNode, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	var op cmpOp
	switch p.tok.kind {
	case tokLT:
		op = cmpLT
	case tokLE:
		op = cmpLE
	case tokGT:
		op = cmpGT
	case tokGE:
		op = cmpGE
	case tokEQ:
		op = cmpEQ
	case tokNE:
		op = cmpNE
	default:
		return nil, p.unexpected("a comparison operator")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &compareNode{op: op, left: left, right: right}, nil
}

// parseExpr = term { ("+"|"-") term }
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		op := opAdd
		if p.tok.kind == tokMinus {
			op = opSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

// parseTerm = unary { ("*"|"/") unary }
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokStar || p.tok.kind == tokSlash {
		op := opMul
		if p.tok.kind == tokSlash {
			op = opDiv
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

// parseUnary = ("-"|"+") unary | power
func (p *parser) parseUnary() (node, error) {
	switch p.tok.kind {
	case tokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{operand: operand}, nil
	case tokPlus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseUnary()
	}
	return p.parsePower()
}

// parsePower = primary [ "**" unary ]
//
// Right-associative; the unary on the right admits 2**-3.
func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if p.tok.kind == tokPower {
		if err := p.advance(); err != nil {
			return nil, err
		}
		exponent, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: opPow, left: base, right: exponent}, nil
	}
	return base, nil
}

// parsePrimary = number | ident | ident "(" args ")" | "(" expr ")"
func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := &numberNode{v: p.tok.value}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "a closing parenthesis"); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		name := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokLParen {
			return p.parseCall(name, pos)
		}
		slot, declared := p.slots[name]
		if !declared {
			return nil, fmt.Errorf("%w: unknown identifier %q at position %d",
				engine.ErrInvalidExpression, name, pos)
		}
		if !p.seen[name] {
			p.seen[name] = true
			p.refs = append(p.refs, name)
		}
		return &varNode{name: name, slot: slot}, nil
	}

	return nil, p.unexpected("a number, variable, or parenthesized expression")
}

// parseCall parses a whitelisted function invocation; the opening paren
// is the current token.
func (p *parser) parseCall(name string, pos int) (node, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown function %q at position %d",
			engine.ErrInvalidExpression, name, pos)
	}
	if err := p.advance(); err != nil { // consume "("
		return nil, err
	}

	var args []node
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expect(tokRParen, "a closing parenthesis"); err != nil {
		return nil, err
	}

	if len(args) < b.minArgs || (b.maxArgs >= 0 && len(args) > b.maxArgs) {
		return nil, fmt.Errorf("%w: %s takes %s, got %d",
			engine.ErrInvalidExpression, name, arityString(b), len(args))
	}
	return &callNode{name: name, fn: b.fn, args: args}, nil
}

func arityString(b builtin) string {
	if b.maxArgs < 0 {
		return fmt.Sprintf("at least %d arguments", b.minArgs)
	}
	if b.minArgs == b.maxArgs {
		if b.minArgs == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", b.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", b.minArgs, b.maxArgs)
}
