// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package formula compiles and evaluates the restricted arithmetic
// grammar used by claim formulas, success conditions, and constraints.
//
// # Description
//
// Formulas arrive as free-form strings from an upstream reasoning
// process, so this package is the security boundary between claim text
// and computation: it accepts ONLY numeric literals, declared variable
// names, the operators + - * / **, parentheses, and the function
// whitelist exp, log, sqrt, min, max, abs. Conditions additionally
// accept the comparison operators < <= > >= == != and the keywords
// and/or/not joining comparisons at the top level. Anything else is
// rejected at compile time with ErrInvalidExpression. Formulas are never
// routed through a general-purpose interpreter.
//
// # Grammar
//
//	condition  = conjunction
//	conjunction= negation { ("and"|"or") negation }
//	negation   = "not" negation | comparison
//	comparison = expr cmpOp expr
//	expr       = term { ("+"|"-") term }
//	term       = unary { ("*"|"/") unary }
//	unary      = ("-"|"+") unary | power
//	power      = primary [ "**" unary ]
//	primary    = number | ident | ident "(" expr {"," expr} ")" | "(" expr ")"
//
// "**" is right-associative and binds tighter than unary minus on its
// left (-x**2 is -(x**2)); comparisons cannot chain and boolean
// subexpressions cannot be parenthesized.
//
// # Errors
//
// Compile-time rejections wrap ErrInvalidExpression. Runtime math
// faults (division by zero, log of a non-positive, sqrt of a negative,
// overflow to infinity) wrap ErrEvaluation so simulation callers can
// apply their drop-ratio policy per draw.
//
// # Thread Safety
//
// A compiled Program or Condition is immutable and safe for concurrent
// evaluation from multiple goroutines; each call site supplies its own
// environment slice.
package formula

import (
	"fmt"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// reserved are identifiers a request may not declare as variable names:
// the function whitelist plus the condition keywords.
var reserved = map[string]struct{}{
	"exp": {}, "log": {}, "sqrt": {}, "min": {}, "max": {}, "abs": {},
	"and": {}, "or": {}, "not": {},
}

// Program is a compiled arithmetic formula.
//
// Evaluation reads variable values from an environment slice indexed by
// slot; Slot maps a declared name to its index. The same Program may be
// evaluated concurrently with distinct environments.
type Program struct {
	src   string
	root  node
	slots map[string]int
	refs  []string
}

// Compile parses src against the declared variable names.
//
// Every declared name gets an environment slot (in declaration order)
// whether or not the formula references it; Variables reports the
// referenced subset. Returns an error wrapping ErrInvalidExpression on
// any token outside the grammar, and ErrInvalidRequest when a declared
// name collides with a reserved word.
func Compile(src string, variables []string) (*Program, error) {
	slots, err := buildSlots(variables)
	if err != nil {
		return nil, err
	}

	p := newParser(src, slots)
	root, err := p.parseFull()
	if err != nil {
		return nil, err
	}

	return &Program{
		src:   src,
		root:  root,
		slots: slots,
		refs:  p.referenced(),
	}, nil
}

// Eval evaluates the program against a name→value mapping.
//
// Missing declared variables default to 0 only if they are not
// referenced; a referenced variable must be present.
func (p *Program) Eval(values map[string]float64) (float64, error) {
	env := make([]float64, len(p.slots))
	for _, name := range p.refs {
		v, ok := values[name]
		if !ok {
			return 0, fmt.Errorf("%w: no value for variable %q", engine.ErrInvalidRequest, name)
		}
		env[p.slots[name]] = v
	}
	return p.root.eval(env)
}

// EvalEnv evaluates the program against a pre-built environment slice.
//
// This is the hot path for vectorized callers: build one slice of
// len(Slots()) per goroutine, overwrite the referenced slots per draw,
// and reuse it.
func (p *Program) EvalEnv(env []float64) (float64, error) {
	return p.root.eval(env)
}

// Slot returns the environment index for a declared variable name.
func (p *Program) Slot(name string) (int, bool) {
	i, ok := p.slots[name]
	return i, ok
}

// Slots returns the environment size (the count of declared variables).
func (p *Program) Slots() int {
	return len(p.slots)
}

// Variables returns the declared names the formula actually references,
// in first-use order.
func (p *Program) Variables() []string {
	out := make([]string, len(p.refs))
	copy(out, p.refs)
	return out
}

// Source returns the original formula text.
func (p *Program) Source() string {
	return p.src
}

// Condition is a compiled boolean expression: comparisons over the
// arithmetic grammar joined by and/or/not.
type Condition struct {
	src   string
	root  boolNode
	slots map[string]int
	refs  []string
}

// CompileCondition parses a boolean expression against the declared
// variable names. Same slot and error semantics as Compile.
func CompileCondition(src string, variables []string) (*Condition, error) {
	slots, err := buildSlots(variables)
	if err != nil {
		return nil, err
	}

	p := newParser(src, slots)
	root, err := p.parseConditionFull()
	if err != nil {
		return nil, err
	}

	return &Condition{
		src:   src,
		root:  root,
		slots: slots,
		refs:  p.referenced(),
	}, nil
}

// Eval evaluates the condition against a name→value mapping.
func (c *Condition) Eval(values map[string]float64) (bool, error) {
	env := make([]float64, len(c.slots))
	for _, name := range c.refs {
		v, ok := values[name]
		if !ok {
			return false, fmt.Errorf("%w: no value for variable %q", engine.ErrInvalidRequest, name)
		}
		env[c.slots[name]] = v
	}
	return c.root.evalBool(env)
}

// EvalEnv evaluates the condition against a pre-built environment slice.
func (c *Condition) EvalEnv(env []float64) (bool, error) {
	return c.root.evalBool(env)
}

// Slot returns the environment index for a declared variable name.
func (c *Condition) Slot(name string) (int, bool) {
	i, ok := c.slots[name]
	return i, ok
}

// Slots returns the environment size (the count of declared variables).
func (c *Condition) Slots() int {
	return len(c.slots)
}

// Variables returns the referenced names in first-use order.
func (c *Condition) Variables() []string {
	out := make([]string, len(c.refs))
	copy(out, c.refs)
	return out
}

// Source returns the original condition text.
func (c *Condition) Source() string {
	return c.src
}

// buildSlots assigns environment slots to declared names and rejects
// duplicates and reserved-word collisions.
func buildSlots(variables []string) (map[string]int, error) {
	slots := make(map[string]int, len(variables))
	for i, name := range variables {
		if _, isReserved := reserved[name]; isReserved {
			return nil, fmt.Errorf("%w: variable name %q is a reserved word", engine.ErrInvalidRequest, name)
		}
		if _, dup := slots[name]; dup {
			return nil, fmt.Errorf("%w: duplicate variable name %q", engine.ErrInvalidRequest, name)
		}
		slots[name] = i
	}
	return slots, nil
}
