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
	"strconv"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// tokenKind enumerates the lexical tokens of the restricted grammar.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPower
	tokLParen
	tokRParen
	tokComma
	tokLT
	tokLE
	tokGT
	tokGE
	tokEQ
	tokNE
)

// token is one lexical unit with its source position for error messages.
type token struct {
	kind  tokenKind
	text  string
	pos   int
	value float64 // set for tokNumber
}

// lexer scans a formula string into tokens. Any byte outside the
// grammar's alphabet is an immediate ErrInvalidExpression; nothing is
// skipped or coerced.
type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

// next returns the next token, advancing the scan position.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos

	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.src[l.pos]
	switch {
	case c >= '0' && c <= '9':
		return l.scanNumber()
	case isIdentStart(c):
		return l.scanIdent()
	}

	l.pos++
	switch c {
	case '+':
		return token{kind: tokPlus, text: "+", pos: start}, nil
	case '-':
		return token{kind: tokMinus, text: "-", pos: start}, nil
	case '*':
		if l.peek() == '*' {
			l.pos++
			return token{kind: tokPower, text: "**", pos: start}, nil
		}
		return token{kind: tokStar, text: "*", pos: start}, nil
	case '/':
		return token{kind: tokSlash, text: "/", pos: start}, nil
	case '(':
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case ',':
		return token{kind: tokComma, text: ",", pos: start}, nil
	case '<':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokLE, text: "<=", pos: start}, nil
		}
		return token{kind: tokLT, text: "<", pos: start}, nil
	case '>':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokGE, text: ">=", pos: start}, nil
		}
		return token{kind: tokGT, text: ">", pos: start}, nil
	case '=':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokEQ, text: "==", pos: start}, nil
		}
		return token{}, fmt.Errorf("%w: single %q at position %d (use == for equality)",
			engine.ErrInvalidExpression, "=", start)
	case '!':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokNE, text: "!=", pos: start}, nil
		}
		return token{}, fmt.Errorf("%w: single %q at position %d (use the keyword not)",
			engine.ErrInvalidExpression, "!", start)
	}

	return token{}, fmt.Errorf("%w: disallowed character %q at position %d",
		engine.ErrInvalidExpression, string(c), start)
}

// scanNumber scans a decimal literal with optional fraction and
// exponent. The literal must start with a digit.
func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		mark := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.src) || !isDigit(l.src[l.pos]) {
			// Not an exponent after all; "2e" is ident-adjacent garbage.
			l.pos = mark
		} else {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}

	text := l.src[start:l.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("%w: bad numeric literal %q at position %d",
			engine.ErrInvalidExpression, text, start)
	}
	return token{kind: tokNumber, text: text, pos: start, value: v}, nil
}

// scanIdent scans an identifier: keyword, function name, or variable.
func (l *lexer) scanIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) peek() byte {
	if l.pos < len(l.src) {
		return l.src[l.pos]
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
