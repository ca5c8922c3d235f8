// Package lexer turns TinyCompiled source text into a stream of tokens.
package lexer

import (
	"strings"
	"unicode"

	"github.com/tinycompiled/tc/token"
)

// Lexer holds our object-state.
type Lexer struct {
	characters []rune // rune slice of input string
	position   int    // current character position
	line       int
	column     int
}

// New builds a Lexer over the given source text.
func New(input string) *Lexer {
	return &Lexer{
		characters: []rune(input),
		position:   0,
		line:       1,
		column:     1,
	}
}

// Tokenize scans the whole source and returns the resulting token list,
// always terminated by an EOF token. The lexer never fails: malformed or
// unrecognised bytes are silently skipped (spec §4.2, §7 — LexError is
// reserved for a stricter implementation than this one).
func (l *Lexer) Tokenize() []token.Token {
	var tokens []token.Token

	for {
		l.skipWhitespace()

		ch, ok := l.current()
		if !ok {
			break
		}

		switch {
		case ch == ';':
			l.skipComment()

		case ch == ',':
			tokens = append(tokens, l.emit(token.COMMA, ","))
			l.advance()

		case ch == '\n':
			tokens = append(tokens, l.emit(token.NEWLINE, "\n"))
			l.advance()

		case unicode.IsDigit(ch) || (ch == '-' && l.peekIsDigit()):
			tokens = append(tokens, l.readNumber())

		case isOperatorStart(ch):
			if tok, ok := l.readOperator(); ok {
				tokens = append(tokens, tok)
			} else {
				l.advance()
			}

		case unicode.IsLetter(ch) || ch == '_':
			tokens = append(tokens, l.readIdentifierToken())

		default:
			// Unknown byte: skipped rather than raising (spec §4.2, §7).
			l.advance()
		}
	}

	tokens = append(tokens, token.Token{Kind: token.EOF, Line: l.line, Column: l.column})
	return tokens
}

// current returns the rune at the cursor, and whether one exists.
func (l *Lexer) current() (rune, bool) {
	if l.position >= len(l.characters) {
		return 0, false
	}
	return l.characters[l.position], true
}

// peek returns the rune `offset` positions ahead of the cursor, or 0 if
// that position is past the end of input.
func (l *Lexer) peek(offset int) rune {
	idx := l.position + offset
	if idx >= len(l.characters) {
		return 0
	}
	return l.characters[idx]
}

func (l *Lexer) peekIsDigit() bool {
	return unicode.IsDigit(l.peek(1))
}

// advance moves the cursor forward one rune, tracking line/column.
func (l *Lexer) advance() {
	if l.position >= len(l.characters) {
		return
	}
	if l.characters[l.position] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.position++
}

func (l *Lexer) skipWhitespace() {
	for {
		ch, ok := l.current()
		if !ok || ch == '\n' || !unicode.IsSpace(ch) {
			return
		}
		l.advance()
	}
}

func (l *Lexer) skipComment() {
	for {
		ch, ok := l.current()
		if !ok || ch == '\n' {
			return
		}
		l.advance()
	}
}

func (l *Lexer) emit(kind token.Kind, value string) token.Token {
	return token.Token{Kind: kind, Value: value, Line: l.line, Column: l.column}
}

// readNumber decodes a NUMBER literal: an optional leading '-' (already
// confirmed by the caller to be followed by a digit), then a 0x/0X
// (hexadecimal), 0b/0B (binary) or bare decimal digit run. The decoded
// integer is carried directly on the token (spec §4.2).
func (l *Lexer) readNumber() token.Token {
	line, col := l.line, l.column
	negative := false

	if ch, _ := l.current(); ch == '-' {
		negative = true
		l.advance()
	}

	var value int
	switch {
	case l.matchesBasePrefix('x', 'X'):
		l.advance() // '0'
		l.advance() // 'x'/'X'
		value = l.readDigitRun(isHexDigit, 16)
	case l.matchesBasePrefix('b', 'B'):
		l.advance() // '0'
		l.advance() // 'b'/'B'
		value = l.readDigitRun(isBinDigit, 2)
	default:
		value = l.readDigitRun(unicode.IsDigit, 10)
	}

	if negative {
		value = -value
	}

	return token.Token{Kind: token.NUMBER, IntValue: value, Line: line, Column: col}
}

// matchesBasePrefix reports whether the cursor sits on '0' followed by
// either of the two given base-marker runes.
func (l *Lexer) matchesBasePrefix(lower, upper rune) bool {
	ch, ok := l.current()
	if !ok || ch != '0' {
		return false
	}
	next := l.peek(1)
	return next == lower || next == upper
}

func (l *Lexer) readDigitRun(accept func(rune) bool, base int) int {
	value := 0
	for {
		ch, ok := l.current()
		if !ok || !accept(ch) {
			break
		}
		value = value*base + digitValue(ch)
		l.advance()
	}
	return value
}

func digitValue(ch rune) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10
	}
	return 0
}

func isHexDigit(ch rune) bool {
	return unicode.IsDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isBinDigit(ch rune) bool {
	return ch == '0' || ch == '1'
}

// isOperatorStart reports whether ch can begin a comparison operator.
// Scanning these is the fix for spec §9 Open Question #1: the original's
// `_tokenize_operators` hook is an empty stub, but the parser requires
// EQ/NEQ/GT/LT/GTE/LTE tokens to exist.
func isOperatorStart(ch rune) bool {
	switch ch {
	case '=', '!', '<', '>':
		return true
	}
	return false
}

// readOperator scans a comparison operator using one rune of lookahead for
// the two-character forms (==, !=, <=, >=).
func (l *Lexer) readOperator() (token.Token, bool) {
	ch, _ := l.current()
	line, col := l.line, l.column

	switch ch {
	case '=':
		if l.peek(1) == '=' {
			l.advance()
			l.advance()
			return token.Token{Kind: token.EQ, Value: "==", Line: line, Column: col}, true
		}
		// A bare '=' is not part of TC's grammar; treat as unknown.
		return token.Token{}, false
	case '!':
		if l.peek(1) == '=' {
			l.advance()
			l.advance()
			return token.Token{Kind: token.NEQ, Value: "!=", Line: line, Column: col}, true
		}
		return token.Token{}, false
	case '<':
		if l.peek(1) == '=' {
			l.advance()
			l.advance()
			return token.Token{Kind: token.LTE, Value: "<=", Line: line, Column: col}, true
		}
		l.advance()
		return token.Token{Kind: token.LT, Value: "<", Line: line, Column: col}, true
	case '>':
		if l.peek(1) == '=' {
			l.advance()
			l.advance()
			return token.Token{Kind: token.GTE, Value: ">=", Line: line, Column: col}, true
		}
		l.advance()
		return token.Token{Kind: token.GT, Value: ">", Line: line, Column: col}, true
	}
	return token.Token{}, false
}

// readIdentifierToken reads a run of letters/digits/underscores and
// classifies it as a LABEL (trailing ':'), REGISTER, keyword or plain
// IDENTIFIER, in that priority order (spec §4.2).
func (l *Lexer) readIdentifierToken() token.Token {
	line, col := l.line, l.column
	name := l.readIdentifier()

	if ch, ok := l.current(); ok && ch == ':' {
		l.advance()
		return token.Token{Kind: token.LABEL, Value: name, Line: line, Column: col}
	}

	if token.IsRegister(name) {
		return token.Token{Kind: token.REGISTER, Value: name, Line: line, Column: col}
	}

	if kind, ok := token.LookupKeyword(strings.ToUpper(name)); ok {
		return token.Token{Kind: kind, Value: name, Line: line, Column: col}
	}

	return token.Token{Kind: token.IDENTIFIER, Value: name, Line: line, Column: col}
}

func (l *Lexer) readIdentifier() string {
	var sb strings.Builder
	for {
		ch, ok := l.current()
		if !ok || !(unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_') {
			break
		}
		sb.WriteRune(ch)
		l.advance()
	}
	return sb.String()
}
