// Package parser implements a hand-written recursive descent parser that
// turns a token stream into a typed ast.Program. Lookahead is a single
// token; there is no backtracking.
package parser

import (
	"fmt"

	"github.com/tinycompiled/tc/ast"
	"github.com/tinycompiled/tc/token"
)

// ParseError is raised on any malformed input. It always carries the line
// (and, where available, column) of the offending token; there is no
// recovery once one is raised.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Parser holds cursor state over a fixed token list.
type Parser struct {
	tokens []token.Token
	pos    int
}

// New builds a Parser over a complete token list (as produced by
// lexer.Tokenize, always EOF-terminated).
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse consumes the whole token list and returns the resulting program, or
// the first ParseError encountered.
func Parse(tokens []token.Token) (prog *ast.Program, err error) {
	p := New(tokens)
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			err = pe
		}
	}()
	return p.parseProgram(), nil
}

func (p *Parser) parseProgram() *ast.Program {
	var stmts []ast.Stmt
	for p.current().Kind != token.EOF {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
		p.skipNewlines()
	}
	return &ast.Program{Statements: stmts}
}

func (p *Parser) current() token.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek(offset int) token.Token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *Parser) advance() {
	p.pos++
}

// expect consumes the current token if its kind matches, else raises a
// ParseError citing the offending line/column.
func (p *Parser) expect(kind token.Kind) token.Token {
	tok := p.current()
	if tok.Kind != kind {
		p.fail(tok, fmt.Sprintf("expected %s, got %s", kind, tok.Kind))
	}
	p.advance()
	return tok
}

func (p *Parser) fail(tok token.Token, msg string) {
	panic(&ParseError{Line: tok.Line, Column: tok.Column, Message: msg})
}

func (p *Parser) skipNewlines() {
	for p.current().Kind == token.NEWLINE {
		p.advance()
	}
}

// parseStatement dispatches on the leading token's kind (spec §4.3's
// table). Returns nil for a bare NEWLINE (skip, no node produced).
func (p *Parser) parseStatement() ast.Stmt {
	tok := p.current()

	switch tok.Kind {
	case token.VAR:
		return p.parseVarDecl()
	case token.LOAD:
		return p.parseLoad()
	case token.SET:
		return p.parseSet()
	case token.MOVE:
		return p.parseMove()
	case token.ADD, token.SUB, token.MUL, token.DIV, token.AND, token.OR, token.XOR:
		return p.parseBinaryOp()
	case token.INC, token.DEC:
		return p.parseUnaryOp()
	case token.NOT:
		return p.parseNot()
	case token.SHL, token.SHR:
		return p.parseShift()
	case token.LABEL:
		return p.parseLabel()
	case token.FUNC:
		return p.parseFunction()
	case token.CALL:
		return p.parseCall()
	case token.RET:
		return p.parseReturn()
	case token.LOOP:
		return p.parseLoop()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.REPEAT:
		return p.parseRepeat()
	case token.IF:
		return p.parseIf()
	case token.PUSH:
		return p.parsePush()
	case token.POP:
		return p.parsePop()
	case token.PRINT:
		return p.parsePrint()
	case token.INPUT:
		return p.parseInput()
	case token.HALT:
		p.advance()
		return ast.Halt{}
	case token.NOP:
		p.advance()
		return ast.Nop{}
	case token.NEWLINE:
		p.advance()
		return nil
	default:
		p.fail(tok, fmt.Sprintf("unexpected token %s", tok.Kind))
		return nil
	}
}

func (p *Parser) parseVarDecl() ast.Stmt {
	p.expect(token.VAR)
	name := p.expect(token.IDENTIFIER).Value

	var init *int
	if p.current().Kind == token.COMMA {
		p.advance()
		v := p.expect(token.NUMBER).IntValue
		init = &v
	}
	return ast.VarDecl{Name: name, Init: init}
}

func (p *Parser) parseLoad() ast.Stmt {
	p.expect(token.LOAD)
	dest := ast.Register{Name: p.expect(token.REGISTER).Value}
	p.expect(token.COMMA)
	src := p.parseOperand("register, identifier or number")
	return ast.Load{Dest: dest, Src: src}
}

func (p *Parser) parseSet() ast.Stmt {
	p.expect(token.SET)
	dest := ast.Identifier{Name: p.expect(token.IDENTIFIER).Value}
	p.expect(token.COMMA)
	src := p.parseRegisterOrImmediate()
	return ast.Set{Dest: dest, Src: src}
}

func (p *Parser) parseMove() ast.Stmt {
	p.expect(token.MOVE)
	dest := ast.Register{Name: p.expect(token.REGISTER).Value}
	p.expect(token.COMMA)
	src := ast.Register{Name: p.expect(token.REGISTER).Value}
	return ast.Move{Dest: dest, Src: src}
}

var binaryOpKinds = map[token.Kind]ast.BinaryOpKind{
	token.ADD: ast.OpADD, token.SUB: ast.OpSUB, token.MUL: ast.OpMUL, token.DIV: ast.OpDIV,
	token.AND: ast.OpAND, token.OR: ast.OpOR, token.XOR: ast.OpXOR,
}

func (p *Parser) parseBinaryOp() ast.Stmt {
	op := binaryOpKinds[p.current().Kind]
	p.advance()

	dest := ast.Register{Name: p.expect(token.REGISTER).Value}
	p.expect(token.COMMA)
	left := ast.Register{Name: p.expect(token.REGISTER).Value}
	p.expect(token.COMMA)
	right := p.parseRegisterOrImmediate()

	return ast.BinaryOp{Op: op, Dest: dest, Left: left, Right: right}
}

var unaryOpKinds = map[token.Kind]ast.UnaryOpKind{
	token.INC: ast.OpINC, token.DEC: ast.OpDEC,
}

func (p *Parser) parseUnaryOp() ast.Stmt {
	op := unaryOpKinds[p.current().Kind]
	p.advance()

	tok := p.current()
	var operand ast.Operand
	switch tok.Kind {
	case token.REGISTER:
		operand = ast.Register{Name: p.expect(token.REGISTER).Value}
	case token.IDENTIFIER:
		operand = ast.Identifier{Name: p.expect(token.IDENTIFIER).Value}
	default:
		p.fail(tok, "expected register or identifier")
	}
	return ast.UnaryOp{Op: op, Operand: operand}
}

func (p *Parser) parseNot() ast.Stmt {
	p.expect(token.NOT)
	reg := ast.Register{Name: p.expect(token.REGISTER).Value}
	return ast.UnaryOp{Op: ast.OpNOT, Operand: reg}
}

var shiftOpKinds = map[token.Kind]ast.ShiftOpKind{
	token.SHL: ast.OpSHL, token.SHR: ast.OpSHR,
}

func (p *Parser) parseShift() ast.Stmt {
	op := shiftOpKinds[p.current().Kind]
	p.advance()

	dest := ast.Register{Name: p.expect(token.REGISTER).Value}
	p.expect(token.COMMA)
	src := ast.Register{Name: p.expect(token.REGISTER).Value}
	p.expect(token.COMMA)
	count := ast.Immediate{Value: p.expect(token.NUMBER).IntValue}

	return ast.ShiftOp{Op: op, Dest: dest, Src: src, Count: count}
}

func (p *Parser) parseLabel() ast.Stmt {
	name := p.expect(token.LABEL).Value
	return ast.Label{Name: name}
}

func (p *Parser) parseFunction() ast.Stmt {
	p.expect(token.FUNC)
	name := p.expect(token.IDENTIFIER).Value
	p.skipNewlines()

	body := p.parseBlock(token.ENDFUNC)
	p.expect(token.ENDFUNC)
	return ast.Function{Name: name, Body: body}
}

func (p *Parser) parseCall() ast.Stmt {
	p.expect(token.CALL)
	name := p.expect(token.IDENTIFIER).Value
	return ast.Call{Name: name}
}

func (p *Parser) parseReturn() ast.Stmt {
	p.expect(token.RET)
	if p.current().Kind == token.REGISTER {
		reg := ast.Register{Name: p.expect(token.REGISTER).Value}
		return ast.Return{Value: &reg}
	}
	return ast.Return{}
}

func (p *Parser) parseLoop() ast.Stmt {
	p.expect(token.LOOP)
	v := p.expect(token.IDENTIFIER).Value
	p.expect(token.COMMA)
	limit := p.expect(token.NUMBER).IntValue
	p.skipNewlines()

	body := p.parseBlock(token.ENDLOOP)
	p.expect(token.ENDLOOP)
	return ast.Loop{Var: v, Limit: limit, Body: body}
}

func (p *Parser) parseWhile() ast.Stmt {
	p.expect(token.WHILE)
	cond := p.parseCondition()
	p.skipNewlines()

	body := p.parseBlock(token.ENDWHILE)
	p.expect(token.ENDWHILE)
	return ast.While{Cond: cond, Body: body}
}

func (p *Parser) parseFor() ast.Stmt {
	p.expect(token.FOR)
	v := p.expect(token.IDENTIFIER).Value
	p.expect(token.FROM)
	start := p.expect(token.NUMBER).IntValue
	p.expect(token.TO)
	end := p.expect(token.NUMBER).IntValue

	step := 1
	if p.current().Kind == token.STEP {
		p.advance()
		step = p.expect(token.NUMBER).IntValue
	}
	p.skipNewlines()

	body := p.parseBlock(token.ENDFOR)
	p.expect(token.ENDFOR)
	return ast.For{Var: v, Start: start, End: end, Step: step, Body: body}
}

func (p *Parser) parseRepeat() ast.Stmt {
	p.expect(token.REPEAT)
	p.skipNewlines()

	body := p.parseBlock(token.UNTIL)
	p.expect(token.UNTIL)
	cond := p.parseCondition()

	return ast.Repeat{Body: body, Cond: cond}
}

func (p *Parser) parseIf() ast.Stmt {
	p.expect(token.IF)
	cond := p.parseCondition()
	p.skipNewlines()

	thenBody := p.parseBlockUntilAny(token.ELSE, token.ENDIF)

	var elseBody []ast.Stmt
	if p.current().Kind == token.ELSE {
		p.advance()
		p.skipNewlines()
		elseBody = p.parseBlock(token.ENDIF)
	}

	p.expect(token.ENDIF)
	return ast.If{Cond: cond, Then: thenBody, Else: elseBody}
}

func (p *Parser) parsePush() ast.Stmt {
	p.expect(token.PUSH)
	reg := ast.Register{Name: p.expect(token.REGISTER).Value}
	return ast.Push{Reg: reg}
}

func (p *Parser) parsePop() ast.Stmt {
	p.expect(token.POP)
	reg := ast.Register{Name: p.expect(token.REGISTER).Value}
	return ast.Pop{Reg: reg}
}

func (p *Parser) parsePrint() ast.Stmt {
	p.expect(token.PRINT)
	return ast.Print{Value: p.parseOperand("register, identifier or number")}
}

func (p *Parser) parseInput() ast.Stmt {
	p.expect(token.INPUT)
	tok := p.current()
	var dest ast.Operand
	switch tok.Kind {
	case token.REGISTER:
		dest = ast.Register{Name: p.expect(token.REGISTER).Value}
	case token.IDENTIFIER:
		dest = ast.Identifier{Name: p.expect(token.IDENTIFIER).Value}
	default:
		p.fail(tok, "expected register or identifier")
	}
	return ast.Input{Dest: dest}
}

// parseBlock consumes statements (skipping newlines between them) until the
// current token is `terminator`, which is left unconsumed.
func (p *Parser) parseBlock(terminator token.Kind) []ast.Stmt {
	return p.parseBlockUntilAny(terminator)
}

func (p *Parser) parseBlockUntilAny(terminators ...token.Kind) []ast.Stmt {
	var body []ast.Stmt
	for !p.isOneOf(terminators...) {
		if s := p.parseStatement(); s != nil {
			body = append(body, s)
		}
		p.skipNewlines()
	}
	return body
}

func (p *Parser) isOneOf(kinds ...token.Kind) bool {
	cur := p.current().Kind
	for _, k := range kinds {
		if cur == k {
			return true
		}
	}
	return false
}

var compareOps = map[token.Kind]ast.CompareOp{
	token.EQ: ast.CmpEQ, token.NEQ: ast.CmpNEQ,
	token.GT: ast.CmpGT, token.LT: ast.CmpLT,
	token.GTE: ast.CmpGTE, token.LTE: ast.CmpLTE,
}

// parseCondition parses "operand cmpop operand" (spec §4.3).
func (p *Parser) parseCondition() ast.Condition {
	left := p.parseOperand("register, identifier or number")

	opTok := p.current()
	op, ok := compareOps[opTok.Kind]
	if !ok {
		p.fail(opTok, "expected comparison operator")
	}
	p.advance()

	right := p.parseOperand("register, identifier or number")
	return ast.Condition{Left: left, Op: op, Right: right}
}

// parseOperand accepts any of Register, Identifier, Immediate.
func (p *Parser) parseOperand(expected string) ast.Operand {
	tok := p.current()
	switch tok.Kind {
	case token.REGISTER:
		p.advance()
		return ast.Register{Name: tok.Value}
	case token.IDENTIFIER:
		p.advance()
		return ast.Identifier{Name: tok.Value}
	case token.NUMBER:
		p.advance()
		return ast.Immediate{Value: tok.IntValue}
	default:
		p.fail(tok, "expected "+expected)
		return nil
	}
}

// parseRegisterOrImmediate accepts Register or Immediate only (used by SET
// and the third operand of binary ops, per spec §4.3's grammar table).
func (p *Parser) parseRegisterOrImmediate() ast.Operand {
	tok := p.current()
	switch tok.Kind {
	case token.REGISTER:
		p.advance()
		return ast.Register{Name: tok.Value}
	case token.NUMBER:
		p.advance()
		return ast.Immediate{Value: tok.IntValue}
	default:
		p.fail(tok, "expected register or number")
		return nil
	}
}
