// generator.go contains the code generator: a direct syntax-directed walk
// of an ast.Program that emits NASM x86-64 text, split into accumulated
// .data/.bss/.text buffers concatenated at the end.

package compiler

import (
	"fmt"
	"strings"

	"github.com/tinycompiled/tc/ast"
	"github.com/tinycompiled/tc/queue"
)

// registerMap is the fixed virtual-to-physical register mapping (spec
// §4.4). Any name absent from this table passes through unchanged, which
// is how r10-r15 remain usable as generator scratch space.
var registerMap = map[string]string{
	"R1": "rax", "R2": "rbx", "R3": "rcx", "R4": "rdx",
	"R5": "rsi", "R6": "rdi", "R7": "r8", "R8": "r9",
}

func physicalReg(name string) string {
	if p, ok := registerMap[name]; ok {
		return p
	}
	return name
}

// generator holds all state accumulated across one Program → NASM walk.
// It is used exactly once; create a fresh one per Compile call.
type generator struct {
	data strings.Builder
	bss  strings.Builder

	labelCounter int
	variables    map[string]bool
	funcQueue    *queue.Queue[ast.Function]

	needsPrintInt bool
	needsReadInt  bool
}

func newGenerator() *generator {
	return &generator{
		variables: make(map[string]bool),
		funcQueue: queue.New[ast.Function](),
	}
}

// nextLabel reserves and returns the next value of the single label
// counter shared across all structured constructs, guaranteeing no two
// constructs in one compile reuse a label suffix (spec §4.4, §8).
func (g *generator) nextLabel() int {
	n := g.labelCounter
	g.labelCounter++
	return n
}

// ensureVariable auto-declares name in .bss the first time it's seen,
// used by FOR and LOOP whose counter variable need not have an explicit
// VAR statement (spec §4.4).
func (g *generator) ensureVariable(name string) {
	if g.variables[name] {
		return
	}
	g.variables[name] = true
	fmt.Fprintf(&g.bss, "  %s resq 1\n", name)
}

// generate walks the whole program and returns the final NASM text.
func (g *generator) generate(prog *ast.Program) string {
	mainBody := g.genStatements(prog.Statements)
	functionsText := g.drainFunctions()

	var text strings.Builder
	text.WriteString("section .text\n")
	text.WriteString("global _start\n")
	text.WriteString("_start:\n")
	text.WriteString("    jmp main_code\n")
	text.WriteString("main_code:\n")
	text.WriteString(mainBody)
	text.WriteString(functionsText)
	text.WriteString("    mov rax, 60\n")
	text.WriteString("    mov rdi, 0\n")
	text.WriteString("    syscall\n")

	if g.needsPrintInt {
		text.WriteString(printIntHelper)
	}
	if g.needsReadInt {
		text.WriteString(readIntHelper)
	}

	var out strings.Builder
	if g.needsPrintInt {
		fmt.Fprintf(&g.data, "  newline db 10\n")
		fmt.Fprintf(&g.data, "  digit_buffer times 20 db 0\n")
	}
	if g.needsReadInt {
		fmt.Fprintf(&g.bss, "  input_buffer resb 32\n")
	}

	if g.data.Len() > 0 {
		out.WriteString("section .data\n")
		out.WriteString(g.data.String())
		out.WriteString("\n")
	}
	if g.bss.Len() > 0 {
		out.WriteString("section .bss\n")
		out.WriteString(g.bss.String())
		out.WriteString("\n")
	}
	out.WriteString(text.String())

	return out.String()
}

// drainFunctions pulls every queued Function off the (flat) queue and
// emits it as a label followed by its lowered body. Nested FUNC
// statements land in the same flat queue as top-level ones, which is why
// they come out hoisted to top level (spec §9 point 4).
func (g *generator) drainFunctions() string {
	var b strings.Builder
	for !g.funcQueue.Empty() {
		fn, err := g.funcQueue.Dequeue()
		if err != nil {
			break
		}
		fmt.Fprintf(&b, "%s:\n", fn.Name)
		b.WriteString(g.genStatements(fn.Body))
	}
	return b.String()
}

func (g *generator) genStatements(stmts []ast.Stmt) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(g.genStmt(s))
	}
	return b.String()
}

// genStmt dispatches on the concrete statement type. The switch has a case
// for every variant ast.Stmt defines (spec §9's "tagged variants" note);
// Go does not check this, and any other Stmt reaches the default case,
// which emits nothing.
func (g *generator) genStmt(stmt ast.Stmt) string {
	switch s := stmt.(type) {
	case ast.VarDecl:
		return g.genVarDecl(s)
	case ast.Load:
		return g.genLoad(s)
	case ast.Set:
		return g.genSet(s)
	case ast.Move:
		return g.genMove(s)
	case ast.BinaryOp:
		return g.genBinaryOp(s)
	case ast.UnaryOp:
		return g.genUnaryOp(s)
	case ast.ShiftOp:
		return g.genShiftOp(s)
	case ast.Label:
		return fmt.Sprintf("%s:\n", s.Name)
	case ast.Function:
		g.funcQueue.Enqueue(s)
		return ""
	case ast.Call:
		return fmt.Sprintf("    call %s\n", s.Name)
	case ast.Return:
		return g.genReturn(s)
	case ast.If:
		return g.genIf(s)
	case ast.While:
		return g.genWhile(s)
	case ast.For:
		return g.genFor(s)
	case ast.Loop:
		return g.genLoop(s)
	case ast.Repeat:
		return g.genRepeat(s)
	case ast.Push:
		return fmt.Sprintf("    push %s\n", physicalReg(s.Reg.Name))
	case ast.Pop:
		return fmt.Sprintf("    pop %s\n", physicalReg(s.Reg.Name))
	case ast.Print:
		return g.genPrint(s)
	case ast.Input:
		return g.genInput(s)
	case ast.Halt:
		return "    mov rax, 60\n    mov rdi, 0\n    syscall\n"
	case ast.Nop:
		return "    nop\n"
	default:
		// Unknown variants are ignored silently (spec §4.4's "Error
		// surface": the generator assumes a well-formed tree).
		return ""
	}
}

func operandText(op ast.Operand) string {
	switch v := op.(type) {
	case ast.Register:
		return physicalReg(v.Name)
	case ast.Identifier:
		return "[" + v.Name + "]"
	case ast.Immediate:
		return fmt.Sprintf("%d", v.Value)
	}
	return ""
}

func (g *generator) genVarDecl(v ast.VarDecl) string {
	g.variables[v.Name] = true
	if v.Init != nil {
		fmt.Fprintf(&g.data, "  %s dq %d\n", v.Name, *v.Init)
	} else {
		fmt.Fprintf(&g.bss, "  %s resq 1\n", v.Name)
	}
	return ""
}

func (g *generator) genLoad(l ast.Load) string {
	return fmt.Sprintf("    mov %s, %s\n", physicalReg(l.Dest.Name), operandText(l.Src))
}

// genSet always uses the qword memory-size prefix, for both the immediate
// and register source forms (spec §4.4's "Set" contract).
func (g *generator) genSet(s ast.Set) string {
	return fmt.Sprintf("    mov qword [%s], %s\n", s.Dest.Name, operandText(s.Src))
}

func (g *generator) genMove(m ast.Move) string {
	return fmt.Sprintf("    mov %s, %s\n", physicalReg(m.Dest.Name), physicalReg(m.Src.Name))
}

var binaryMnemonics = map[ast.BinaryOpKind]string{
	ast.OpADD: "add", ast.OpSUB: "sub", ast.OpMUL: "imul",
	ast.OpAND: "and", ast.OpOR: "or", ast.OpXOR: "xor",
}

func (g *generator) genBinaryOp(op ast.BinaryOp) string {
	if op.Op == ast.OpDIV {
		return g.genDiv(op)
	}

	destR := physicalReg(op.Dest.Name)
	leftR := physicalReg(op.Left.Name)

	var b strings.Builder
	if destR != leftR {
		fmt.Fprintf(&b, "    mov %s, %s\n", destR, leftR)
	}
	fmt.Fprintf(&b, "    %s %s, %s\n", binaryMnemonics[op.Op], destR, operandText(op.Right))
	return b.String()
}

// genDiv follows the x86 div protocol step by step (spec §4.4): rax/rdx
// are clobbered by the instruction, so both are saved and restored around
// it unless the destination register happens to already be one of them.
func (g *generator) genDiv(op ast.BinaryOp) string {
	destR := physicalReg(op.Dest.Name)
	leftR := physicalReg(op.Left.Name)

	savedRdx := destR != "rdx"
	savedRax := destR != "rax"

	var b strings.Builder
	if savedRdx {
		b.WriteString("    push rdx\n")
	}
	if savedRax {
		b.WriteString("    push rax\n")
	}
	if leftR != "rax" {
		fmt.Fprintf(&b, "    mov rax, %s\n", leftR)
	}
	b.WriteString("    xor rdx, rdx\n")

	switch r := op.Right.(type) {
	case ast.Immediate:
		fmt.Fprintf(&b, "    mov r10, %d\n", r.Value)
		b.WriteString("    div r10\n")
	case ast.Register:
		fmt.Fprintf(&b, "    div %s\n", physicalReg(r.Name))
	}

	if destR != "rax" {
		fmt.Fprintf(&b, "    mov %s, rax\n", destR)
	}
	if savedRax {
		b.WriteString("    pop rax\n")
	}
	if savedRdx {
		b.WriteString("    pop rdx\n")
	}
	return b.String()
}

var unaryMnemonics = map[ast.UnaryOpKind]string{
	ast.OpINC: "inc", ast.OpDEC: "dec", ast.OpNOT: "not",
}

func (g *generator) genUnaryOp(u ast.UnaryOp) string {
	var target string
	switch v := u.Operand.(type) {
	case ast.Register:
		target = physicalReg(v.Name)
	case ast.Identifier:
		target = "qword [" + v.Name + "]"
	}
	return fmt.Sprintf("    %s %s\n", unaryMnemonics[u.Op], target)
}

var shiftMnemonics = map[ast.ShiftOpKind]string{
	ast.OpSHL: "shl", ast.OpSHR: "shr",
}

func (g *generator) genShiftOp(s ast.ShiftOp) string {
	destR := physicalReg(s.Dest.Name)
	srcR := physicalReg(s.Src.Name)

	var b strings.Builder
	if destR != srcR {
		fmt.Fprintf(&b, "    mov %s, %s\n", destR, srcR)
	}
	fmt.Fprintf(&b, "    %s %s, %d\n", shiftMnemonics[s.Op], destR, s.Count.Value)
	return b.String()
}

func (g *generator) genReturn(r ast.Return) string {
	if r.Value != nil {
		return fmt.Sprintf("    mov rax, %s\n    ret\n", physicalReg(r.Value.Name))
	}
	return "    ret\n"
}

// jumpOnFalse maps each comparison operator to the mnemonic of its
// logical inverse, since the condition primitive always branches on
// false (spec §4.4's "Condition emission").
var jumpOnFalse = map[ast.CompareOp]string{
	ast.CmpEQ: "jne", ast.CmpNEQ: "je",
	ast.CmpGT: "jle", ast.CmpLT: "jge",
	ast.CmpGTE: "jl", ast.CmpLTE: "jg",
}

// emitCondition loads both operands into scratch registers, compares
// them, then emits the inverted jump so control branches to falseLabel
// exactly when the condition does not hold (spec §4.4, §9 "Condition
// emission").
func (g *generator) emitCondition(cond ast.Condition, falseLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "    mov r10, %s\n", operandText(cond.Left))
	fmt.Fprintf(&b, "    mov r11, %s\n", operandText(cond.Right))
	b.WriteString("    cmp r10, r11\n")
	fmt.Fprintf(&b, "    %s %s\n", jumpOnFalse[cond.Op], falseLabel)
	return b.String()
}

func (g *generator) genIf(i ast.If) string {
	n := g.nextLabel()
	elseLabel := fmt.Sprintf("else_%d", n)
	endifLabel := fmt.Sprintf("endif_%d", n)

	var b strings.Builder
	b.WriteString(g.emitCondition(i.Cond, elseLabel))
	b.WriteString(g.genStatements(i.Then))

	if i.Else != nil {
		fmt.Fprintf(&b, "    jmp %s\n", endifLabel)
		fmt.Fprintf(&b, "%s:\n", elseLabel)
		b.WriteString(g.genStatements(i.Else))
		fmt.Fprintf(&b, "%s:\n", endifLabel)
	} else {
		fmt.Fprintf(&b, "%s:\n", elseLabel)
	}
	return b.String()
}

func (g *generator) genWhile(w ast.While) string {
	n := g.nextLabel()
	start := fmt.Sprintf("while_start_%d", n)
	end := fmt.Sprintf("while_end_%d", n)

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", start)
	b.WriteString(g.emitCondition(w.Cond, end))
	b.WriteString(g.genStatements(w.Body))
	fmt.Fprintf(&b, "    jmp %s\n", start)
	fmt.Fprintf(&b, "%s:\n", end)
	return b.String()
}

// genFor implements the inclusive, positive-step counting loop (spec
// §4.4): the loop variable is auto-declared if it has no prior VAR.
func (g *generator) genFor(f ast.For) string {
	g.ensureVariable(f.Var)
	n := g.nextLabel()
	start := fmt.Sprintf("for_start_%d", n)
	end := fmt.Sprintf("for_end_%d", n)

	var b strings.Builder
	fmt.Fprintf(&b, "    mov qword [%s], %d\n", f.Var, f.Start)
	fmt.Fprintf(&b, "%s:\n", start)
	fmt.Fprintf(&b, "    mov r10, [%s]\n", f.Var)
	fmt.Fprintf(&b, "    mov r11, %d\n", f.End)
	b.WriteString("    cmp r10, r11\n")
	fmt.Fprintf(&b, "    jg %s\n", end)
	b.WriteString(g.genStatements(f.Body))
	if f.Step == 1 {
		fmt.Fprintf(&b, "    inc qword [%s]\n", f.Var)
	} else {
		fmt.Fprintf(&b, "    add qword [%s], %d\n", f.Var, f.Step)
	}
	fmt.Fprintf(&b, "    jmp %s\n", start)
	fmt.Fprintf(&b, "%s:\n", end)
	return b.String()
}

// genLoop implements the fixed-count loop driven by an auto-managed
// variable counting 0..limit-1 (spec §4.4).
func (g *generator) genLoop(l ast.Loop) string {
	g.ensureVariable(l.Var)
	n := g.nextLabel()
	start := fmt.Sprintf("loop_start_%d", n)
	end := fmt.Sprintf("loop_end_%d", n)

	var b strings.Builder
	fmt.Fprintf(&b, "    mov qword [%s], 0\n", l.Var)
	fmt.Fprintf(&b, "%s:\n", start)
	fmt.Fprintf(&b, "    mov r10, [%s]\n", l.Var)
	fmt.Fprintf(&b, "    mov r11, %d\n", l.Limit)
	b.WriteString("    cmp r10, r11\n")
	fmt.Fprintf(&b, "    jge %s\n", end)
	b.WriteString(g.genStatements(l.Body))
	fmt.Fprintf(&b, "    inc qword [%s]\n", l.Var)
	fmt.Fprintf(&b, "    jmp %s\n", start)
	fmt.Fprintf(&b, "%s:\n", end)
	return b.String()
}

// genRepeat: the body always runs once before the condition is tested.
// The condition's false-branch target is the loop's own start label, so
// the loop runs again while the condition is false and falls through
// (exits) the moment it first evaluates true — ordinary
// "repeat ... until cond" semantics (see DESIGN.md point 3).
func (g *generator) genRepeat(r ast.Repeat) string {
	n := g.nextLabel()
	start := fmt.Sprintf("repeat_start_%d", n)

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", start)
	b.WriteString(g.genStatements(r.Body))
	b.WriteString(g.emitCondition(r.Cond, start))
	return b.String()
}

func (g *generator) genPrint(p ast.Print) string {
	g.needsPrintInt = true
	return fmt.Sprintf("    mov r15, %s\n    call print_int\n", operandText(p.Value))
}

func (g *generator) genInput(i ast.Input) string {
	g.needsReadInt = true
	var b strings.Builder
	b.WriteString("    call read_int\n")
	switch d := i.Dest.(type) {
	case ast.Register:
		fmt.Fprintf(&b, "    mov %s, r15\n", physicalReg(d.Name))
	case ast.Identifier:
		fmt.Fprintf(&b, "    mov [%s], r15\n", d.Name)
	}
	return b.String()
}

// printIntHelper converts the signed 64-bit integer in r15 to decimal
// ASCII and writes it (with a trailing newline) to stdout via raw
// syscalls, preserving every caller register except r10 (spec §4.4's
// "Runtime helpers").
const printIntHelper = `print_int:
    push rax
    push rbx
    push rcx
    push rdx
    push rsi
    push rdi
    push r11

    mov rbx, digit_buffer
    add rbx, 19
    mov byte [rbx], 10
    dec rbx

    mov rax, r15
    mov rcx, 0
    cmp rax, 0
    jge .convert_loop
    neg rax
    mov rcx, 1

.convert_loop:
    xor rdx, rdx
    mov r10, 10
    div r10
    add rdx, '0'
    mov [rbx], dl
    dec rbx
    test rax, rax
    jnz .convert_loop

    cmp rcx, 0
    je .write_out
    mov byte [rbx], '-'
    dec rbx

.write_out:
    inc rbx
    mov rsi, rbx
    mov rdx, digit_buffer
    add rdx, 20
    sub rdx, rbx

    mov rax, 1
    mov rdi, 1
    syscall

    pop r11
    pop rdi
    pop rsi
    pop rdx
    pop rcx
    pop rbx
    pop rax
    ret
`

// readIntHelper reads up to 32 bytes from stdin and parses a signed
// decimal integer into r15 (spec §4.4's "Runtime helpers").
const readIntHelper = `read_int:
    push rax
    push rdi
    push rsi
    push rdx
    push rcx
    push r10

    mov rax, 0
    mov rdi, 0
    mov rsi, input_buffer
    mov rdx, 32
    syscall

    mov rcx, 0
    mov r10, 0
    mov sil, byte [input_buffer]
    cmp sil, '-'
    jne .digits
    mov r10, 1
    mov rcx, 1

.digits:
    xor r15, r15
    mov rdi, input_buffer

.digit_loop:
    movzx rax, byte [rdi + rcx]
    cmp rax, '0'
    jl .done
    cmp rax, '9'
    jg .done
    sub rax, '0'
    imul r15, r15, 10
    add r15, rax
    inc rcx
    jmp .digit_loop

.done:
    cmp r10, 1
    je .negate
    jmp .restore

.negate:
    neg r15

.restore:
    pop r10
    pop rcx
    pop rdx
    pop rsi
    pop rdi
    pop rax
    ret
`
