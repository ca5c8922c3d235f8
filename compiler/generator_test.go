package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinycompiled/tc/ast"
)

func generate(t *testing.T, prog *ast.Program) string {
	t.Helper()
	g := newGenerator()
	return g.generate(prog)
}

// TestVarDeclWithInitGoesToData checks initialised variables land in
// .data with a "dq" directive, uninitialised ones in .bss with "resq".
func TestVarDeclWithInitGoesToData(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.VarDecl{Name: "x", Init: intPtr(7)},
		ast.Halt{},
	}})
	assert.Contains(t, out, "section .data")
	assert.Contains(t, out, "x dq 7")
}

func TestVarDeclWithoutInitGoesToBss(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.VarDecl{Name: "y"},
		ast.Halt{},
	}})
	assert.Contains(t, out, "section .bss")
	assert.Contains(t, out, "y resq 1")
}

// TestRegisterMapping confirms the fixed virtual-to-physical mapping
// (spec §4.4).
func TestRegisterMapping(t *testing.T) {
	tests := []struct {
		reg      string
		physical string
	}{
		{"R1", "rax"}, {"R2", "rbx"}, {"R3", "rcx"}, {"R4", "rdx"},
		{"R5", "rsi"}, {"R6", "rdi"}, {"R7", "r8"}, {"R8", "r9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.physical, physicalReg(tt.reg))
	}
	// Anything outside R1..R8 passes through unchanged.
	assert.Equal(t, "r10", physicalReg("r10"))
}

func TestLoadImmediate(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.Load{Dest: ast.Register{Name: "R1"}, Src: ast.Immediate{Value: 26}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "mov rax, 26")
}

func TestSetAlwaysUsesQwordPrefix(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.VarDecl{Name: "x"},
		ast.Set{Dest: ast.Identifier{Name: "x"}, Src: ast.Immediate{Value: 5}},
		ast.Set{Dest: ast.Identifier{Name: "x"}, Src: ast.Register{Name: "R1"}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "mov qword [x], 5")
	assert.Contains(t, out, "mov qword [x], rax")
}

func TestBinaryOpSkipsRedundantMove(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.BinaryOp{Op: ast.OpADD, Dest: ast.Register{Name: "R1"}, Left: ast.Register{Name: "R1"}, Right: ast.Register{Name: "R2"}},
		ast.Halt{},
	}})
	assert.NotContains(t, out, "mov rax, rax")
	assert.Contains(t, out, "add rax, rbx")
}

func TestBinaryOpMovesWhenDestDiffersFromLeft(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.BinaryOp{Op: ast.OpMUL, Dest: ast.Register{Name: "R1"}, Left: ast.Register{Name: "R2"}, Right: ast.Register{Name: "R3"}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "mov rax, rbx")
	assert.Contains(t, out, "imul rax, rcx")
}

// TestDivProtocol exercises the full save/restore dance (spec §4.4).
func TestDivProtocol(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.BinaryOp{Op: ast.OpDIV, Dest: ast.Register{Name: "R3"}, Left: ast.Register{Name: "R1"}, Right: ast.Register{Name: "R2"}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "push rdx")
	assert.Contains(t, out, "push rax")
	assert.Contains(t, out, "xor rdx, rdx")
	assert.Contains(t, out, "div rbx")
	assert.Contains(t, out, "mov rcx, rax")
	assert.Contains(t, out, "pop rax")
	assert.Contains(t, out, "pop rdx")
}

func TestDivByImmediateUsesScratchRegister(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.BinaryOp{Op: ast.OpDIV, Dest: ast.Register{Name: "R1"}, Left: ast.Register{Name: "R1"}, Right: ast.Immediate{Value: 4}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "mov r10, 4")
	assert.Contains(t, out, "div r10")
}

// TestLabelCountersAreMonotonicAndPaired checks two If statements never
// reuse a label suffix (spec §8).
func TestLabelCountersAreMonotonicAndPaired(t *testing.T) {
	cond := ast.Condition{Left: ast.Register{Name: "R1"}, Op: ast.CmpEQ, Right: ast.Immediate{Value: 1}}
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.If{Cond: cond, Then: []ast.Stmt{ast.Nop{}}},
		ast.If{Cond: cond, Then: []ast.Stmt{ast.Nop{}}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "else_0:")
	assert.Contains(t, out, "else_1:")
	assert.NotContains(t, out, "else_2:")
}

func TestIfConditionUsesInvertedJump(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.If{Cond: ast.Condition{Left: ast.Register{Name: "R1"}, Op: ast.CmpEQ, Right: ast.Immediate{Value: 10}},
			Then: []ast.Stmt{ast.Nop{}}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "cmp r10, r11")
	assert.Contains(t, out, "jne else_0")
}

func TestForAutoDeclaresVariable(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.For{Var: "i", Start: 1, End: 3, Step: 1, Body: []ast.Stmt{ast.Print{Value: ast.Identifier{Name: "i"}}}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "i resq 1")
	assert.Contains(t, out, "mov qword [i], 1")
	assert.Contains(t, out, "jg for_end_0")
}

func TestForWithStepUsesAdd(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.For{Var: "i", Start: 0, End: 10, Step: 2, Body: nil},
		ast.Halt{},
	}})
	assert.Contains(t, out, "add qword [i], 2")
}

func TestPrintAndInputTriggerHelpers(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.VarDecl{Name: "n"},
		ast.Print{Value: ast.Identifier{Name: "n"}},
		ast.Input{Dest: ast.Identifier{Name: "n"}},
		ast.Halt{},
	}})
	assert.Contains(t, out, "print_int:")
	assert.Contains(t, out, "read_int:")
	assert.Contains(t, out, "call print_int")
	assert.Contains(t, out, "call read_int")
}

func TestHelpersAbsentWhenUnused(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{ast.Halt{}}})
	assert.NotContains(t, out, "print_int:")
	assert.NotContains(t, out, "read_int:")
}

// TestFunctionQueuedAfterMainBody checks FUNC bodies are emitted after
// the main program body, exactly once, and that a matching CALL resolves
// to a same-named label (spec §8).
func TestFunctionQueuedAfterMainBody(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.Function{Name: "f", Body: []ast.Stmt{
			ast.Load{Dest: ast.Register{Name: "R1"}, Src: ast.Immediate{Value: 99}},
			ast.Return{Value: &ast.Register{Name: "R1"}},
		}},
		ast.Call{Name: "f"},
		ast.Print{Value: ast.Register{Name: "R1"}},
		ast.Halt{},
	}})

	callIdx := indexOf(out, "call f")
	labelIdx := indexOf(out, "f:")
	exitIdx := indexOf(out, "mov rax, 60")
	require.True(t, callIdx >= 0 && labelIdx >= 0 && exitIdx >= 0)
	assert.Greater(t, labelIdx, exitIdx, "function body must be emitted after the main body, which ends in HALT's exit syscall")
	assert.Equal(t, 1, countOccurrences(out, "f:\n"))
}

// TestNestedFunctionIsHoisted checks a FUNC nested inside another FUNC is
// hoisted to top level (spec §9 point 4).
func TestNestedFunctionIsHoisted(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.Function{Name: "outer", Body: []ast.Stmt{
			ast.Function{Name: "inner", Body: []ast.Stmt{ast.Return{}}},
			ast.Return{},
		}},
		ast.Call{Name: "outer"},
		ast.Halt{},
	}})
	assert.Equal(t, 1, countOccurrences(out, "outer:\n"))
	assert.Equal(t, 1, countOccurrences(out, "inner:\n"))
}

// TestRepeatLoopsWhileFalseExitsWhenTrue pins down the polarity decision
// recorded in DESIGN.md point 3.
func TestRepeatLoopsWhileFalseExitsWhenTrue(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{
		ast.Repeat{
			Body: []ast.Stmt{ast.Nop{}},
			Cond: ast.Condition{Left: ast.Register{Name: "R1"}, Op: ast.CmpEQ, Right: ast.Immediate{Value: 10}},
		},
		ast.Halt{},
	}})
	assert.Contains(t, out, "repeat_start_0:")
	// EQ's false-branch mnemonic is jne; jumping back to the start label
	// when not-equal means the loop continues while the condition is
	// false and exits the moment it becomes true.
	assert.Contains(t, out, "jne repeat_start_0")
}

func TestOnlyOneGlobalStartAndLabel(t *testing.T) {
	out := generate(t, &ast.Program{Statements: []ast.Stmt{ast.Halt{}}})
	assert.Equal(t, 1, countOccurrences(out, "global _start"))
	assert.Equal(t, 1, countOccurrences(out, "_start:\n"))
}

func intPtr(v int) *int { return &v }

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
