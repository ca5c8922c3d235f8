// Package compiler contains the core of the TinyCompiled compiler.
//
// In brief we go through a three-step process:
//
//  1. Use the lexer to tokenize the source.
//
//  2. Parse the tokens into a typed syntax tree.
//
//  3. Walk the tree, generating NASM x86-64 text for each statement.
//
// Each stage is pure: every Compile call builds a fresh lexer, parser and
// generator, so no state is left over from a previous call.
package compiler

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tinycompiled/tc/ast"
	"github.com/tinycompiled/tc/lexer"
	"github.com/tinycompiled/tc/parser"
	"github.com/tinycompiled/tc/token"
)

// Option configures a single Compile call.
type Option func(*options)

type options struct {
	debug     bool
	debugSet  bool
	debugSink io.Writer
}

// WithDebug forces the debug flag on or off, overriding the DEBUG
// environment variable (spec §6).
func WithDebug(val bool) Option {
	return func(o *options) {
		o.debug = val
		o.debugSet = true
	}
}

// WithDebugSink redirects the debug dump away from os.Stderr. Intended for
// tests that want to capture it.
func WithDebugSink(w io.Writer) Option {
	return func(o *options) {
		o.debugSink = w
	}
}

func resolveOptions(opts []Option) options {
	o := options{debugSink: os.Stderr}
	for _, apply := range opts {
		apply(&o)
	}
	if !o.debugSet {
		o.debug = envTruthy(os.Getenv("DEBUG"))
	}
	return o
}

func envTruthy(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// Compile runs the full lex → parse → generate pipeline over source,
// returning the emitted NASM text. The debug option (or a truthy DEBUG
// environment variable) writes the token stream and syntax tree to a
// diagnostic sink before code generation; neither ever changes the
// returned string (spec §6).
func Compile(source string, opts ...Option) (string, error) {
	o := resolveOptions(opts)

	toks := lexer.New(source).Tokenize()
	if o.debug {
		dumpTokens(o.debugSink, toks)
	}

	prog, err := parser.Parse(toks)
	if err != nil {
		return "", fmt.Errorf("parse error: %w", err)
	}
	if o.debug {
		dumpProgram(o.debugSink, prog)
	}

	g := newGenerator()
	return g.generate(prog), nil
}

func dumpTokens(w io.Writer, toks []token.Token) {
	fmt.Fprintln(w, "-- tokens --")
	for _, t := range toks {
		fmt.Fprintf(w, "  %s\n", t.String())
	}
}

func dumpProgram(w io.Writer, prog *ast.Program) {
	fmt.Fprintln(w, "-- syntax tree --")
	for _, s := range prog.Statements {
		fmt.Fprintf(w, "  %s\n", s.String())
	}
}
