package main

import (
	"github.com/spf13/cobra"
)

// globalFlags holds the persistent flags shared by every subcommand
// (spec §6's driver CLI flags: -v/--verbose, --debug).
type globalFlags struct {
	verbose bool
	debug   bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "tcc",
		Short: "tcc compiles TinyCompiled source into NASM x86-64 assembly",
		Long: `tcc is the command-line driver for the TinyCompiled compiler.

It chains the lexer, parser and code generator to turn a TC source file
into NASM x86-64 Linux assembly text, and can optionally shell out to
nasm and ld to produce and run a native ELF64 executable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "print each external command before running it")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "dump tokens and the syntax tree to stderr before code generation")

	root.AddCommand(newCompileCmd(flags))
	root.AddCommand(newBuildCmd(flags))
	root.AddCommand(newRunCmd(flags))

	return root
}
