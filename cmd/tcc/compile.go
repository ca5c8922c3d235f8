package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinycompiled/tc/compiler"
)

// newCompileCmd implements "compile <in> [out]" (spec §6): read TC
// source, emit NASM text either to stdout or to the given output path.
func newCompileCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <in> [out]",
		Short: "Compile a TinyCompiled source file to NASM text",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			nasm, err := compileSource(string(source), flags)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				return os.WriteFile(args[1], []byte(nasm), 0o644)
			}
			fmt.Fprint(cmd.OutOrStdout(), nasm)
			return nil
		},
	}
}

func compileSource(source string, flags *globalFlags) (string, error) {
	nasm, err := compiler.Compile(source, compiler.WithDebug(flags.debug))
	if err != nil {
		return "", fmt.Errorf("compile error: %w", err)
	}
	return nasm, nil
}
