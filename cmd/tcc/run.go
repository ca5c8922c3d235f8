package main

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newRunCmd implements "run <in> [--output exe]" (spec §6): build the
// source, then execute the resulting binary, propagating its exit code.
func newRunCmd(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "run <in>",
		Short: "Compile, assemble and execute a TinyCompiled source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exe := output
			if exe == "" {
				tmp, err := os.CreateTemp("", "tcc-*.out")
				if err != nil {
					return err
				}
				tmp.Close()
				defer os.Remove(tmp.Name())
				exe = tmp.Name()
			}

			if _, err := buildExecutable(args[0], exe, flags); err != nil {
				return err
			}

			if err := os.Chmod(exe, 0o755); err != nil {
				return err
			}

			run := exec.Command(exe)
			run.Stdin = os.Stdin
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			return run.Run()
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "path to write the built executable to (default: a temp file)")
	return cmd
}
