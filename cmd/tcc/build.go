package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newBuildCmd implements "build <in> <out>" (spec §6): compile to NASM
// text, then invoke `nasm -f elf64` and `ld` via subprocess on temp files
// to produce a native ELF64 executable.
func newBuildCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build <in> <out>",
		Short: "Compile and assemble a TinyCompiled source file into an executable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := buildExecutable(args[0], args[1], flags)
			return err
		},
	}
}

// buildExecutable drives the external nasm/ld toolchain (spec §6's
// driver contract: "the command-line shell, file I/O wrappers... and
// temp-file management for invoking nasm and ld" are out of scope for
// the compiler core itself, but this command is exactly that shell).
func buildExecutable(inPath, outPath string, flags *globalFlags) (string, error) {
	source, err := os.ReadFile(inPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", inPath, err)
	}

	nasm, err := compileSource(string(source), flags)
	if err != nil {
		return "", err
	}

	asmFile, err := os.CreateTemp("", "tcc-*.asm")
	if err != nil {
		return "", fmt.Errorf("creating temp asm file: %w", err)
	}
	defer os.Remove(asmFile.Name())

	if _, err := asmFile.WriteString(nasm); err != nil {
		asmFile.Close()
		return "", fmt.Errorf("writing temp asm file: %w", err)
	}
	if err := asmFile.Close(); err != nil {
		return "", err
	}

	objFile, err := os.CreateTemp("", "tcc-*.o")
	if err != nil {
		return "", fmt.Errorf("creating temp object file: %w", err)
	}
	objFile.Close()
	defer os.Remove(objFile.Name())

	if err := runTool(flags, "nasm", "-f", "elf64", "-o", objFile.Name(), asmFile.Name()); err != nil {
		return "", fmt.Errorf("nasm failed: %w", err)
	}
	if err := runTool(flags, "ld", "-o", outPath, objFile.Name()); err != nil {
		return "", fmt.Errorf("ld failed: %w", err)
	}

	return outPath, nil
}

func runTool(flags *globalFlags, name string, args ...string) error {
	if flags.verbose {
		fmt.Fprintf(os.Stderr, "+ %s %v\n", name, args)
	}
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
