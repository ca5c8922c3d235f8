// Command tcc is the driver for the TinyCompiled compiler: it wires the
// compiler package to the filesystem and to the external `nasm`/`ld`
// toolchain (spec §6's "Driver CLI" external collaborator contract).
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
