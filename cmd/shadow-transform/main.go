// Command shadow-transform rewrites plugin bytecode to run inside a host
// container.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/shadowtransform/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Command failures have already been reported by the command;
		// anything else is a usage error from cobra.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}
}
