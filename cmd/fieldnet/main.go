// Command fieldnet compiles, evaluates, and traces typed reactive field
// scenes.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fieldnet/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
