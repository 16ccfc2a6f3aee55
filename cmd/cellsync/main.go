// Command cellsync inspects and edits synchronized cell documents.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cellsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
