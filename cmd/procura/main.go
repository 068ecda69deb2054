// Command procura reconciles procurement documents into process records.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/procura/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
