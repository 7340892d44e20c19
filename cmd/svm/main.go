// Command svm compiles, runs and manages component scan apps.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/svm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
