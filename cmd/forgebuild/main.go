// Command forgebuild is the entry point for the build orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/forgebuild/forgebuild/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
