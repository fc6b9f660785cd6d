// Command scichat is the entry point for the SciChat paper assistant.
// It provides a CLI interface (via Cobra) and an optional HTTP server with
// a web dashboard for uploading papers and asking questions.
package main

import (
	"fmt"
	"os"

	"github.com/scichat/scichat-go/cmd/scichat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
