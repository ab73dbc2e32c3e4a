// Command lvai is the entry point for the LV-AI lesson visuals pipeline.
// It provides a CLI interface (via Cobra) and an optional HTTP server that
// exposes lesson generation as a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/lektor-ai/lvai-go/cmd/lvai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
