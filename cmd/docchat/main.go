// Command docchat answers questions about an uploaded document library. It
// serves the chat and administration API and offers CLI commands for
// ingestion, one-off questions and user management.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
