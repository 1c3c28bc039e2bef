// Matflow - terminal client for the Matflow dataset server.
//
// Build with: go build -ldflags "-X github.com/matflow/matflow-cli/internal/version.Version=..." ./cmd/matflow
package main

import (
	"os"

	"github.com/matflow/matflow-cli/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
