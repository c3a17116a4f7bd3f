// Package main is the LendScope command-line entry point.
package main

import (
	"os"

	"github.com/lendscope-labs/lendscope/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
