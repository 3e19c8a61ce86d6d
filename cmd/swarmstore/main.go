// Package main is the entry point for the swarmstore CLI.
package main

import (
	"os"

	"github.com/swarmstore/swarmstore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
