// Package main is the entry point of the pine CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/pine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
