// Package main provides the lineagekit command.
package main

import (
	"os"

	"github.com/leapstack-labs/lineagekit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
