// Package main is the entry point for the ftsindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/ftsindex/cmd/ftsindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
