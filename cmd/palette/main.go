// Package main is the entry point for the palette CLI.
package main

import (
	"os"

	"github.com/palette-dev/palette/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
