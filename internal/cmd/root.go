// Package cmd wires the palette CLI: opening the palette window, one-shot
// searches, daemon control, and configuration.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "palette",
	Short: "a command palette for tabs, history, bookmarks, and commands",
	Long: `palette - one search box over everything
  - type to search tabs, history, and bookmarks at once
  - prefix with an alias (t, h, b) to pin one source
  - prefix with > to run commands`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
