package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/palette-dev/palette/internal/tui"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the palette window",
	Long: `Open the interactive palette.

Type to search all sources at once. Prefix the query with a command alias
to pin one source:

  t git        search open tabs for "git"
  h golang     search browsing history
  b docs       search bookmarks
  >lock        run a command

Enter runs the selected result's primary action, Esc closes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, orch, cfg, err := connectOrchestrator(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		debounce := time.Duration(cfg.Search.DebounceMs) * time.Millisecond
		return tui.Run(orch, debounce)
	},
}
