package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchScores bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search and print the ranked results",
	Long: `Run a single search turn and print the results, best match first.

The query uses the same alias rules as the palette window:

  palette search "t git"       tabs only
  palette search "h golang"    history only
  palette search docs          all sources`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, orch, _, err := connectOrchestrator(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		turn := orch.Search(cmd.Context(), strings.Join(args, " "))
		if turn.Err != nil {
			return turn.Err
		}
		if len(turn.Results) == 0 {
			fmt.Println("no results")
			return nil
		}

		for _, sr := range turn.Results {
			line := fmt.Sprintf("%s%-4s%s %s", colorCyan, sr.Category, colorReset, sr.Title)
			if sr.Secondary != "" {
				line += fmt.Sprintf("  %s%s%s", colorDim, sr.Secondary, colorReset)
			}
			if searchScores {
				line += fmt.Sprintf("  %s(%.0f)%s", colorDim, sr.Score, colorReset)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchScores, "scores", false, "show relevance scores")
}
