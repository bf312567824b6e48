package cmd

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchTopK      int
	searchThreshold float64
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the knowledge base",
	Long: `Search runs the full retrieval pipeline for one query and prints the
ranked passages. An empty result means no passage cleared the confidence
gate; the conversation should be escalated to a human agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		query := strings.Join(args, " ")
		result, err := app.engine.Search(ctx, query, searchTopK, searchThreshold)
		if err != nil {
			app.renderer.RenderError(err)
			return err
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		app.renderer.RenderResult(query, result)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "maximum results (0 = configured default)")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", 0, "minimum fused score (0 = configured default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "emit the raw result as JSON")
	rootCmd.AddCommand(searchCmd)
}
