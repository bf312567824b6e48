package cmd

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus and engine status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		stats, err := app.engine.Stats(ctx)
		if err != nil {
			app.renderer.RenderError(err)
			return err
		}

		app.renderer.RenderStats(stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
