package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop the entire knowledge-base corpus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetForce {
			return fmt.Errorf("reset drops the whole corpus; re-run with --force to confirm")
		}

		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.engine.Reset(ctx); err != nil {
			app.renderer.RenderError(err)
			return err
		}
		if err := app.persist(); err != nil {
			return fmt.Errorf("failed to persist vector index: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Corpus reset.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "confirm dropping the corpus")
	rootCmd.AddCommand(resetCmd)
}
