// Package cmd implements the kbsearch CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kbsearch",
	Short: "Knowledge-base retrieval engine for customer-service assistants",
	Long: `kbsearch manages and queries a bank customer-service knowledge base.

It combines semantic vector search with a bounded lexical correction,
gates results by confidence, and returns an explicit low-confidence
signal when no passage is good enough - the cue for escalating the
conversation to a human agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.kbretrieval/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
