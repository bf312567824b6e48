package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/finova/kbretrieval/configs"
	"github.com/finova/kbretrieval/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the engine configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config and policy files",
	Long: `Creates ~/.kbretrieval/config.yaml and ~/.kbretrieval/policy.yaml from
the embedded templates. Existing files are left untouched.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := filepath.Dir(config.DefaultConfigPath())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		wrote, err := writeIfAbsent(config.DefaultConfigPath(), configs.DefaultConfigTemplate)
		if err != nil {
			return err
		}
		report(cmd, config.DefaultConfigPath(), wrote)

		policyPath := filepath.Join(dir, "policy.yaml")
		wrote, err = writeIfAbsent(policyPath, configs.DefaultPolicyTemplate)
		if err != nil {
			return err
		}
		report(cmd, policyPath, wrote)

		return nil
	},
}

func writeIfAbsent(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	return true, os.WriteFile(path, []byte(content), 0o644)
}

func report(cmd *cobra.Command, path string, wrote bool) {
	if wrote {
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "kept existing %s\n", path)
	}
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
