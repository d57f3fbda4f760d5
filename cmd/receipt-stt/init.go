package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaz8081/receipt-stt/internal/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default config file",
	Long: `Write the default configuration to ~/.config/receipt-stt/config.yaml.
An existing file is left untouched.`,
	Args: cobra.NoArgs,
	// Runs before any config exists, so skip the root pre-run.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", config.DefaultConfigPath())
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
}
