package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/wiki-link/internal/config"
)

func newConfigCmd(configFile *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration wiki-link would run with, after applying flags,
WIKILINK_* environment variables, and the --config file.

The output can be saved and passed back with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := config.Load(cmd.Flags(), *configFile)
			if err != nil {
				return err
			}
			return cfg.Write(cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "Output format (toml or yaml)")
	return cmd
}
