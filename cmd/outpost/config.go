package main

import (
	"fmt"

	"github.com/outpost-run/outpost-go/pkg/config"
	"github.com/spf13/cobra"
)

var (
	forceInit bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the configuration",
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg.Exist() && !forceInit {
				return fmt.Errorf("config file %s already exists", cfg.ConfigPath())
			}
			if err := cfg.WriteConfig(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.ConfigPath())
			return nil
		},
	}

	configEnvCmd = &cobra.Command{
		Use:   "env",
		Short: "Print the settings as environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, e := range config.FromContext(cmd.Context()).Environ() {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
)

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(
		configInitCmd,
		configEnvCmd,
	)
}
