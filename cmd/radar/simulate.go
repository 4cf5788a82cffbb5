package main

import (
	"competitor-radar/internal/app"
	"competitor-radar/internal/config"

	"github.com/spf13/cobra"
)

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run two monitoring cycles over in-memory stores and a static provider",
		Long: `Seeds one subscription with three nearby competitors, runs a cycle, moves two
competitors, advances the clock by one monitoring interval and runs again.
No database, cache or provider credentials are needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				cfg = config.DefaultConfig()
			}

			report, err := app.Simulate(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}
