package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"competitor-radar/internal/app"
	"competitor-radar/internal/cleanup"
	"competitor-radar/internal/models"

	"github.com/spf13/cobra"
)

// withApp loads config, wires the engine against real backends and runs fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every due subscription once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary, err := a.Scheduler.RunOnce(ctx, models.RunTriggerCLI)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [subscription]",
		Short: "Scan the competitors of one subscription and raise alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noAlerts, _ := cmd.Flags().GetBool("no-alerts")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				batch, err := a.Tracker.ScanAll(ctx, args[0])
				if err != nil {
					return err
				}

				out := map[string]interface{}{
					"subscription_id": args[0],
					"snapshots":       batch.Snapshots(),
					"failures":        batch.Failures(),
				}
				if !noAlerts {
					alerts, err := a.Generator.GenerateFromScan(ctx, args[0], batch.Results)
					if err != nil {
						return err
					}
					out["alerts"] = alerts
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().Bool("no-alerts", false, "Record snapshots without generating alerts")
	return cmd
}

func heatmapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heatmap [subscription]",
		Short: "Generate a visibility heatmap for one subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.Generate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), h)
			})
		},
	}
}

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge the history of subscriptions cancelled or expired past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				opts := cleanup.OptionsFromConfig(a.Config.Cleanup)
				if cmd.Flags().Changed("retention-days") {
					opts.RetentionDays, _ = cmd.Flags().GetInt("retention-days")
				}
				if cmd.Flags().Changed("max") {
					opts.MaxDeletionCount, _ = cmd.Flags().GetInt("max")
				}
				if cmd.Flags().Changed("dry-run") {
					opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
				}

				result, err := a.Cleanup.Purge(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().Int("retention-days", 0, "Days after cancellation before history is purged")
	cmd.Flags().Int("max", 0, "Abort when more subscriptions than this would be purged")
	cmd.Flags().Bool("dry-run", true, "Only report what would be purged")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			spec, err := cfg.Scheduler.Spec()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (database: %s, schedule: %q, provider: %s)\n",
				valueOrDefault(cfg.Database.Type, "postgres"), spec, valueOrDefault(cfg.Provider.Type, "http"))
			return nil
		},
	})
	return cmd
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
