package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"competitor-radar/internal/app"
	"competitor-radar/internal/config"
	"competitor-radar/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "radar",
		Short:         "Radar - competitor visibility monitoring",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "config/radar.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// RADAR_CONFIG, RADAR_LOG_LEVEL
	viper.SetEnvPrefix("radar")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(heatmapCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the config path from flag or env and applies the log level override
func loadConfig() (*config.Config, error) {
	cfg, err := app.LoadConfig(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
