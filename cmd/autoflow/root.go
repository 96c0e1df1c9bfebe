package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/autoflow/internal/cli"
	"github.com/aretw0/autoflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autoflow",
	Short: "AutoFlow runs visual automation workflows",
	Long: `AutoFlow executes workflows made of trigger, fetch, transform and notify nodes.
Workflows run on demand, on a recurring schedule once activated, or when an inbound event arrives.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
}

// loadConfig reads --config and builds the logger every command shares.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg.Log, level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
