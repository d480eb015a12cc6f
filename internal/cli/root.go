// Package cli implements the nemshi command-line interface using Cobra.
// Each subcommand maps to a backend operation (serve, backfill, badges, etc.).
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yalla-nemshi/nemshi/internal/daemon"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "nemshi",
	Short: "nemshi: Yalla Nemshi backend",
	Long: `nemshi is the backend for the Yalla Nemshi walking app.
It evaluates badges, aggregates walk stats, keeps the friend-facing
profile and walk-summary views in sync, and sends walk notifications.

Configuration lives in ~/.nemshi/config.toml (override with NEMSHI_HOME).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile == "" {
			// A missing .env is normal outside development.
			_ = godotenv.Load()
			return nil
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads config, sets up logging, and wires every service.
// The returned func releases both.
func openDaemon(ctx context.Context) (*daemon.Daemon, func(), error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logs, err := daemon.SetupLogging(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	d, err := daemon.NewWithConfig(ctx, cfg)
	if err != nil {
		logs.Close()
		return nil, nil, err
	}
	return d, func() {
		d.Close()
		_ = logs.Close()
	}, nil
}
