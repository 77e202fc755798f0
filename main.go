package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.goms.io/arc/ArcFleetAudit/pkg/config"
	"go.goms.io/arc/ArcFleetAudit/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "arc-fleet-audit",
		Short:        "Azure Arc fleet audit",
		Long:         "Audit Azure Arc connected machines for outdated agents and extensions and write a dated report",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration JSON file (optional, environment variables are used otherwise)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(NewScanCommand())
	rootCmd.AddCommand(NewVersionCommand())

	// Set up context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Set up persistent pre-run to initialize config and logger
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version command
		if cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Agent.LogLevel
		if verbose {
			level = string(logger.LogLevelDebug)
		}
		ctx := logger.SetupLogger(cmd.Context(), level, cfg.Agent.LogDir)
		logger.GetLoggerFromContext(ctx).Debugf("Configuration loaded (log level: %s)", logger.GetCurrentLogLevel(ctx))
		cmd.SetContext(ctx)
		return nil
	}

	// Execute command with context
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		os.Exit(1)
	}
}
