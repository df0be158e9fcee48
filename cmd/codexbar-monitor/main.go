// Package main is the entry point of codexbar-monitor, a terminal monitor for the
// usage limits of AI coding assistants as reported by the codexbar CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/config"
	"github.com/j-veylop/codexbar-monitor/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "codexbar-monitor",
		Short:         "Monitor Claude, Codex and Gemini usage limits through codexbar",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
		// With no subcommand the interactive view is shown.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), logLevel)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		newUsageCmd(&logLevel),
		newWatchCmd(&logLevel),
		newStatusCmd(&logLevel),
		newHistoryCmd(&logLevel),
		newServeCmd(&logLevel),
		newSettingsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// loadConfig reads the process configuration and applies flag overrides.
func loadConfig(logLevel string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
