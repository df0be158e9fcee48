package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/app"
)

func newWatchCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show live usage cards that refresh on the configured interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), *logLevel)
		},
	}
}

func runWatch(ctx context.Context, logLevel string) error {
	cfg, err := loadConfig(logLevel)
	if err != nil {
		return err
	}
	d, err := openDeps(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := d.newMonitor(true)
	defer func() { _ = mon.Close() }()

	// The view subscribes on creation, so it must exist before the first refresh starts.
	model := app.NewModel(mon, d.settings)
	go d.followSettings(ctx, mon)
	mon.Start(ctx)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
