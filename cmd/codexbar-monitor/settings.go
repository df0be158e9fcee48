package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/services/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or reset the settings file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSettings(func(store *settings.Store) error {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(store.Settings())
				})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig("")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg.SettingsPath)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSettings(func(store *settings.Store) error {
					if err := store.Reset(); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Settings reset: %s\n", store.Path())
					return nil
				})
			},
		},
	)
	return cmd
}

func withSettings(fn func(*settings.Store) error) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	store, err := settings.New(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}
