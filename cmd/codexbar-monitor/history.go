package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
	"github.com/j-veylop/codexbar-monitor/internal/services/trend"
	"github.com/j-veylop/codexbar-monitor/internal/ui/components"
	"github.com/j-veylop/codexbar-monitor/internal/ui/styles"
)

func newHistoryCmd(logLevel *string) *cobra.Command {
	var (
		rangeFlag string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:       "history <provider>",
		Short:     "Chart recorded usage of a provider",
		Args:      cobra.ExactArgs(1),
		ValidArgs: providerArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := providers.Normalize(args[0])
			if err != nil {
				return err
			}
			tr, ok := models.ParseTimeRange(rangeFlag)
			if !ok {
				return fmt.Errorf("invalid range %q: use 24h, 7d or 30d", rangeFlag)
			}

			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			d, err := openDeps(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			return runHistory(cmd.Context(), cmd.OutOrStdout(), d.db, string(id), tr, asJSON, time.Now().UTC())
		},
	}
	cmd.Flags().StringVar(&rangeFlag, "range", "24h", "time range: 24h, 7d or 30d")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshots as JSON")
	return cmd
}

func runHistory(ctx context.Context, w io.Writer, store trend.SnapshotStore, provider string, tr models.TimeRange, asJSON bool, now time.Time) error {
	snaps, err := store.GetSnapshots(ctx, provider, now.Add(-tr.Duration()))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if asJSON {
		if snaps == nil {
			snaps = []models.UsageSnapshot{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snaps)
	}

	var b strings.Builder
	title := fmt.Sprintf("%s usage, last %s", providers.DisplayName(provider), tr)
	fmt.Fprintln(&b, styles.ProviderStyle(provider).Render(title))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, components.RenderHistoryChart(snaps, 60, 10, ""))
	fmt.Fprintln(&b, components.RenderLegend(components.HistoryLegend))

	good := lo.Filter(snaps, func(s models.UsageSnapshot, _ int) bool {
		return s.Error == "" && s.HasSession()
	})
	if len(good) > 0 {
		session := lo.Map(good, func(s models.UsageSnapshot, _ int) float64 { return s.SessionPercent })
		fmt.Fprintf(&b, "\nsession: min %.0f%%  max %.0f%%  latest %.0f%%  (%d snapshots",
			lo.Min(session), lo.Max(session), session[len(session)-1], len(good))
		if failed := len(snaps) - len(good); failed > 0 {
			fmt.Fprintf(&b, ", %d without data", failed)
		}
		fmt.Fprintln(&b, ")")

		last := good[len(good)-1]
		recent := lo.Filter(good, func(s models.UsageSnapshot, _ int) bool {
			return !s.Timestamp.Before(now.Add(-trend.DefaultLookback))
		})
		proj := trend.Calculate(provider, recent, last.SessionPercent, last.SessionResetAt, now)
		fmt.Fprintln(&b, components.RenderProjectionLine(proj, now))
	}

	_, err = io.WriteString(w, b.String())
	return err
}
