package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
	"github.com/j-veylop/codexbar-monitor/internal/ui/components"
)

const cardWidth = 80

type usageOptions struct {
	logLevel *string
	asJSON   bool
	stream   bool
}

func newUsageCmd(logLevel *string) *cobra.Command {
	opts := &usageOptions{logLevel: logLevel}

	cmd := &cobra.Command{
		Use:   "usage [provider]",
		Short: "Fetch current usage of one provider or of every enabled provider",
		Long: `Fetch current usage through codexbar.

Without a provider every enabled provider is fetched. With --stream each result
is printed as soon as it arrives instead of in provider order.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: providerArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of cards")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "print results as they complete")
	return cmd
}

func providerArgs() []string {
	ids := providers.All()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func runUsage(ctx context.Context, w io.Writer, opts *usageOptions, args []string) error {
	cfg, err := loadConfig(*opts.logLevel)
	if err != nil {
		return err
	}
	d, err := openDeps(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	p := newUsagePrinter(w, opts.asJSON, d.settings.Settings())

	if len(args) == 1 {
		id, err := providers.Normalize(args[0])
		if err != nil {
			return err
		}
		u := d.usage.GetUsage(ctx, string(id))
		if u == nil {
			return fmt.Errorf("no usage data available for %s", id)
		}
		d.recordResults(ctx, []models.UsageData{*u})
		return p.one(*u)
	}

	if opts.stream {
		var results []models.UsageData
		for u, err := range d.usage.GetAllUsageStream(ctx) {
			if err != nil {
				d.recordResults(context.WithoutCancel(ctx), results)
				return fmt.Errorf("failed to stream usage: %w", err)
			}
			results = append(results, u)
			if err := p.streamed(u); err != nil {
				return err
			}
		}
		d.recordResults(ctx, results)
		return nil
	}

	results, err := d.usage.GetAllUsage(ctx)
	d.recordResults(context.WithoutCancel(ctx), results)
	if err != nil {
		return fmt.Errorf("failed to fetch usage: %w", err)
	}
	return p.all(results)
}

// usagePrinter writes results as cards or JSON.
type usagePrinter struct {
	w        io.Writer
	names    map[string]string
	now      func() time.Time
	asJSON   bool
	settings models.Settings
}

func newUsagePrinter(w io.Writer, asJSON bool, settings models.Settings) *usagePrinter {
	names := make(map[string]string, len(settings.Providers))
	for _, p := range settings.Providers {
		if p.DisplayName != "" {
			names[p.ID] = p.DisplayName
		}
	}
	return &usagePrinter{w: w, names: names, now: time.Now, asJSON: asJSON, settings: settings}
}

func (p *usagePrinter) one(u models.UsageData) error {
	if p.asJSON {
		return p.encode(u, "  ")
	}
	return p.card(u)
}

func (p *usagePrinter) streamed(u models.UsageData) error {
	if p.asJSON {
		return p.encode(u, "")
	}
	return p.card(u)
}

func (p *usagePrinter) all(results []models.UsageData) error {
	if p.asJSON {
		if results == nil {
			results = []models.UsageData{}
		}
		return p.encode(results, "  ")
	}
	if len(results) == 0 {
		_, err := fmt.Fprintln(p.w, "No providers enabled.")
		return err
	}
	for _, u := range results {
		if err := p.card(u); err != nil {
			return err
		}
	}
	return nil
}

func (p *usagePrinter) card(u models.UsageData) error {
	now := p.now()
	title := p.names[u.Provider]
	if title == "" {
		title = providers.DisplayName(u.Provider)
	}
	_, err := fmt.Fprintln(p.w, components.RenderUsageCard(u, components.CardOptions{
		Title: title,
		Now:   now,
		Width: cardWidth,
		Stale: u.IsStale(now, p.settings.CacheExpiry()),
	}))
	return err
}

func (p *usagePrinter) encode(v any, indent string) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", indent)
	return enc.Encode(v)
}
