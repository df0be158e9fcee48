package components

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/ui/styles"
)

// CardOptions controls what a usage card shows besides the windows.
type CardOptions struct {
	Projection *models.WindowProjection
	Title      string
	Now        time.Time
	Width      int
	Stale      bool
}

// RenderUsageCard renders a provider's usage as a bordered card.
func RenderUsageCard(u models.UsageData, opts CardOptions) string {
	inner := max(opts.Width-4, 30)
	title := opts.Title
	if title == "" {
		title = u.Provider
	}

	header := styles.ProviderStyle(u.Provider).Render(title)
	if u.Plan != "" {
		header += " " + styles.PlanStyle.Render(u.Plan)
	}
	if opts.Stale {
		header += " " + styles.HelpStyle.Render("(cached)")
	}

	lines := []string{header}

	if u.HasError() {
		msg := ansi.Truncate(u.Error, inner, "…")
		lines = append(lines, styles.ErrorTextStyle.Render(msg))
		return styles.ErrorCardStyle.Width(inner).Render(strings.Join(lines, "\n"))
	}

	windows := u.Windows()
	if len(windows) == 0 {
		lines = append(lines, styles.HelpStyle.Render("No usage windows reported"))
	}
	bar := NewUsageBar()
	for _, w := range windows {
		lines = append(lines, bar.View(w, inner, opts.Now))
	}

	if opts.Projection != nil {
		lines = append(lines, RenderProjectionLine(*opts.Projection, opts.Now))
	}
	if u.Status != "" {
		lines = append(lines, styles.HelpStyle.Render(ansi.Truncate(u.Status, inner, "…")))
	}

	return styles.CardStyle.Width(inner).Render(strings.Join(lines, "\n"))
}

// RenderProjectionLine summarizes a session projection in one line.
func RenderProjectionLine(p models.WindowProjection, now time.Time) string {
	style := styles.GetProjectionStyle(p.Status)
	status := style.Render(string(p.Status))

	switch {
	case p.Status == models.ProjectionUnknown:
		return status + styles.HelpStyle.Render("  not enough history")
	case p.CurrentPercent >= 100:
		return status + styles.HelpStyle.Render("  session exhausted")
	case p.RatePerHour <= 0 || math.IsInf(p.HoursLeft, 1):
		return status + styles.HelpStyle.Render("  usage is flat")
	}

	detail := fmt.Sprintf("  %.1f%%/h, full in %s", p.RatePerHour, FormatDuration(p.ExhaustAt.Sub(now)))
	if !p.WillExhaust {
		detail += ", after reset"
	}
	detail += fmt.Sprintf(" (%s confidence)", p.Confidence)
	return status + styles.HelpStyle.Render(detail)
}

// RenderCardsColumn stacks cards vertically, left aligned.
func RenderCardsColumn(cards []string) string {
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}
