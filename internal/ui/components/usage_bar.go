// Package components provides reusable UI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/ui/styles"
)

const (
	labelWidth   = 22
	percentWidth = 6
	minBarWidth  = 10
)

// UsageBar renders one usage window as a labeled progress bar.
type UsageBar struct {
	progress progress.Model
}

// NewUsageBar creates a bar that shades from green to red as usage grows.
func NewUsageBar() UsageBar {
	p := progress.New(
		progress.WithScaledGradient("#51cf66", "#ff6b6b"),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)
	return UsageBar{progress: p}
}

// View renders the window with its label, used percentage and reset hint.
func (b UsageBar) View(w models.LabeledWindow, width int, now time.Time) string {
	if w.Window == nil {
		return ""
	}
	percent := w.Window.Percent()

	reset := FormatReset(*w.Window, now)
	resetStr := ""
	if reset != "" {
		resetStr = "  " + styles.ResetStyle.Render(reset)
	}

	b.progress.Width = max(minBarWidth, width-labelWidth-percentWidth-lipgloss.Width(resetStr)-1)
	bar := b.progress.ViewAs(clampPercent(percent) / 100)

	percentStr := styles.GetUsageStyle(percent).
		Width(percentWidth).
		Align(lipgloss.Right).
		Render(w.Window.PercentText())

	return lipgloss.JoinHorizontal(
		lipgloss.Center,
		styles.ProgressLabelStyle.Render(w.Label),
		bar,
		" ",
		percentStr,
		resetStr,
	)
}

// FormatReset describes when a window resets. It prefers the absolute reset
// time and falls back to the provider's own description.
func FormatReset(w models.UsageWindow, now time.Time) string {
	if d, ok := w.TimeUntilReset(now); ok {
		if d <= 0 {
			return "resetting"
		}
		return "resets in " + FormatDuration(d)
	}
	if w.ResetIn != "" {
		return "resets " + strings.TrimPrefix(w.ResetIn, "resets ")
	}
	return ""
}

// FormatDuration renders d as days, hours and minutes, dropping leading zero units.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// RenderPlainBar draws a bar without colors, for output that is not a terminal.
func RenderPlainBar(percent float64, width int) string {
	if width < 1 {
		return ""
	}
	filled := int(float64(width) * clampPercent(percent) / 100)
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}

func clampPercent(p float64) float64 {
	return min(max(p, 0), 100)
}
