package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/samber/lo"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/ui/styles"
)

// RenderLineChart creates a single-series ASCII line chart.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	// Ensure minimum dimensions
	width = max(width, 20)
	height = max(height, 3)

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Caption(caption),
	)
}

// RenderHistoryChart plots session and weekly usage of a provider over time.
// Snapshots without a session window are skipped. Weekly gaps repeat the previous value.
func RenderHistoryChart(snaps []models.UsageSnapshot, width, height int, caption string) string {
	points := lo.Filter(snaps, func(s models.UsageSnapshot, _ int) bool {
		return s.Error == "" && s.HasSession()
	})
	if len(points) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	width = max(width, 20)
	height = max(height, 3)

	session := lo.Map(points, func(s models.UsageSnapshot, _ int) float64 {
		return s.SessionPercent
	})

	weekly := make([]float64, len(points))
	hasWeekly := false
	last := 0.0
	for i, s := range points {
		if s.WeeklyPercent >= 0 {
			last = s.WeeklyPercent
			hasWeekly = true
		}
		weekly[i] = last
	}

	if !hasWeekly {
		return RenderLineChart(session, width, height, caption)
	}

	return asciigraph.PlotMany([][]float64{session, weekly},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(
			asciigraph.Red,
			asciigraph.Blue,
		),
	)
}

// RenderSparkline creates a compact inline sparkline of percentages.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	sparkChars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	var result strings.Builder
	step := max(float64(len(values))/float64(width), 1)

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := clampPercent(values[int(float64(i)*step)])
		idx := int(val / 100 * float64(len(sparkChars)-1))
		result.WriteString(styles.GetUsageStyle(val).Render(string(sparkChars[idx])))
	}

	return result.String()
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}

// HistoryLegend matches the series colors of RenderHistoryChart.
var HistoryLegend = []LegendItem{
	{Label: "session", Color: styles.Error},
	{Label: "weekly", Color: styles.Info},
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := lo.Map(items, func(item LegendItem, _ int) string {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		return fmt.Sprintf("%s %s", colorBox, item.Label)
	})
	return strings.Join(parts, "  ")
}
