// Package metrics exposes Prometheus collectors for usage acquisition.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/services/usage"
)

var (
	// FetchTotal counts per-provider fetches by outcome
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexbar_fetch_total",
			Help: "Total number of provider usage fetches",
		},
		[]string{"provider", "outcome"},
	)

	// FetchDuration tracks how long codexbar took per provider
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexbar_fetch_duration_seconds",
			Help:    "Duration of provider usage fetches",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 60},
		},
		[]string{"provider"},
	)

	// WindowPercent tracks the latest used percent of each window
	WindowPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codexbar_window_used_percent",
			Help: "Latest used percentage of a provider usage window",
		},
		[]string{"provider", "window"},
	)

	// ExhaustSeconds tracks the predicted seconds until the session window is exhausted
	ExhaustSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codexbar_session_exhaust_seconds",
			Help: "Predicted seconds until the session window is exhausted",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(WindowPercent)
	prometheus.MustRegister(ExhaustSeconds)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder feeds fetch observations into the collectors.
type Recorder struct{}

// ObserveFetch implements usage.Observer.
func (Recorder) ObserveFetch(provider string, outcome usage.Outcome, d time.Duration) {
	FetchTotal.WithLabelValues(provider, string(outcome)).Inc()
	FetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordUsage updates the window gauges. Windows missing from u are removed.
func RecordUsage(u models.UsageData) {
	if u.HasError() {
		return
	}
	for _, kind := range []string{models.WindowSession, models.WindowWeekly, models.WindowTertiary} {
		WindowPercent.DeleteLabelValues(u.Provider, kind)
	}
	for _, w := range u.Windows() {
		WindowPercent.WithLabelValues(u.Provider, w.Kind).Set(w.Window.Percent())
	}
}

// RecordProjection updates the exhaustion forecast. Projections that never exhaust clear the gauge.
func RecordProjection(p models.WindowProjection, now time.Time) {
	if !p.WillExhaust || p.ExhaustAt.IsZero() {
		ExhaustSeconds.DeleteLabelValues(p.Provider)
		return
	}
	secs := p.ExhaustAt.Sub(now).Seconds()
	if secs < 0 {
		secs = 0
	}
	ExhaustSeconds.WithLabelValues(p.Provider).Set(secs)
}
