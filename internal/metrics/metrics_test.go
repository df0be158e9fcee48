package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/services/usage"
)

var _ usage.Observer = Recorder{}

func TestRecorder(t *testing.T) {
	FetchTotal.Reset()
	FetchDuration.Reset()

	r := Recorder{}
	r.ObserveFetch("claude", usage.OutcomeSuccess, 2*time.Second)
	r.ObserveFetch("claude", usage.OutcomeSuccess, time.Second)
	r.ObserveFetch("codex", usage.OutcomeTimeout, 45*time.Second)

	if got := testutil.ToFloat64(FetchTotal.WithLabelValues("claude", "success")); got != 2 {
		t.Errorf("claude success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(FetchTotal.WithLabelValues("codex", "timeout")); got != 1 {
		t.Errorf("codex timeout = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(FetchDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecordUsage(t *testing.T) {
	WindowPercent.Reset()

	RecordUsage(models.UsageData{
		Provider: "gemini",
		Session:  &models.UsageWindow{Used: 40, Limit: 100},
		Weekly:   &models.UsageWindow{Used: 10, Limit: 100},
	})

	if got := testutil.ToFloat64(WindowPercent.WithLabelValues("gemini", "session")); got != 40 {
		t.Errorf("session = %v, want 40", got)
	}
	if got := testutil.CollectAndCount(WindowPercent); got != 2 {
		t.Errorf("series = %d, want 2", got)
	}

	// A later record without the weekly window drops that series.
	RecordUsage(models.UsageData{
		Provider: "gemini",
		Session:  &models.UsageWindow{Used: 55, Limit: 100},
	})
	if got := testutil.CollectAndCount(WindowPercent); got != 1 {
		t.Errorf("series = %d, want 1", got)
	}

	// Error records leave the last good values alone.
	RecordUsage(models.UsageData{Provider: "gemini", Error: "Request timed out"})
	if got := testutil.ToFloat64(WindowPercent.WithLabelValues("gemini", "session")); got != 55 {
		t.Errorf("session = %v, want 55", got)
	}
}

func TestRecordProjection(t *testing.T) {
	ExhaustSeconds.Reset()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	RecordProjection(models.WindowProjection{
		Provider:    "claude",
		WillExhaust: true,
		ExhaustAt:   now.Add(90 * time.Minute),
	}, now)
	if got := testutil.ToFloat64(ExhaustSeconds.WithLabelValues("claude")); got != 5400 {
		t.Errorf("exhaust seconds = %v, want 5400", got)
	}

	RecordProjection(models.WindowProjection{Provider: "claude"}, now)
	if got := testutil.CollectAndCount(ExhaustSeconds); got != 0 {
		t.Errorf("series = %d, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	FetchTotal.Reset()
	FetchTotal.WithLabelValues("claude", "success").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `codexbar_fetch_total{outcome="success",provider="claude"} 1`) {
		t.Errorf("metrics output missing fetch counter:\n%s", body)
	}
}
