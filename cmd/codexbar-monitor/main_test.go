package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/models"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	want := []string{"usage", "watch", "status", "history", "serve", "settings", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "codexbar-monitor ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestHistoryCommand_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown provider", []string{"history", "cursor"}},
		{"bad range", []string{"history", "claude", "--range", "1y"}},
		{"missing provider", []string{"history"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetOut(io.Discard)
			root.SetErr(io.Discard)
			root.SetArgs(tt.args)
			if err := root.Execute(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

type fakeSnapshots struct {
	snaps []models.UsageSnapshot
	since time.Time
	err   error
}

func (f *fakeSnapshots) GetSnapshots(_ context.Context, _ string, since time.Time) ([]models.UsageSnapshot, error) {
	f.since = since
	return f.snaps, f.err
}

func TestRunHistory(t *testing.T) {
	reset := testNow.Add(3 * time.Hour)
	store := &fakeSnapshots{snaps: []models.UsageSnapshot{
		{Timestamp: testNow.Add(-2 * time.Hour), SessionPercent: 10, WeeklyPercent: 5, SessionResetAt: &reset},
		{Timestamp: testNow.Add(-time.Hour), Error: "Request timed out", SessionPercent: -1, WeeklyPercent: -1},
		{Timestamp: testNow.Add(-30 * time.Minute), SessionPercent: 30, WeeklyPercent: 8, SessionResetAt: &reset},
		{Timestamp: testNow, SessionPercent: 40, WeeklyPercent: 9, SessionResetAt: &reset},
	}}

	var out bytes.Buffer
	if err := runHistory(context.Background(), &out, store, "claude", models.TimeRange7Days, false, testNow); err != nil {
		t.Fatalf("runHistory: %v", err)
	}

	if !store.since.Equal(testNow.Add(-7 * 24 * time.Hour)) {
		t.Errorf("since = %v", store.since)
	}
	for _, want := range []string{"Claude usage, last 7 Days", "min 10%", "max 40%", "latest 40%", "3 snapshots", "1 without data", "confidence"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunHistory_JSON(t *testing.T) {
	store := &fakeSnapshots{}

	var out bytes.Buffer
	if err := runHistory(context.Background(), &out, store, "codex", models.TimeRange24Hours, true, testNow); err != nil {
		t.Fatalf("runHistory: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("empty history JSON = %q, want []", out.String())
	}
}

func TestRunHistory_StoreError(t *testing.T) {
	store := &fakeSnapshots{err: errors.New("locked")}
	err := runHistory(context.Background(), io.Discard, store, "codex", models.TimeRange24Hours, false, testNow)
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Errorf("err = %v", err)
	}
}

func TestNextStep(t *testing.T) {
	tests := []struct {
		name   string
		status models.SetupStatus
		want   models.SetupStep
	}{
		{"ready", models.SetupStatus{ShellOK: true, ShellUp: true, Distros: []string{"Ubuntu"}, ToolOK: true, IsReady: true}, models.SetupReady},
		{"outdated tool", models.SetupStatus{ShellOK: true, ShellUp: true, Distros: []string{"Ubuntu"}, ToolOK: true}, models.SetupInstallTool},
		{"no distro", models.SetupStatus{ShellOK: true, ShellUp: true, Distros: []string{}}, models.SetupInstallDistro},
		{"not running", models.SetupStatus{ShellOK: true, ShellError: models.ShellErrorNotRunning}, models.SetupStartShell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextStep(tt.status); got != tt.want {
				t.Errorf("nextStep = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	status := models.SetupStatus{
		ShellOK:     true,
		ShellUp:     true,
		Distros:     []string{"Ubuntu", "Debian"},
		ToolOK:      true,
		ToolVersion: "0.12.0",
		ToolError:   "codexbar 0.12.0 is older than the required 0.17.0",
	}
	if err := printStatus(&out, status, true, models.DefaultGuideURL); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"WSL installed", "Ubuntu, Debian", "0.12.0", "older than", "Next step: Install codexbar", models.DefaultGuideURL} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	status = models.SetupStatus{ShellOK: true, ShellUp: true, Distros: []string{"local"}, ToolOK: true, IsReady: true}
	if err := printStatus(&out, status, false, ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "bash installed") || !strings.Contains(out.String(), "Ready") {
		t.Errorf("ready output:\n%s", out.String())
	}
}

func TestUsagePrinter(t *testing.T) {
	settings := models.DefaultSettings()
	settings.Providers[0].DisplayName = "Claude Max"
	results := []models.UsageData{
		{Provider: "claude", FetchedAt: testNow, Session: &models.UsageWindow{Used: 20, Limit: 100}},
		models.ErrorUsage("codex", "Request timed out", testNow),
	}

	var out bytes.Buffer
	p := newUsagePrinter(&out, false, settings)
	p.now = func() time.Time { return testNow }
	if err := p.all(results); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Claude Max", "20%", "Codex", "Request timed out"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("cards missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "(cached)") {
		t.Error("fresh results should not be marked cached")
	}

	out.Reset()
	if err := newUsagePrinter(&out, false, settings).all(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No providers enabled") {
		t.Errorf("empty output = %q", out.String())
	}
}

func TestUsagePrinter_JSON(t *testing.T) {
	var out bytes.Buffer
	p := newUsagePrinter(&out, true, models.DefaultSettings())

	if err := p.streamed(models.UsageData{Provider: "gemini"}); err != nil {
		t.Fatal(err)
	}
	if err := p.streamed(models.UsageData{Provider: "claude"}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("streamed JSON should be one line per result, got %d:\n%s", len(lines), out.String())
	}
	var first models.UsageData
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first.Provider != "gemini" {
		t.Errorf("first line = %q (%v)", lines[0], err)
	}

	out.Reset()
	if err := p.all(nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("empty JSON = %q", out.String())
	}
}

type staticLatest struct {
	latest map[string]models.UsageData
}

func (s staticLatest) Latest() map[string]models.UsageData { return s.latest }
func (s staticLatest) IsRefreshing() bool                  { return true }

func TestServeMux(t *testing.T) {
	src := staticLatest{latest: map[string]models.UsageData{
		"claude": {Provider: "claude", Plan: "Pro"},
	}}
	srv := httptest.NewServer(newServeMux(src))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/usage")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Providers  map[string]models.UsageData `json:"providers"`
		Refreshing bool                        `json:"refreshing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Refreshing || body.Providers["claude"].Plan != "Pro" {
		t.Errorf("body = %+v", body)
	}

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}
