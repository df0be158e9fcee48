package setup

import (
	"context"
	"testing"

	"github.com/j-veylop/codexbar-monitor/internal/models"
)

type mockShell struct {
	status      models.ShellStatus
	distros     []string
	distroCalls int
}

func (m *mockShell) CheckStatus(context.Context) models.ShellStatus {
	return m.status
}

func (m *mockShell) Distros(context.Context) []string {
	m.distroCalls++
	return m.distros
}

type mockTool struct {
	version      string
	available    bool
	versionOK    bool
	versionCalls int
}

func (m *mockTool) IsAvailable(context.Context) bool {
	return m.available
}

func (m *mockTool) GetVersion(context.Context) (string, bool) {
	m.versionCalls++
	return m.version, m.versionOK
}

var running = models.ShellStatus{Installed: true, Running: true}

func TestIsCompatibleVersion(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"   ", false},
		{"0.17.0", true},
		{"0.18.2", true},
		{"1.0.0", true},
		{"0.16.9", false},
		{"0.9.0", false},
		{"codexbar 0.17.1 (abc123)", true},
		{"codexbar version 0.10.0", false},
		{"0.0.0-unknown", true},
		{"Unknown build", true},
		{"dev", true},
		{"v2", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsCompatibleVersion(tt.input); got != tt.want {
				t.Errorf("IsCompatibleVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		shell      *mockShell
		tool       *mockTool
		wantStep   models.SetupStep
		wantReady  bool
		wantToolOK bool
	}{
		{
			name:     "shell not installed",
			shell:    &mockShell{status: models.ShellStatus{}},
			tool:     &mockTool{},
			wantStep: models.SetupInstallShell,
		},
		{
			name:     "shell not running",
			shell:    &mockShell{status: models.ShellStatus{Installed: true, ErrorKind: models.ShellErrorNotRunning}},
			tool:     &mockTool{},
			wantStep: models.SetupStartShell,
		},
		{
			name:     "shell status timeout",
			shell:    &mockShell{status: models.ShellStatus{Installed: true, ErrorKind: models.ShellErrorTimeout}},
			tool:     &mockTool{},
			wantStep: models.SetupFixShell,
		},
		{
			name:     "no distros",
			shell:    &mockShell{status: running},
			tool:     &mockTool{},
			wantStep: models.SetupInstallDistro,
		},
		{
			name:     "tool missing",
			shell:    &mockShell{status: running, distros: []string{"Ubuntu"}},
			tool:     &mockTool{},
			wantStep: models.SetupInstallTool,
		},
		{
			name:       "old version",
			shell:      &mockShell{status: running, distros: []string{"Ubuntu"}},
			tool:       &mockTool{available: true, version: "0.16.0", versionOK: true},
			wantStep:   models.SetupReady,
			wantToolOK: true,
		},
		{
			name:       "version probe failed",
			shell:      &mockShell{status: running, distros: []string{"Ubuntu"}},
			tool:       &mockTool{available: true},
			wantStep:   models.SetupReady,
			wantToolOK: true,
		},
		{
			name:       "ready",
			shell:      &mockShell{status: running, distros: []string{"Ubuntu", "Debian"}},
			tool:       &mockTool{available: true, version: "0.18.0", versionOK: true},
			wantStep:   models.SetupReady,
			wantReady:  true,
			wantToolOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewChecker(tt.shell, tt.tool).Check(context.Background())

			if step := got.CurrentStep(); step != tt.wantStep {
				t.Errorf("CurrentStep() = %v, want %v", step, tt.wantStep)
			}
			if got.IsReady != tt.wantReady {
				t.Errorf("IsReady = %v, want %v", got.IsReady, tt.wantReady)
			}
			if got.ToolOK != tt.wantToolOK {
				t.Errorf("ToolOK = %v, want %v", got.ToolOK, tt.wantToolOK)
			}
			if !got.IsReady && tt.wantToolOK && got.ToolError == "" {
				t.Error("expected a tool error for an incompatible version")
			}
		})
	}
}

func TestCheck_StopsAtFirstFailure(t *testing.T) {
	sh := &mockShell{status: models.ShellStatus{Installed: true}}
	tool := &mockTool{available: true, versionOK: true, version: "1.0.0"}

	got := NewChecker(sh, tool).Check(context.Background())

	if sh.distroCalls != 0 || tool.versionCalls != 0 {
		t.Error("later probes should not run after the shell check fails")
	}
	if !got.ShellOK || got.ShellUp {
		t.Errorf("unexpected shell flags: %+v", got)
	}
}

func TestCheck_DefaultDistro(t *testing.T) {
	sh := &mockShell{status: running, distros: []string{"Ubuntu-22.04", "Debian"}}
	tool := &mockTool{available: true, versionOK: true, version: "codexbar 0.17.0"}

	got := NewChecker(sh, tool).Check(context.Background())

	if got.DefaultDistro() != "Ubuntu-22.04" {
		t.Errorf("DefaultDistro() = %q", got.DefaultDistro())
	}
	if got.ToolVersion != "codexbar 0.17.0" {
		t.Errorf("ToolVersion = %q", got.ToolVersion)
	}
}
