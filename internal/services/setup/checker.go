// Package setup checks whether the machine can fetch usage at all.
package setup

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// MinVersion is the oldest codexbar release with the JSON output this tool reads.
const MinVersion = "0.17.0"

var versionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// ShellProbe inspects the shell host.
type ShellProbe interface {
	CheckStatus(ctx context.Context) models.ShellStatus
	Distros(ctx context.Context) []string
}

// ToolProbe inspects the codexbar installation.
type ToolProbe interface {
	IsAvailable(ctx context.Context) bool
	GetVersion(ctx context.Context) (string, bool)
}

// Checker runs the readiness probes in order and stops at the first failing one.
type Checker struct {
	shell ShellProbe
	tool  ToolProbe
}

// NewChecker creates a setup checker.
func NewChecker(shell ShellProbe, tool ToolProbe) *Checker {
	return &Checker{shell: shell, tool: tool}
}

// Check probes the shell host, its distributions, then codexbar and its version.
func (c *Checker) Check(ctx context.Context) models.SetupStatus {
	logger.Info("Checking setup status")

	shellStatus := c.shell.CheckStatus(ctx)
	if !shellStatus.Installed {
		logger.Warn("Shell host is not installed", "message", shellStatus.Message)
		kind := shellStatus.ErrorKind
		if kind == models.ShellErrorNone {
			kind = models.ShellErrorNotInstalled
		}
		return models.SetupStatus{ShellError: kind}
	}
	if !shellStatus.Running {
		logger.Warn("Shell host is installed but not running", "message", shellStatus.Message)
		return models.SetupStatus{ShellOK: true, ShellError: shellStatus.ErrorKind}
	}

	distros := c.shell.Distros(ctx)
	if len(distros) == 0 {
		logger.Warn("No Linux distributions found")
		return models.SetupStatus{ShellOK: true, ShellUp: true, Distros: []string{}}
	}
	logger.Info("Found distributions", "distros", strings.Join(distros, ", "))

	status := models.SetupStatus{ShellOK: true, ShellUp: true, Distros: distros}

	if !c.tool.IsAvailable(ctx) {
		logger.Warn("codexbar is not installed")
		status.ToolError = "codexbar was not found on PATH"
		return status
	}
	status.ToolOK = true

	version, _ := c.tool.GetVersion(ctx)
	status.ToolVersion = version
	logger.Info("codexbar version", "version", version)

	status.IsReady = IsCompatibleVersion(version)
	if !status.IsReady {
		logger.Warn("codexbar version is not compatible", "version", version, "min_version", MinVersion)
		status.ToolError = fmt.Sprintf("codexbar %s is older than the required %s", displayVersion(version), MinVersion)
	}
	return status
}

// IsCompatibleVersion reports whether a `codexbar --version` output meets MinVersion.
// Development builds reporting "unknown" and outputs without an x.y.z triple are accepted.
func IsCompatibleVersion(output string) bool {
	if strings.TrimSpace(output) == "" {
		return false
	}
	if strings.Contains(strings.ToLower(output), "unknown") {
		return true
	}

	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return true
	}

	v := "v" + m[1]
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, "v"+MinVersion) >= 0
}

func displayVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(unknown version)"
	}
	return v
}
