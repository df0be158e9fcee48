package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// localDistro is reported as the only distribution in native mode.
const localDistro = "local"

// notRunningMarkers are substrings of `wsl --status` output meaning WSL is installed but stopped.
var notRunningMarkers = []string{"not running", "起動していません"}

// CheckStatus probes the shell host.
func (r *Runner) CheckStatus(ctx context.Context) models.ShellStatus {
	if !r.useWSL {
		if _, err := exec.LookPath(r.shell); err != nil {
			return models.ShellStatus{ErrorKind: models.ShellErrorNotInstalled, Message: err.Error()}
		}
		return models.ShellStatus{Installed: true, Running: true}
	}

	timeout := r.timeouts().StatusCheckTimeout()
	statusCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := run(statusCtx, r.wslBin, "--status")

	if statusCtx.Err() != nil {
		logger.Warn("WSL status check timed out", "timeout", timeout)
		return models.ShellStatus{
			Installed: true,
			ErrorKind: models.ShellErrorTimeout,
			Message:   "WSL status check timed out. WSL may be starting up.",
		}
	}
	if err != nil {
		logger.Debug("WSL is not installed or not accessible", "error", err)
		return models.ShellStatus{ErrorKind: models.ShellErrorNotInstalled}
	}
	if res.Success {
		return models.ShellStatus{Installed: true, Running: true}
	}

	combined := strings.ToLower(decodeConsole([]byte(res.Stdout)) + decodeConsole([]byte(res.Stderr)))
	for _, marker := range notRunningMarkers {
		if strings.Contains(combined, marker) {
			logger.Warn("WSL is installed but not running")
			return models.ShellStatus{
				Installed: true,
				ErrorKind: models.ShellErrorNotRunning,
				Message:   "WSL is not running. Please restart WSL.",
			}
		}
	}

	return models.ShellStatus{
		Installed: true,
		ErrorKind: models.ShellErrorOther,
		Message:   strings.TrimSpace(decodeConsole([]byte(res.Stderr))),
	}
}

// Distros lists the installed WSL distributions. Errors yield an empty list.
func (r *Runner) Distros(ctx context.Context) []string {
	if !r.useWSL {
		return []string{localDistro}
	}

	listCtx, cancel := context.WithTimeout(ctx, r.timeouts().StatusCheckTimeout())
	defer cancel()

	res, err := run(listCtx, r.wslBin, "-l", "-q")
	if err != nil || listCtx.Err() != nil {
		logger.Debug("Failed to get WSL distros", "error", errors.Join(err, listCtx.Err()))
		return nil
	}

	var distros []string
	for _, line := range strings.Split(decodeConsole([]byte(res.Stdout)), "\n") {
		name := strings.Trim(line, "\x00 \r\t\ufeff")
		if name != "" {
			distros = append(distros, name)
		}
	}
	return distros
}

// decodeConsole decodes wsl.exe output, which is UTF-16LE on most Windows builds.
func decodeConsole(b []byte) string {
	if !looksUTF16LE(b) {
		return string(b)
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ReplaceAll(b, []byte{0}, nil))
	}
	return string(decoded)
}

// looksUTF16LE reports a BOM, embedded NULs, or even-length invalid UTF-8.
// Console text never contains NUL, while UTF-16 of any ASCII character does.
func looksUTF16LE(b []byte) bool {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return true
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return true
	}
	return len(b)%2 == 0 && len(b) > 0 && !utf8.Valid(b)
}
