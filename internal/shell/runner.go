// Package shell runs commands inside the Linux shell host that has codexbar installed.
//
// On Windows that host is WSL: commands run as `wsl [-d distro] -- bash -ic <command>` so that
// .bashrc (and the PATH entries of the provider CLIs) is loaded. Elsewhere the local bash is used.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// execCommand is replaced in tests.
var execCommand = exec.CommandContext

// waitDelay bounds how long Wait keeps draining pipes after the process was killed.
const waitDelay = 2 * time.Second

// Result is the outcome of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
}

// Config configures a Runner.
type Config struct {
	// Timeouts supplies the current timeout settings; nil uses the defaults.
	Timeouts func() models.TimeoutSettings
	// Distro selects a WSL distribution; empty uses the default one.
	Distro string
	// WSLBin is the WSL launcher, "wsl" when empty.
	WSLBin string
	// Shell is the shell used in native mode, "bash" when empty.
	Shell string
	// UseWSL routes commands through WSL.
	UseWSL bool
}

// Runner executes shell commands with a timeout ceiling and process tree cleanup.
type Runner struct {
	timeouts func() models.TimeoutSettings
	distro   string
	wslBin   string
	shell    string
	useWSL   bool
}

// New creates a Runner.
func New(cfg Config) *Runner {
	r := &Runner{
		timeouts: cfg.Timeouts,
		distro:   cfg.Distro,
		wslBin:   cfg.WSLBin,
		shell:    cfg.Shell,
		useWSL:   cfg.UseWSL,
	}
	if r.timeouts == nil {
		r.timeouts = models.DefaultTimeouts
	}
	if r.wslBin == "" {
		r.wslBin = "wsl"
	}
	if r.shell == "" {
		r.shell = "bash"
	}
	return r
}

// DefaultUseWSL reports whether WSL should be used on this platform.
func DefaultUseWSL() bool {
	return runtime.GOOS == "windows"
}

// UsesWSL reports whether commands are routed through WSL.
func (r *Runner) UsesWSL() bool {
	return r.useWSL
}

// Execute runs command in the shell host.
//
// The runner's own timeout is reported as a failed Result with exit code -1, not as an error.
// Cancellation or expiry of ctx is returned as ctx.Err() so callers can tell the two apart.
func (r *Runner) Execute(ctx context.Context, command string) (Result, error) {
	timeout := r.timeouts().CommandTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := r.commandLine(command)
	logger.Debug("Executing shell command", "command", command)

	res, err := run(runCtx, name, args...)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{ExitCode: -1}, ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("Shell command timed out", "command", command, "timeout", timeout)
		return Result{
			Stderr:   fmt.Sprintf("Command timed out after %s seconds", formatSeconds(timeout)),
			ExitCode: -1,
		}, nil
	}
	if err != nil {
		logger.Error("Failed to execute shell command", "command", command, "error", err)
		return Result{Stderr: err.Error(), ExitCode: -1}, nil
	}

	logger.Debug("Shell command completed", "command", command, "exit_code", res.ExitCode)
	return res, nil
}

// commandLine builds the argv that runs command in the shell host.
func (r *Runner) commandLine(command string) (string, []string) {
	if !r.useWSL {
		return r.shell, []string{"-lc", command}
	}

	var args []string
	if r.distro != "" {
		args = append(args, "-d", r.distro)
	}
	args = append(args, "--", "bash", "-ic", command)
	return r.wslBin, args
}

// run starts name and waits for it. A non-zero exit is reported in the Result;
// err is set only when the process could not be run at all.
func run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := execCommand(ctx, name, args...)
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = -1
		return res, err
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
