// Package usage acquires provider usage by driving the codexbar CLI.
//
// Every per-provider fetch is total: command failures, empty output, timeouts and panics all become
// a UsageData with Error set. The only error surfaced to batch and stream callers is the cancellation
// of their own context.
package usage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/parser"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
	"github.com/j-veylop/codexbar-monitor/internal/shell"
)

// DefaultTool is the codexbar executable name.
const DefaultTool = "codexbar"

// Error messages stored in UsageData.Error.
const (
	msgTimedOut        = "Request timed out"
	msgUnexpected      = "Unexpected error occurred"
	msgNoData          = "No data available"
	msgSampleMissing   = "Sample data not available (Developer mode)"
	msgCommandFailedFm = "Command failed (exit code %d)"
)

var (
	// ErrStreamConsumed is yielded when a stream returned by GetAllUsageStream is ranged twice.
	ErrStreamConsumed = errors.New("usage stream already consumed")
	// ErrInvalidTool rejects tool names that are unsafe to interpolate into a shell command.
	ErrInvalidTool = errors.New("invalid tool name")
)

var toolPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// CommandRunner executes a command line in the shell host.
type CommandRunner interface {
	Execute(ctx context.Context, command string) (shell.Result, error)
}

// Cache stores the last good record per provider.
type Cache interface {
	Get(provider string) *models.UsageData
	Set(provider string, data models.UsageData)
}

// SettingsSource exposes the current settings.
type SettingsSource interface {
	Settings() models.Settings
}

// SampleLoader supplies canned responses in developer mode.
type SampleLoader interface {
	LoadSampleJSON(provider string) (string, bool)
}

// Outcome classifies a per-provider fetch for instrumentation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
	OutcomeSample  Outcome = "sample"
)

// Observer is notified of every completed per-provider fetch.
type Observer interface {
	ObserveFetch(provider string, outcome Outcome, duration time.Duration)
}

// Config holds optional service configuration.
type Config struct {
	Observer Observer
	// Tool overrides the codexbar executable; it must match ^[A-Za-z0-9._/-]+$.
	Tool string
}

// Service orchestrates usage acquisition.
type Service struct {
	runner   CommandRunner
	cache    Cache
	settings SettingsSource
	samples  SampleLoader
	observer Observer
	now      func() time.Time
	tool     string

	// firstFetch selects the longer cold-start timeouts until one batch or stream completes.
	firstFetch atomic.Bool
}

// New creates a usage service. samples may be nil when developer mode is never used.
func New(runner CommandRunner, cache Cache, settings SettingsSource, samples SampleLoader, cfg Config) (*Service, error) {
	tool := cfg.Tool
	if tool == "" {
		tool = DefaultTool
	}
	if !toolPattern.MatchString(tool) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTool, tool)
	}

	s := &Service{
		runner:   runner,
		cache:    cache,
		settings: settings,
		samples:  samples,
		observer: cfg.Observer,
		now:      func() time.Time { return time.Now().UTC() },
		tool:     tool,
	}
	s.firstFetch.Store(true)
	return s, nil
}

// IsFirstFetch reports whether no batch or stream has completed yet.
func (s *Service) IsFirstFetch() bool {
	return s.firstFetch.Load()
}

// Tool returns the codexbar executable the service invokes.
func (s *Service) Tool() string {
	return s.tool
}

// GetUsage fetches a single provider through codexbar's status command.
// It never fails: invalid providers yield nil, and any failure falls back to the cached record,
// which may itself be nil.
func (s *Service) GetUsage(ctx context.Context, providerID string) (result *models.UsageData) {
	id, err := providers.Normalize(providerID)
	if err != nil {
		logger.Warn("Rejected usage request", "provider", providerID, "error", err)
		return nil
	}
	key := string(id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Failed to get usage", "provider", key, "panic", r, "stack", string(debug.Stack()))
			result = s.cache.Get(key)
		}
	}()

	source, err := providers.SourceFor(key)
	if err != nil {
		logger.Error("Failed to get usage", "provider", key, "error", err)
		return s.cache.Get(key)
	}

	res, err := s.runner.Execute(ctx, s.statusCommand(id, source))
	if err != nil {
		logger.Error("Failed to get usage", "provider", key, "error", err)
		return s.cache.Get(key)
	}
	if !res.Success {
		logger.Warn("codexbar command failed", "provider", key, "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return s.cache.Get(key)
	}

	data := parser.ParseOne(res.Stdout, key)
	if data == nil {
		return s.cache.Get(key)
	}
	data.IsLoading = false
	s.cache.Set(key, *data)
	return data
}

// GetAllUsage fetches every enabled provider sequentially, in configuration order.
// Codex and gemini drive their own CLIs inside the shell host, which does not cope with
// overlapping invocations.
//
// The returned error is non-nil only when ctx is cancelled; results gathered so far are returned with it.
func (s *Service) GetAllUsage(ctx context.Context) ([]models.UsageData, error) {
	ids := s.enabledProviders()
	results := make([]models.UsageData, 0, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		data, err := s.fetch(ctx, id)
		if err != nil {
			return results, err
		}
		results = append(results, data)
	}

	s.firstFetch.Store(false)
	return results, nil
}

// GetAllUsageStream returns a lazy, single-use sequence over every enabled provider.
// When ranged, all fetches start concurrently and results are yielded in completion order;
// match them to providers by UsageData.Provider.
//
// Cancelling ctx yields one (zero, ctx.Err()) pair and ends the sequence. Breaking out of the
// loop cancels the fetches still in flight.
func (s *Service) GetAllUsageStream(ctx context.Context) iter.Seq2[models.UsageData, error] {
	var consumed atomic.Bool

	return func(yield func(models.UsageData, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(models.UsageData{}, ErrStreamConsumed)
			return
		}

		ids := s.enabledProviders()
		if len(ids) == 0 {
			return
		}

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		type outcome struct {
			err  error
			data models.UsageData
		}
		// Buffered so no fetch blocks once the consumer has gone.
		results := make(chan outcome, len(ids))
		for _, id := range ids {
			go func() {
				data, err := s.fetch(streamCtx, id)
				results <- outcome{data: data, err: err}
			}()
		}

		for range ids {
			select {
			case <-ctx.Done():
				yield(models.UsageData{}, ctx.Err())
				return
			case r := <-results:
				if r.err != nil {
					yield(models.UsageData{}, r.err)
					return
				}
				if !yield(r.data, nil) {
					return
				}
			}
		}

		s.firstFetch.Store(false)
	}
}

// GetVersion returns codexbar's trimmed version output.
func (s *Service) GetVersion(ctx context.Context) (string, bool) {
	res, err := s.runner.Execute(ctx, s.tool+" --version")
	if err != nil {
		logger.Error("Failed to get codexbar version", "error", err)
		return "", false
	}
	if !res.Success {
		return "", false
	}
	return strings.TrimSpace(res.Stdout), true
}

// IsAvailable reports whether codexbar can be found on the shell host's PATH.
func (s *Service) IsAvailable(ctx context.Context) bool {
	res, err := s.runner.Execute(ctx, "which "+s.tool)
	if err != nil {
		logger.Debug("codexbar availability probe failed", "error", err)
		return false
	}
	return res.Success && strings.TrimSpace(res.Stdout) != ""
}

// enabledProviders returns the enabled, valid provider ids in ascending configured order.
func (s *Service) enabledProviders() []string {
	configs := lo.Filter(s.settings.Settings().Providers, func(p models.ProviderConfig, _ int) bool {
		return p.IsEnabled && providers.IsValid(p.ID)
	})
	slices.SortStableFunc(configs, func(a, b models.ProviderConfig) int {
		return a.Order - b.Order
	})
	return lo.Map(configs, func(p models.ProviderConfig, _ int) string {
		return p.ID
	})
}

// fetch resolves the source of an already validated id and runs fetchOne.
func (s *Service) fetch(ctx context.Context, id string) (models.UsageData, error) {
	source, err := providers.SourceFor(id)
	if err != nil {
		logger.Error("Failed to resolve provider source", "provider", id, "error", err)
		return s.errorRecord(id, msgUnexpected), nil
	}
	return s.fetchOne(ctx, id, source)
}

// fetchOne performs one per-provider acquisition. The error is non-nil only when ctx itself
// was cancelled; every other failure is returned as a record with Error set.
func (s *Service) fetchOne(ctx context.Context, provider string, source providers.Source) (data models.UsageData, err error) {
	start := time.Now()
	label := provider
	outcome := OutcomeError

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Failed to fetch usage", "provider", label, "panic", r, "stack", string(debug.Stack()))
			data, err, outcome = s.errorRecord(label, msgUnexpected), nil, OutcomeError
		}
		if err == nil {
			s.observe(label, outcome, time.Since(start))
		}
	}()

	// Ids are interpolated into a shell command; validate again at the point of use.
	id, err := providers.Normalize(provider)
	if err != nil {
		logger.Warn("Failed to fetch usage", "provider", provider, "error", err)
		return s.errorRecord(provider, msgUnexpected), nil
	}
	label = string(id)

	settings := s.settings.Settings()
	if settings.DeveloperMode {
		data, outcome = s.fetchSample(id)
		return data, nil
	}

	timeout := settings.Timeouts.FetchTimeout(source == providers.SourceCLI, s.firstFetch.Load())
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, runErr := s.runner.Execute(fetchCtx, s.usageCommand(id, source))
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.UsageData{}, ctxErr
		}
		if fetchCtx.Err() != nil || errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, context.Canceled) {
			logger.Debug("Usage fetch timed out", "provider", label, "timeout", timeout)
			outcome = OutcomeTimeout
			return s.errorRecord(label, msgTimedOut), nil
		}
		logger.Warn("Failed to fetch usage", "provider", label, "error", runErr)
		return s.errorRecord(label, msgUnexpected), nil
	}

	if res.Success && strings.TrimSpace(res.Stdout) != "" {
		list := parser.ParseList(res.Stdout)
		if len(list) > 0 {
			data = list[0]
			if data.Provider == "" {
				data.Provider = label
			}
			data.IsLoading = false
			s.cache.Set(label, data)
			logger.Debug("Fetched usage", "provider", label)
			outcome = OutcomeSuccess
			return data, nil
		}

		logger.Debug("Provider returned empty data", "provider", label)
		outcome = OutcomeEmpty
		return s.errorRecord(label, msgNoData), nil
	}

	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = fmt.Sprintf(msgCommandFailedFm, res.ExitCode)
	}
	logger.Debug("Usage fetch failed", "provider", label, "exit_code", res.ExitCode, "error", msg)
	outcome = OutcomeFailed
	return s.errorRecord(label, msg), nil
}

// fetchSample serves developer-mode data without touching the shell host.
func (s *Service) fetchSample(id providers.ID) (models.UsageData, Outcome) {
	label := string(id)
	logger.Debug("Developer mode: loading sample data", "provider", label)

	if s.samples != nil {
		if raw, ok := s.samples.LoadSampleJSON(label); ok && strings.TrimSpace(raw) != "" {
			if list := parser.ParseList(raw); len(list) > 0 {
				data := list[0]
				if data.Provider == "" {
					data.Provider = label
				}
				data.IsLoading = false
				s.cache.Set(label, data)
				return data, OutcomeSample
			}
		}
	}

	logger.Warn("Sample data not available (Developer mode)", "provider", label)
	return s.errorRecord(label, msgSampleMissing), OutcomeError
}

func (s *Service) statusCommand(id providers.ID, source providers.Source) string {
	return fmt.Sprintf("%s --provider %s --format json --source %s", s.tool, id, source)
}

func (s *Service) usageCommand(id providers.ID, source providers.Source) string {
	parts := []string{s.tool, "usage", "--provider", string(id), "--format", "json", "--source", string(source)}
	parts = append(parts, providers.ExtraArgs(id)...)
	return strings.Join(parts, " ")
}

func (s *Service) errorRecord(provider, message string) models.UsageData {
	return models.ErrorUsage(provider, message, s.now())
}

func (s *Service) observe(provider string, outcome Outcome, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveFetch(provider, outcome, d)
	}
}
