package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/cache"
	"github.com/j-veylop/codexbar-monitor/internal/config"
	"github.com/j-veylop/codexbar-monitor/internal/db"
	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/metrics"
	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/samples"
	"github.com/j-veylop/codexbar-monitor/internal/services/monitor"
	"github.com/j-veylop/codexbar-monitor/internal/services/settings"
	"github.com/j-veylop/codexbar-monitor/internal/services/trend"
	"github.com/j-veylop/codexbar-monitor/internal/services/usage"
	"github.com/j-veylop/codexbar-monitor/internal/shell"
)

// deps holds every long-lived collaborator of a command.
type deps struct {
	cfg      *config.Config
	settings *settings.Store
	db       *db.DB
	cache    *cache.Cache
	runner   *shell.Runner
	usage    *usage.Service
	logFile  *os.File
}

// openDeps wires the acquisition stack. When logToFile is set, logs go to the
// log file so they do not corrupt a full-screen view.
func openDeps(ctx context.Context, cfg *config.Config, logToFile bool) (*deps, error) {
	d := &deps{cfg: cfg}

	if err := d.setupLogging(logToFile); err != nil {
		return nil, err
	}

	store, err := settings.New(cfg.SettingsPath)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	d.settings = store

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d.db = database

	c, err := cache.New(func() time.Duration { return store.Settings().CacheExpiry() }, database)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.cache = c
	if err := c.Load(ctx); err != nil {
		logger.Warn("Failed to restore usage cache", "error", err)
	}

	d.runner = shell.New(shell.Config{
		Timeouts: func() models.TimeoutSettings { return store.Settings().Timeouts },
		Distro:   cfg.WSLDistro,
		UseWSL:   cfg.UseWSL,
	})

	svc, err := usage.New(d.runner, c, store, samples.NewLoader(cfg.SamplesDir), usage.Config{
		Observer: metrics.Recorder{},
		Tool:     cfg.ToolBin,
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.usage = svc

	logger.Debug("Dependencies ready",
		"settings", cfg.SettingsPath,
		"database", cfg.DatabasePath,
		"wsl", d.runner.UsesWSL(),
		"tool", svc.Tool(),
	)
	return d, nil
}

func (d *deps) setupLogging(toFile bool) error {
	path := d.cfg.LogFile
	if path == "" && toFile {
		path = config.DefaultLogPath()
	}
	if path == "" {
		logger.Setup(d.cfg.LogLevel, os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.logFile = f
	logger.Setup(d.cfg.LogLevel, f)
	return nil
}

// newMonitor builds a monitor over the acquisition stack.
func (d *deps) newMonitor(notify bool) *monitor.Monitor {
	var notifier monitor.Notifier
	if notify {
		notifier = monitor.DesktopNotifier{}
	}
	return monitor.New(d.usage, d.settings, monitor.Config{
		Store:                 d.db,
		Projector:             trend.New(d.db),
		Cache:                 d.cache,
		Notifier:              notifier,
		ManualRefreshInterval: d.cfg.ManualRefreshInterval,
	})
}

// followSettings tells mon about settings file changes until ctx is done.
func (d *deps) followSettings(ctx context.Context, mon *monitor.Monitor) {
	events := d.settings.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case settings.EventSettingsChanged:
				logger.Info("Settings changed")
				mon.SettingsChanged()
			case settings.EventError:
				logger.Warn("Settings file could not be reloaded", "error", ev.Error)
			}
		}
	}
}

// recordResults stores successful one-shot results as history snapshots and persists the cache.
func (d *deps) recordResults(ctx context.Context, results []models.UsageData) {
	now := time.Now().UTC()
	for _, u := range results {
		if u.HasError() {
			continue
		}
		s := models.SnapshotFromUsage(u, now)
		if err := d.db.InsertSnapshot(ctx, &s); err != nil {
			logger.Warn("Failed to record usage snapshot", "provider", u.Provider, "error", err)
		}
	}
	if err := d.cache.Save(ctx); err != nil {
		logger.Warn("Failed to persist usage cache", "error", err)
	}
}

// Close releases everything opened by openDeps.
func (d *deps) Close() error {
	var errs []error
	if d.cache != nil {
		d.cache.Close()
	}
	if d.settings != nil {
		errs = append(errs, d.settings.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	if d.logFile != nil {
		logger.Setup(d.cfg.LogLevel, os.Stderr)
		errs = append(errs, d.logFile.Close())
	}
	return errors.Join(errs...)
}
