// Package monitor runs periodic usage refreshes and fans the results out to subscribers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/j-veylop/codexbar-monitor/internal/db"
	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/metrics"
	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
)

type (
	// RefreshStartedEvent is emitted when a refresh batch begins.
	RefreshStartedEvent struct {
		StartedAt time.Time
		BatchID   string
	}

	// UsageUpdatedEvent is emitted for every provider result of a batch.
	UsageUpdatedEvent struct {
		Projection *models.WindowProjection
		BatchID    string
		Usage      models.UsageData
	}

	// RefreshCompletedEvent is emitted when every provider of a batch has reported.
	RefreshCompletedEvent struct {
		BatchID  string
		Count    int
		Duration time.Duration
	}

	// ErrorEvent is emitted when a refresh or one of its side effects fails.
	ErrorEvent struct {
		Error   error
		Service string
	}
)

// Event is the interface implemented by all monitor events.
type Event interface {
	isMonitorEvent()
}

func (RefreshStartedEvent) isMonitorEvent()   {}
func (UsageUpdatedEvent) isMonitorEvent()     {}
func (RefreshCompletedEvent) isMonitorEvent() {}
func (ErrorEvent) isMonitorEvent()            {}

// ErrRefreshInProgress is returned by Refresh while another refresh is running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

const (
	// resetDropPoints is the fall in session percent reported as a window reset.
	resetDropPoints = 20.0
	pruneInterval   = time.Hour

	// DefaultManualRefreshInterval limits how often users can force a refresh.
	DefaultManualRefreshInterval = 5 * time.Second
)

// UsageSource streams one batch of provider results.
type UsageSource interface {
	GetAllUsageStream(ctx context.Context) iter.Seq2[models.UsageData, error]
}

// SettingsSource exposes the current settings.
type SettingsSource interface {
	Settings() models.Settings
}

// SnapshotStore records usage history.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s *models.UsageSnapshot) error
	PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error)
}

// Projector estimates session exhaustion.
type Projector interface {
	Project(ctx context.Context, current models.UsageData) (models.WindowProjection, error)
}

// CacheSaver persists the usage cache.
type CacheSaver interface {
	Save(ctx context.Context) error
}

// Notifier delivers desktop notifications.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier sends notifications through the OS notification center.
type DesktopNotifier struct{}

// Notify implements Notifier.
func (DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Config wires optional collaborators. Nil fields disable the matching side effect.
type Config struct {
	Store                 SnapshotStore
	Projector             Projector
	Cache                 CacheSaver
	Notifier              Notifier
	ManualRefreshInterval time.Duration
}

// Monitor keeps the latest usage of every provider up to date.
type Monitor struct {
	mu          sync.RWMutex
	usage       UsageSource
	settings    SettingsSource
	cfg         Config
	latest      map[string]models.UsageData
	lastGood    map[string]models.UsageData
	subscribers []chan Event
	limiter     *rate.Limiter
	refreshChan chan struct{}
	resetChan   chan struct{}
	stopChan    chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	refreshing  atomic.Bool
	closeOnce   sync.Once
	lastPrune   time.Time
	now         func() time.Time
}

// New creates a monitor. Call Start to begin periodic refreshes.
func New(usage UsageSource, settings SettingsSource, cfg Config) *Monitor {
	interval := cfg.ManualRefreshInterval
	if interval <= 0 {
		interval = DefaultManualRefreshInterval
	}

	return &Monitor{
		usage:       usage,
		settings:    settings,
		cfg:         cfg,
		latest:      make(map[string]models.UsageData),
		lastGood:    make(map[string]models.UsageData),
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		refreshChan: make(chan struct{}, 1),
		resetChan:   make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start refreshes immediately and then on every refresh interval until ctx is done or Close is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.refreshLogged(ctx)

	interval := m.settings.Settings().RefreshInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refreshLogged(ctx)

		case <-m.refreshChan:
			m.refreshLogged(ctx)

		case <-m.resetChan:
			if next := m.settings.Settings().RefreshInterval(); next != interval {
				logger.Info("Refresh interval changed", "from", interval, "to", next)
				interval = next
				ticker.Reset(interval)
			}

		case <-ctx.Done():
			return

		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) refreshLogged(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
		logger.Warn("Usage refresh failed", "error", err)
	}
}

// RequestRefresh asks the running loop for an immediate refresh.
// It reports false when the request was rate limited.
func (m *Monitor) RequestRefresh() bool {
	if !m.limiter.Allow() {
		logger.Debug("Manual refresh rate limited")
		return false
	}
	select {
	case m.refreshChan <- struct{}{}:
	default:
	}
	return true
}

// SettingsChanged re-reads the refresh interval on the next loop iteration.
func (m *Monitor) SettingsChanged() {
	select {
	case m.resetChan <- struct{}{}:
	default:
	}
}

// IsRefreshing reports whether a batch is in flight.
func (m *Monitor) IsRefreshing() bool {
	return m.refreshing.Load()
}

// Refresh runs one batch synchronously. Results are broadcast as they arrive.
func (m *Monitor) Refresh(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer m.refreshing.Store(false)

	batchID := uuid.NewString()
	start := m.now()
	logger.Debug("Refresh started", "batch_id", batchID)
	m.broadcast(RefreshStartedEvent{BatchID: batchID, StartedAt: start})

	settings := m.settings.Settings()
	count := 0
	for data, err := range m.usage.GetAllUsageStream(ctx) {
		if err != nil {
			m.broadcast(ErrorEvent{Service: "usage", Error: err})
			return fmt.Errorf("failed to refresh usage: %w", err)
		}
		count++
		m.handleResult(ctx, batchID, settings, data)
	}

	m.afterBatch(ctx)

	duration := m.now().Sub(start)
	logger.Info("Refresh completed", "batch_id", batchID, "providers", count, "duration", duration)
	m.broadcast(RefreshCompletedEvent{BatchID: batchID, Count: count, Duration: duration})
	return nil
}

func (m *Monitor) handleResult(ctx context.Context, batchID string, settings models.Settings, data models.UsageData) {
	m.mu.Lock()
	prev, hadPrev := m.lastGood[data.Provider]
	m.latest[data.Provider] = data
	if !data.HasError() {
		m.lastGood[data.Provider] = data
	}
	m.mu.Unlock()

	event := UsageUpdatedEvent{BatchID: batchID, Usage: data}

	if !data.HasError() {
		metrics.RecordUsage(data)
		m.recordSnapshot(ctx, data)
		event.Projection = m.project(ctx, data)
		if hadPrev {
			m.checkNotifications(settings, prev, data)
		}
	}

	m.broadcast(event)
}

func (m *Monitor) recordSnapshot(ctx context.Context, data models.UsageData) {
	if m.cfg.Store == nil {
		return
	}
	snap := models.SnapshotFromUsage(data, m.now())
	if err := m.cfg.Store.InsertSnapshot(ctx, &snap); err != nil {
		logger.Error("failed to record usage snapshot", "provider", data.Provider, "error", err)
		m.broadcast(ErrorEvent{Service: "db", Error: err})
	}
}

func (m *Monitor) project(ctx context.Context, data models.UsageData) *models.WindowProjection {
	if m.cfg.Projector == nil || data.Session == nil {
		return nil
	}
	proj, err := m.cfg.Projector.Project(ctx, data)
	if err != nil {
		logger.Warn("failed to project usage", "provider", data.Provider, "error", err)
		return nil
	}
	metrics.RecordProjection(proj, m.now())
	return &proj
}

// afterBatch persists the cache and prunes old history.
func (m *Monitor) afterBatch(ctx context.Context) {
	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.Save(ctx); err != nil {
			logger.Warn("failed to save usage cache", "error", err)
		}
	}

	if m.cfg.Store == nil || m.now().Sub(m.lastPrune) < pruneInterval {
		return
	}
	m.lastPrune = m.now()
	removed, err := m.cfg.Store.PruneSnapshots(ctx, m.now().Add(-db.SnapshotRetention))
	if err != nil {
		logger.Warn("failed to prune usage snapshots", "error", err)
		return
	}
	if removed > 0 {
		logger.Debug("Pruned usage snapshots", "removed", removed)
	}
}

func (m *Monitor) checkNotifications(settings models.Settings, prev, next models.UsageData) {
	if m.cfg.Notifier == nil || !settings.Notifications.Enabled {
		return
	}
	if prev.Session == nil || next.Session == nil {
		return
	}

	threshold := float64(settings.Notifications.Threshold)
	if threshold <= 0 {
		threshold = models.DefaultNotifyThreshold
	}

	oldPercent := prev.Session.Percent()
	newPercent := next.Session.Percent()
	name := m.displayName(settings, next.Provider)

	// Only notify when crossing the threshold upwards
	if oldPercent < threshold && newPercent >= threshold {
		title := fmt.Sprintf("High usage: %s", name)
		body := fmt.Sprintf("%s is at %.0f%% (threshold %.0f%%)", next.SessionLabel(), newPercent, threshold)
		m.notify(title, body)
	}

	if oldPercent-newPercent > resetDropPoints {
		title := fmt.Sprintf("Usage reset: %s", name)
		body := fmt.Sprintf("%s has been reset.", next.SessionLabel())
		m.notify(title, body)
	}
}

func (m *Monitor) notify(title, body string) {
	if err := m.cfg.Notifier.Notify(title, body); err != nil {
		logger.Warn("failed to send notification", "title", title, "error", err)
	}
}

func (m *Monitor) displayName(settings models.Settings, id string) string {
	for _, p := range settings.Providers {
		if p.ID == id && p.DisplayName != "" {
			return p.DisplayName
		}
	}
	return providers.DisplayName(id)
}

// Latest returns the most recent result of every provider, errors included.
func (m *Monitor) Latest() map[string]models.UsageData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.UsageData, len(m.latest))
	maps.Copy(out, m.latest)
	return out
}

// broadcast sends an event to all subscribers.
func (m *Monitor) broadcast(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving monitor events.
func (m *Monitor) Subscribe() chan Event {
	ch := make(chan Event, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// WaitForEvent returns a tea.Cmd that waits for the next event on ch.
func WaitForEvent(ch <-chan Event) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Unsubscribe removes and closes a subscriber channel.
func (m *Monitor) Unsubscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close stops the refresh loop, waits for it to exit and closes all subscriber channels.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopChan)
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()
	})
	return nil
}
