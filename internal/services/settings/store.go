// Package settings provides the persisted user configuration with file watching.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
)

// EventType defines the type of settings event.
type EventType int

const (
	EventSettingsLoaded EventType = iota
	EventSettingsChanged
	EventError
)

// Event represents a settings store event.
type Event struct {
	Error error
	Type  EventType
}

// Store holds the current settings and keeps them in sync with the settings file.
type Store struct {
	mu            sync.RWMutex
	settings      models.Settings
	path          string
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	closeOnce     sync.Once
}

// DefaultPath returns the settings file location under the XDG config directory.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "codexbar-monitor", "settings.json")
}

// New loads the settings file, creating it with defaults on first run, and starts watching it.
// A malformed file is left untouched and defaults are used until it is fixed.
func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}

	s := &Store{
		settings:  models.DefaultSettings(),
		path:      path,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	loaded, err := s.readFile()
	switch {
	case err == nil:
		s.settings = loaded
		logger.Info("Settings loaded", "path", path)
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Settings file not found, using defaults", "path", path)
		if err := s.save(s.settings); err != nil {
			return nil, fmt.Errorf("failed to create settings file: %w", err)
		}
	default:
		logger.Error("Failed to load settings", "path", path, "error", err)
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start settings watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventSettingsLoaded})
	return s, nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Events returns the event channel for subscribing to settings changes.
func (s *Store) Events() <-chan Event {
	return s.eventChan
}

// Update applies fn to a copy of the settings and persists the result.
// Invalid providers introduced by fn are dropped before saving.
func (s *Store) Update(fn func(*models.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Clone()
	fn(&next)
	next = sanitize(next)

	if err := s.save(next); err != nil {
		return err
	}
	s.settings = next

	logger.Info("Settings saved", "path", s.path)
	s.sendEvent(Event{Type: EventSettingsChanged})
	return nil
}

// Reset restores and persists the default settings.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := models.DefaultSettings()
	if err := s.save(defaults); err != nil {
		return err
	}
	s.settings = defaults

	logger.Info("Settings reset to defaults")
	s.sendEvent(Event{Type: EventSettingsChanged})
	return nil
}

// readFile decodes the settings file over the defaults so missing keys keep their default values.
func (s *Store) readFile() (models.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return models.Settings{}, err
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return sanitize(settings), nil
}

// sanitize drops providers outside the registry. Provider ids end up in shell commands.
func sanitize(settings models.Settings) models.Settings {
	valid := lo.Filter(settings.Providers, func(p models.ProviderConfig, _ int) bool {
		return providers.IsValid(p.ID)
	})
	if dropped := len(settings.Providers) - len(valid); dropped > 0 {
		logger.Warn("Filtered invalid providers from settings", "count", dropped)
	}
	settings.Providers = valid
	return settings
}

// save writes settings atomically. Callers hold the lock or own the store exclusively.
func (s *Store) save(settings models.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.path); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// startWatcher watches the settings directory so replaced files are picked up too.
func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.mu.Lock()
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
				s.mu.Unlock()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads the file after an external edit.
// Our own saves come back through the watcher as well and are ignored because nothing changed.
func (s *Store) handleFileChange() {
	select {
	case <-s.stopChan:
		return
	default:
	}

	loaded, err := s.readFile()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		logger.Warn("Failed to reload settings", "path", s.path, "error", err)
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	s.mu.Lock()
	if reflect.DeepEqual(s.settings, loaded) {
		s.mu.Unlock()
		return
	}
	s.settings = loaded
	s.mu.Unlock()

	logger.Info("Settings reloaded", "path", s.path)
	s.sendEvent(Event{Type: EventSettingsChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Store) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)

		s.mu.Lock()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.mu.Unlock()

		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
