// Package app implements the interactive watch view.
package app

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	default:
		return "unknown"
	}
}

const maxNotifications = 5

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	Message   string
	ID        int
	Duration  time.Duration
	Type      NotificationType
}

// IsExpired reports whether the notification has outlived its duration at now.
func (n Notification) IsExpired(now time.Time) bool {
	if n.Duration <= 0 {
		return false
	}
	return now.Sub(n.CreatedAt) > n.Duration
}

// ProviderEntry is the display state of one provider.
type ProviderEntry struct {
	Usage      *models.UsageData
	Projection *models.WindowProjection
	ID         string
	Name       string
	Loading    bool
}

// State holds everything the view renders. It is owned by the Bubble Tea
// update loop and needs no locking.
type State struct {
	entries         map[string]*ProviderEntry
	LastUpdated     time.Time
	LastBatchID     string
	order           []string
	notifications   []Notification
	notificationSeq int
	Refreshing      bool
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		entries: make(map[string]*ProviderEntry),
	}
}

// SetProviders replaces the displayed provider list with the enabled providers
// of settings. Results of providers that remain enabled are kept.
func (s *State) SetProviders(settings models.Settings) {
	enabled := lo.Filter(settings.Providers, func(p models.ProviderConfig, _ int) bool {
		return p.IsEnabled && providers.IsValid(p.ID)
	})
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Order < enabled[j].Order
	})

	entries := make(map[string]*ProviderEntry, len(enabled))
	order := make([]string, 0, len(enabled))
	for _, p := range enabled {
		id := string(lo.Must(providers.Normalize(p.ID)))
		if _, dup := entries[id]; dup {
			continue
		}
		name := p.DisplayName
		if name == "" {
			name = providers.DisplayName(id)
		}
		e, ok := s.entries[id]
		if !ok {
			e = &ProviderEntry{ID: id}
		}
		e.Name = name
		entries[id] = e
		order = append(order, id)
	}
	s.entries = entries
	s.order = order
}

// Entries returns the displayed providers in order.
func (s *State) Entries() []*ProviderEntry {
	return lo.Map(s.order, func(id string, _ int) *ProviderEntry {
		return s.entries[id]
	})
}

// Entry returns the state of one provider.
func (s *State) Entry(id string) (*ProviderEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// StartBatch marks every displayed provider as loading.
func (s *State) StartBatch(batchID string) {
	s.Refreshing = true
	s.LastBatchID = batchID
	for _, e := range s.entries {
		e.Loading = true
	}
}

// SetUsage stores a result. Results of providers that are not displayed are ignored.
func (s *State) SetUsage(u models.UsageData, proj *models.WindowProjection) bool {
	e, ok := s.entries[u.Provider]
	if !ok {
		return false
	}
	u = u.Clone()
	e.Usage = &u
	if proj != nil {
		p := *proj
		e.Projection = &p
	} else if u.HasError() {
		e.Projection = nil
	}
	e.Loading = false
	return true
}

// FinishBatch clears loading flags and records the completion time.
func (s *State) FinishBatch(at time.Time) {
	s.Refreshing = false
	s.LastUpdated = at
	for _, e := range s.entries {
		e.Loading = false
	}
}

// AnyLoading reports whether any provider is still waiting for its result.
func (s *State) AnyLoading() bool {
	return lo.SomeBy(lo.Values(s.entries), func(e *ProviderEntry) bool {
		return e.Loading
	})
}

// AddNotification adds a notification and returns its ID.
func (s *State) AddNotification(t NotificationType, message string, duration time.Duration, now time.Time) int {
	s.notificationSeq++
	s.notifications = append(s.notifications, Notification{
		ID:        s.notificationSeq,
		Type:      t,
		Message:   message,
		CreatedAt: now,
		Duration:  duration,
	})
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}
	return s.notificationSeq
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id int) {
	s.notifications = lo.Reject(s.notifications, func(n Notification, _ int) bool {
		return n.ID == id
	})
}

// ClearExpiredNotifications removes all notifications expired at now.
func (s *State) ClearExpiredNotifications(now time.Time) {
	s.notifications = lo.Reject(s.notifications, func(n Notification, _ int) bool {
		return n.IsExpired(now)
	})
}

// Notifications returns a copy of the active notifications.
func (s *State) Notifications() []Notification {
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}
