// Package models defines data structures and domain types.
package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultWindowLimit is the limit every parsed window is normalized to; Used is then a percentage.
const DefaultWindowLimit = 100

// UsageWindow represents consumption within one rate-limit window.
type UsageWindow struct {
	ResetAt       *time.Time `json:"resetAt,omitempty"`
	ResetIn       string     `json:"resetIn,omitempty"`
	Used          int        `json:"used"`
	Limit         int        `json:"limit"`
	WindowMinutes int        `json:"windowMinutes,omitempty"`
}

// Percent returns Used as a percentage of Limit, or 0 when Limit is not positive.
func (w UsageWindow) Percent() float64 {
	if w.Limit <= 0 {
		return 0
	}
	return float64(w.Used) / float64(w.Limit) * 100
}

// PercentText formats Percent with no decimals.
func (w UsageWindow) PercentText() string {
	return fmt.Sprintf("%.0f%%", w.Percent())
}

// TimeUntilReset returns the time left until the window resets.
// The boolean is false when no reset time is known.
func (w UsageWindow) TimeUntilReset(now time.Time) (time.Duration, bool) {
	if w.ResetAt == nil {
		return 0, false
	}
	return w.ResetAt.Sub(now), true
}

// UsageData is the normalized usage record of one provider.
type UsageData struct {
	FetchedAt time.Time    `json:"fetchedAt"`
	Session   *UsageWindow `json:"session,omitempty"`
	Weekly    *UsageWindow `json:"weekly,omitempty"`
	Tertiary  *UsageWindow `json:"tertiary,omitempty"`
	Provider  string       `json:"provider"`
	Plan      string       `json:"plan,omitempty"`
	Status    string       `json:"status,omitempty"`
	Error     string       `json:"error,omitempty"`
	IsLoading bool         `json:"isLoading,omitempty"`
}

// HasError reports whether the record carries an error message.
func (u UsageData) HasError() bool {
	return u.Error != ""
}

// IsStale reports whether the record is older than expiry at now.
func (u UsageData) IsStale(now time.Time, expiry time.Duration) bool {
	return now.Sub(u.FetchedAt) > expiry
}

// SessionLabel is the display name of the primary window.
func (u UsageData) SessionLabel() string {
	if strings.EqualFold(u.Provider, "gemini") {
		return "Pro"
	}
	return "Session"
}

// WeeklyLabel is the display name of the secondary window.
func (u UsageData) WeeklyLabel() string {
	if strings.EqualFold(u.Provider, "gemini") {
		return "Flash"
	}
	return "Weekly"
}

// TertiaryLabel is the display name of the tertiary window.
func (u UsageData) TertiaryLabel() string {
	if strings.EqualFold(u.Provider, "claude") {
		return "Current week (Sonnet)"
	}
	return "Additional"
}

// LabeledWindow pairs a window with its provider-specific label.
type LabeledWindow struct {
	Window *UsageWindow
	Label  string
	Kind   string
}

// Window kinds as stored in snapshots and metrics labels.
const (
	WindowSession  = "session"
	WindowWeekly   = "weekly"
	WindowTertiary = "tertiary"
)

// Windows returns the present windows in display order.
func (u UsageData) Windows() []LabeledWindow {
	var out []LabeledWindow
	if u.Session != nil {
		out = append(out, LabeledWindow{Window: u.Session, Label: u.SessionLabel(), Kind: WindowSession})
	}
	if u.Weekly != nil {
		out = append(out, LabeledWindow{Window: u.Weekly, Label: u.WeeklyLabel(), Kind: WindowWeekly})
	}
	if u.Tertiary != nil {
		out = append(out, LabeledWindow{Window: u.Tertiary, Label: u.TertiaryLabel(), Kind: WindowTertiary})
	}
	return out
}

// Clone returns a deep copy so cached records never share windows with callers.
func (u UsageData) Clone() UsageData {
	c := u
	c.Session = cloneWindow(u.Session)
	c.Weekly = cloneWindow(u.Weekly)
	c.Tertiary = cloneWindow(u.Tertiary)
	return c
}

func cloneWindow(w *UsageWindow) *UsageWindow {
	if w == nil {
		return nil
	}
	c := *w
	if w.ResetAt != nil {
		t := *w.ResetAt
		c.ResetAt = &t
	}
	return &c
}

// ErrorUsage builds a synthetic error record for provider.
func ErrorUsage(provider, message string, now time.Time) UsageData {
	return UsageData{
		Provider:  provider,
		Error:     message,
		FetchedAt: now,
	}
}
