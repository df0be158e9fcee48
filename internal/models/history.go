package models

import "time"

// TimeRange represents the selected history time range.
type TimeRange int

const (
	// TimeRange24Hours shows data from the last 24 hours.
	TimeRange24Hours TimeRange = iota
	// TimeRange7Days shows data from the last 7 days.
	TimeRange7Days
	// TimeRange30Days shows data from the last 30 days.
	TimeRange30Days
)

// String returns the display name for a time range.
func (t TimeRange) String() string {
	switch t {
	case TimeRange24Hours:
		return "24 Hours"
	case TimeRange7Days:
		return "7 Days"
	case TimeRange30Days:
		return "30 Days"
	default:
		return "Unknown"
	}
}

// Duration returns the lookback of the range. Unknown ranges use 24 hours.
func (t TimeRange) Duration() time.Duration {
	switch t {
	case TimeRange7Days:
		return 7 * 24 * time.Hour
	case TimeRange30Days:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseTimeRange maps "24h", "7d" and "30d" to a TimeRange.
func ParseTimeRange(s string) (TimeRange, bool) {
	switch s {
	case "24h", "1d":
		return TimeRange24Hours, true
	case "7d":
		return TimeRange7Days, true
	case "30d":
		return TimeRange30Days, true
	default:
		return TimeRange24Hours, false
	}
}

// UsageSnapshot is one recorded usage observation of a provider.
// Percent fields are -1 when the window was absent.
type UsageSnapshot struct {
	Timestamp       time.Time  `json:"timestamp"`
	SessionResetAt  *time.Time `json:"sessionResetAt,omitempty"`
	WeeklyResetAt   *time.Time `json:"weeklyResetAt,omitempty"`
	Provider        string     `json:"provider"`
	Plan            string     `json:"plan,omitempty"`
	Error           string     `json:"error,omitempty"`
	ID              int64      `json:"id"`
	SessionPercent  float64    `json:"sessionPercent"`
	WeeklyPercent   float64    `json:"weeklyPercent"`
	TertiaryPercent float64    `json:"tertiaryPercent"`
}

// SnapshotFromUsage flattens u into a snapshot taken at ts.
func SnapshotFromUsage(u UsageData, ts time.Time) UsageSnapshot {
	s := UsageSnapshot{
		Timestamp:       ts,
		Provider:        u.Provider,
		Plan:            u.Plan,
		Error:           u.Error,
		SessionPercent:  -1,
		WeeklyPercent:   -1,
		TertiaryPercent: -1,
	}
	if u.Session != nil {
		s.SessionPercent = u.Session.Percent()
		s.SessionResetAt = u.Session.ResetAt
	}
	if u.Weekly != nil {
		s.WeeklyPercent = u.Weekly.Percent()
		s.WeeklyResetAt = u.Weekly.ResetAt
	}
	if u.Tertiary != nil {
		s.TertiaryPercent = u.Tertiary.Percent()
	}
	return s
}

// HasSession reports whether the snapshot recorded a session window.
func (s UsageSnapshot) HasSession() bool {
	return s.SessionPercent >= 0
}
