package models

import "time"

// SettingsVersion is written into new settings files.
const SettingsVersion = 1

// ProviderConfig is the user's configuration of one provider.
type ProviderConfig struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsEnabled   bool   `json:"isEnabled"`
	Order       int    `json:"order"`
}

// Default timeouts in seconds.
const (
	DefaultCommandTimeoutSeconds            = 30
	DefaultStatusCheckTimeoutSeconds        = 10
	DefaultCLIFirstFetchTimeoutSeconds      = 60
	DefaultCLITimeoutSeconds                = 45
	DefaultStandardFirstFetchTimeoutSeconds = 20
	DefaultStandardTimeoutSeconds           = 10
)

// TimeoutSettings holds the per-kind timeouts, in seconds.
type TimeoutSettings struct {
	CommandTimeoutSeconds            int `json:"wslCommandTimeoutSeconds"`
	StatusCheckTimeoutSeconds        int `json:"wslStatusCheckTimeoutSeconds"`
	CLIFirstFetchTimeoutSeconds      int `json:"cliProviderFirstFetchTimeoutSeconds"`
	CLITimeoutSeconds                int `json:"cliProviderTimeoutSeconds"`
	StandardFirstFetchTimeoutSeconds int `json:"standardProviderFirstFetchTimeoutSeconds"`
	StandardTimeoutSeconds           int `json:"standardProviderTimeoutSeconds"`
}

// DefaultTimeouts returns the stock timeout configuration.
func DefaultTimeouts() TimeoutSettings {
	return TimeoutSettings{
		CommandTimeoutSeconds:            DefaultCommandTimeoutSeconds,
		StatusCheckTimeoutSeconds:        DefaultStatusCheckTimeoutSeconds,
		CLIFirstFetchTimeoutSeconds:      DefaultCLIFirstFetchTimeoutSeconds,
		CLITimeoutSeconds:                DefaultCLITimeoutSeconds,
		StandardFirstFetchTimeoutSeconds: DefaultStandardFirstFetchTimeoutSeconds,
		StandardTimeoutSeconds:           DefaultStandardTimeoutSeconds,
	}
}

// FetchTimeout selects the per-provider deadline.
// cli providers are much slower, and the first fetch pays for the provider CLI's cold start.
func (t TimeoutSettings) FetchTimeout(cli, first bool) time.Duration {
	switch {
	case cli && first:
		return seconds(t.CLIFirstFetchTimeoutSeconds, DefaultCLIFirstFetchTimeoutSeconds)
	case cli:
		return seconds(t.CLITimeoutSeconds, DefaultCLITimeoutSeconds)
	case first:
		return seconds(t.StandardFirstFetchTimeoutSeconds, DefaultStandardFirstFetchTimeoutSeconds)
	default:
		return seconds(t.StandardTimeoutSeconds, DefaultStandardTimeoutSeconds)
	}
}

// CommandTimeout is the runner's own ceiling for a single command.
func (t TimeoutSettings) CommandTimeout() time.Duration {
	return seconds(t.CommandTimeoutSeconds, DefaultCommandTimeoutSeconds)
}

// StatusCheckTimeout bounds shell status probes.
func (t TimeoutSettings) StatusCheckTimeout() time.Duration {
	return seconds(t.StatusCheckTimeoutSeconds, DefaultStatusCheckTimeoutSeconds)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// NotificationSettings controls desktop notifications.
type NotificationSettings struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold"`
}

// Settings is the persisted user configuration.
type Settings struct {
	Providers              []ProviderConfig     `json:"providers"`
	GuideURL               string               `json:"codexBarGuideUrl,omitempty"`
	Timeouts               TimeoutSettings      `json:"timeouts"`
	Notifications          NotificationSettings `json:"notifications"`
	Version                int                  `json:"version"`
	RefreshIntervalSeconds int                  `json:"refreshIntervalSeconds"`
	CacheExpiryMinutes     int                  `json:"cacheExpiryMinutes"`
	DeveloperMode          bool                 `json:"developerModeEnabled"`
}

// Defaults.
const (
	DefaultRefreshIntervalSeconds = 120
	DefaultCacheExpiryMinutes     = 5
	DefaultNotifyThreshold        = 90
	DefaultGuideURL               = "https://github.com/steipete/CodexBar#installation"
)

// DefaultSettings returns the first-run configuration.
func DefaultSettings() Settings {
	return Settings{
		Version: SettingsVersion,
		Providers: []ProviderConfig{
			{ID: "claude", DisplayName: "Claude", IsEnabled: true, Order: 0},
			{ID: "codex", DisplayName: "Codex", IsEnabled: true, Order: 1},
			{ID: "gemini", DisplayName: "Gemini", IsEnabled: true, Order: 2},
		},
		RefreshIntervalSeconds: DefaultRefreshIntervalSeconds,
		CacheExpiryMinutes:     DefaultCacheExpiryMinutes,
		Timeouts:               DefaultTimeouts(),
		Notifications: NotificationSettings{
			Enabled:   true,
			Threshold: DefaultNotifyThreshold,
		},
		GuideURL: DefaultGuideURL,
	}
}

// RefreshInterval returns the periodic refresh interval.
func (s Settings) RefreshInterval() time.Duration {
	return seconds(s.RefreshIntervalSeconds, DefaultRefreshIntervalSeconds)
}

// CacheExpiry returns how long cached usage stays valid.
func (s Settings) CacheExpiry() time.Duration {
	m := s.CacheExpiryMinutes
	if m <= 0 {
		m = DefaultCacheExpiryMinutes
	}
	return time.Duration(m) * time.Minute
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	c := s
	c.Providers = make([]ProviderConfig, len(s.Providers))
	copy(c.Providers, s.Providers)
	return c
}
