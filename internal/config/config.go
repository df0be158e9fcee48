// Package config contains everything related to configuration
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const appName = "codexbar-monitor"

// Config holds the process configuration. User preferences live in the settings file instead.
type Config struct {
	SettingsPath          string
	DatabasePath          string
	SamplesDir            string
	ToolBin               string
	WSLDistro             string
	LogLevel              string
	LogFile               string
	MetricsAddr           string
	ManualRefreshInterval time.Duration
	UseWSL                bool
}

// Default values
const (
	defaultToolBin               = "codexbar"
	defaultLogLevel              = "info"
	defaultMetricsAddr           = "127.0.0.1:9464"
	defaultManualRefreshInterval = 5 * time.Second
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		SettingsPath:          getEnvString("SETTINGS_PATH", DefaultSettingsPath()),
		DatabasePath:          getEnvString("DATABASE_PATH", DefaultDatabasePath()),
		SamplesDir:            getEnvString("SAMPLES_DIR", ""),
		ToolBin:               getEnvString("CODEXBAR_BIN", defaultToolBin),
		WSLDistro:             getEnvString("WSL_DISTRO", ""),
		UseWSL:                getEnvBool("USE_WSL", runtime.GOOS == "windows"),
		LogLevel:              getEnvString("LOG_LEVEL", defaultLogLevel),
		LogFile:               getEnvString("LOG_FILE", ""),
		MetricsAddr:           getEnvString("METRICS_ADDR", defaultMetricsAddr),
		ManualRefreshInterval: getEnvDuration("MANUAL_REFRESH_INTERVAL", defaultManualRefreshInterval),
	}

	if err := ensureDir(filepath.Dir(cfg.SettingsPath)); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	paths = append(paths, filepath.Join(xdg.ConfigHome, appName, ".env"))

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+appName, ".env"))
	}

	return paths
}

// DefaultSettingsPath returns the settings file location under the XDG config directory.
func DefaultSettingsPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "settings.json")
}

// DefaultDatabasePath returns the SQLite database location under the XDG data directory.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, appName, "usage.db")
}

// DefaultLogPath is where interactive commands log when LOG_FILE is unset.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
// Accepts the forms understood by strconv.ParseBool plus "yes" and "no".
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
