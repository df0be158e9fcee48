// Package samples serves canned codexbar output for developer mode.
package samples

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
)

//go:embed data/*.json
var embedded embed.FS

// Loader reads sample JSON from a directory, falling back to the embedded samples.
type Loader struct {
	dir string
}

// NewLoader creates a loader. An empty dir serves only the embedded samples.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadSampleJSON returns the sample document for provider.
func (l *Loader) LoadSampleJSON(provider string) (string, bool) {
	id, err := providers.Normalize(provider)
	if err != nil {
		logger.Error("Failed to load sample data", "provider", provider, "error", err)
		return "", false
	}
	name := string(id) + ".json"

	if l.dir != "" {
		path := filepath.Join(l.dir, name)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			logger.Info("Loaded sample data", "provider", id, "path", path)
			return string(data), true
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug("Sample file not found, using embedded sample", "path", path)
		default:
			logger.Error("Failed to read sample data", "path", path, "error", err)
			return "", false
		}
	}

	data, err := embedded.ReadFile("data/" + name)
	if err != nil {
		logger.Warn("Sample data file not found", "provider", id)
		return "", false
	}
	return string(data), true
}
