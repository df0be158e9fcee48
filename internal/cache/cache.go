// Package cache keeps the last known good usage record of every provider.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/providers"
)

// Persister stores cache snapshots between runs.
type Persister interface {
	SaveCache(ctx context.Context, entries map[string]models.UsageData, savedAt time.Time) error
	LoadCache(ctx context.Context) (map[string]models.UsageData, time.Time, error)
}

// Cache is an in-memory usage cache with read-time expiry. It is safe for concurrent use.
type Cache struct {
	store     *ristretto.Cache[string, models.UsageData]
	expiry    func() time.Duration
	persister Persister
	now       func() time.Time
}

// New creates a cache. expiry is consulted on every read so settings changes apply immediately;
// nil uses the default expiry. persister may be nil, which makes Save and Load no-ops.
func New(expiry func() time.Duration, persister Persister) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config[string, models.UsageData]{
		NumCounters:        1e3,
		MaxCost:            1 << 10,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create usage cache: %w", err)
	}

	if expiry == nil {
		expiry = func() time.Duration { return models.DefaultCacheExpiryMinutes * time.Minute }
	}

	return &Cache{
		store:     store,
		expiry:    expiry,
		persister: persister,
		now:       time.Now,
	}, nil
}

func key(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Get returns a copy of the cached record if it is younger than the expiry, otherwise nil.
func (c *Cache) Get(provider string) *models.UsageData {
	data, ok := c.store.Get(key(provider))
	if !ok {
		return nil
	}
	if c.now().Sub(data.FetchedAt) >= c.expiry() {
		logger.Debug("Cache expired", "provider", provider)
		return nil
	}
	clone := data.Clone()
	return &clone
}

// Set stores data for provider, replacing any previous record.
func (c *Cache) Set(provider string, data models.UsageData) {
	if !c.store.Set(key(provider), data.Clone(), 1) {
		logger.Warn("Cache rejected usage record", "provider", provider)
		return
	}
	// Make the write visible to the next Get.
	c.store.Wait()
	logger.Debug("Cached usage", "provider", provider)
}

// Clear drops every record.
func (c *Cache) Clear() {
	c.store.Clear()
	logger.Debug("Cache cleared")
}

// GetAll returns every unexpired record keyed by provider id.
func (c *Cache) GetAll() map[string]models.UsageData {
	out := make(map[string]models.UsageData)
	for _, id := range providers.All() {
		if data := c.Get(string(id)); data != nil {
			out[string(id)] = *data
		}
	}
	return out
}

// entries returns every record regardless of expiry.
func (c *Cache) entries() map[string]models.UsageData {
	out := make(map[string]models.UsageData)
	for _, id := range providers.All() {
		if data, ok := c.store.Get(string(id)); ok {
			out[string(id)] = data.Clone()
		}
	}
	return out
}

// Save persists every record, expired or not.
func (c *Cache) Save(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	entries := c.entries()
	if err := c.persister.SaveCache(ctx, entries, c.now().UTC()); err != nil {
		return fmt.Errorf("failed to save usage cache: %w", err)
	}
	logger.Debug("Cache saved", "entries", len(entries))
	return nil
}

// Load restores a persisted snapshot unless it is older than the expiry.
// Records of unknown providers are dropped.
func (c *Cache) Load(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}

	entries, savedAt, err := c.persister.LoadCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to load usage cache: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	if c.now().Sub(savedAt) > c.expiry() {
		logger.Debug("Persisted cache expired, ignoring", "saved_at", savedAt)
		return nil
	}

	for provider, data := range entries {
		id, err := providers.Normalize(provider)
		if err != nil {
			logger.Warn("Dropping cached record of unknown provider", "provider", provider)
			continue
		}
		c.Set(string(id), data)
	}
	logger.Debug("Cache loaded", "entries", len(entries))
	return nil
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.store.Close()
}
