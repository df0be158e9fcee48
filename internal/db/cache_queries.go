package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// SaveCache replaces the persisted cache with entries, stamped with savedAt.
func (db *DB) SaveCache(ctx context.Context, entries map[string]models.UsageData, savedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM usage_cache"); err != nil {
		return fmt.Errorf("failed to clear usage cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_cache (provider, payload, fetched_at, saved_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for provider, data := range entries {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode cache entry %s: %w", provider, err)
		}
		if _, err := stmt.ExecContext(ctx, provider, string(payload), data.FetchedAt.Unix(), savedAt.Unix()); err != nil {
			return fmt.Errorf("failed to save cache entry %s: %w", provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage cache: %w", err)
	}
	return nil
}

// LoadCache returns the persisted cache and the time it was saved.
// An empty cache returns a nil map and a zero time. Undecodable rows are skipped.
func (db *DB) LoadCache(ctx context.Context) (map[string]models.UsageData, time.Time, error) {
	rows, err := db.QueryContext(ctx, "SELECT provider, payload, saved_at FROM usage_cache")
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query usage cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries map[string]models.UsageData
	var savedAt time.Time
	for rows.Next() {
		var provider, payload string
		var saved int64
		if err := rows.Scan(&provider, &payload, &saved); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		var data models.UsageData
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			logger.Warn("Skipping undecodable cache entry", "provider", provider, "error", err)
			continue
		}

		if entries == nil {
			entries = make(map[string]models.UsageData)
		}
		entries[provider] = data

		// Rows share one stamp; the oldest wins if they ever differ.
		t := time.Unix(saved, 0).UTC()
		if savedAt.IsZero() || t.Before(savedAt) {
			savedAt = t
		}
	}

	return entries, savedAt, rows.Err()
}
