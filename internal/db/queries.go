package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/j-veylop/codexbar-monitor/internal/models"
)

// InsertSnapshot records a usage observation.
func (db *DB) InsertSnapshot(ctx context.Context, s *models.UsageSnapshot) error {
	query := `
		INSERT INTO usage_snapshots (
			provider, plan, session_percent, weekly_percent, tertiary_percent,
			session_reset_at, weekly_reset_at, error, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	timestamp := s.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := db.ExecContext(ctx, query,
		s.Provider,
		nullString(s.Plan),
		s.SessionPercent,
		s.WeeklyPercent,
		s.TertiaryPercent,
		unixOrNil(s.SessionResetAt),
		unixOrNil(s.WeeklyResetAt),
		nullString(s.Error),
		timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		s.ID = id
	}

	return nil
}

// GetSnapshots returns the provider's snapshots taken at or after since, oldest first.
func (db *DB) GetSnapshots(ctx context.Context, provider string, since time.Time) ([]models.UsageSnapshot, error) {
	query := `
		SELECT id, provider, plan, session_percent, weekly_percent, tertiary_percent,
			   session_reset_at, weekly_reset_at, error, timestamp
		FROM usage_snapshots
		WHERE provider = ? AND timestamp >= ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, provider, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query usage snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshots []models.UsageSnapshot
	for rows.Next() {
		var s models.UsageSnapshot
		var plan, errStr sql.NullString
		var sessionReset, weeklyReset sql.NullInt64
		var ts int64

		err := rows.Scan(
			&s.ID,
			&s.Provider,
			&plan,
			&s.SessionPercent,
			&s.WeeklyPercent,
			&s.TertiaryPercent,
			&sessionReset,
			&weeklyReset,
			&errStr,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage snapshot: %w", err)
		}

		s.Plan = plan.String
		s.Error = errStr.String
		s.SessionResetAt = timeFromNullable(sessionReset)
		s.WeeklyResetAt = timeFromNullable(weeklyReset)
		s.Timestamp = time.Unix(ts, 0).UTC()
		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}

// PruneSnapshots deletes snapshots taken before cutoff and returns how many were removed.
func (db *DB) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM usage_snapshots WHERE timestamp < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage snapshots: %w", err)
	}
	return result.RowsAffected()
}

// nullString converts an empty string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
