package db

import (
	"database/sql"
	"time"
)

// SnapshotRetention is how long usage snapshots are kept before pruning.
const SnapshotRetention = 30 * 24 * time.Hour

// unixOrNil converts an optional time for a nullable INTEGER column.
func unixOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

// timeFromNullable converts a nullable INTEGER column back into an optional time.
func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
