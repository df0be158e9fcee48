package db

import (
	"context"
	"fmt"
)

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

// migrations[i] upgrades a database from user_version i to i+1.
var migrations = []string{
	// v0 -> v1: snapshots written before reset times were recorded
	`UPDATE usage_snapshots SET session_reset_at = NULL WHERE session_reset_at = 0;
	 UPDATE usage_snapshots SET weekly_reset_at = NULL WHERE weekly_reset_at = 0;`,
}

// migrate brings the schema up to schemaVersion.
func (db *DB) migrate() error {
	ctx := context.Background()

	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := current; v < schemaVersion && v < len(migrations); v++ {
		if _, err := db.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", v+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", v+1, err)
		}
	}

	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	err := db.QueryRowContext(context.Background(), "PRAGMA user_version").Scan(&v)
	return v, err
}
