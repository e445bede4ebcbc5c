package history

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are applied in order; all use IF NOT EXISTS.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS invocations (
		idempotency_key TEXT    PRIMARY KEY,
		action          TEXT    NOT NULL,
		command         TEXT    NOT NULL,
		node_id         TEXT    NOT NULL,
		surface         TEXT    NOT NULL DEFAULT '',
		ok              INTEGER NOT NULL DEFAULT 0,
		outcome         TEXT    NOT NULL,
		error           TEXT    NOT NULL DEFAULT '',
		duration_ms     INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invocations_created ON invocations(created_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("history: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("history: record schema version: %w", err)
	}
	return nil
}
