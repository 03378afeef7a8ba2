package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iksnae/tempo/internal"
)

// migrations are applied in order; index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		path        TEXT NOT NULL UNIQUE,
		git_hash    TEXT,
		description TEXT,
		is_archived INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		start_time      TEXT NOT NULL,
		end_time        TEXT,
		context         TEXT NOT NULL,
		paused_duration INTEGER NOT NULL DEFAULT 0,
		notes           TEXT,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(end_time) WHERE end_time IS NULL;`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		internal.LogInfo("Running migration %d", version)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit failed: %w", version, err)
		}
	}
	return nil
}
