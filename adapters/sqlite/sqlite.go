// Package sqlite provides SQLite implementations of storage ports,
// for single-node deployments without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite database connection.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DB{DB: db}, nil
}

// InitSchema creates tables and indexes if they do not exist.
// Safe to run on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_events (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			timestamp     DATETIME NOT NULL,
			kind          TEXT NOT NULL,
			model         TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT '',
			message_id    TEXT NOT NULL DEFAULT '',
			session_id    TEXT NOT NULL DEFAULT '',
			prompt_length INTEGER NOT NULL DEFAULT 0,
			stream        INTEGER NOT NULL DEFAULT 0,
			total_tokens  INTEGER NOT NULL DEFAULT 0,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			tool_name     TEXT NOT NULL DEFAULT '',
			raw           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_user ON usage_events(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_kind ON usage_events(kind)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			user_id          TEXT PRIMARY KEY,
			tier             TEXT NOT NULL DEFAULT 'free',
			expires_at       DATETIME,
			extra_tokens     INTEGER NOT NULL DEFAULT 0,
			extra_tool_calls INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
