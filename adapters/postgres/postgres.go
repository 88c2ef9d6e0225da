// Package postgres provides PostgreSQL implementations of storage
// ports via the pgx stdlib driver. This is the primary backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	*sql.DB
}

// Open creates a new PostgreSQL connection pool.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return &DB{DB: db}, nil
}

// InitSchema creates tables and indexes if they do not exist.
// Safe to run on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_events (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			timestamp     TIMESTAMPTZ NOT NULL,
			kind          TEXT NOT NULL,
			model         TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT '',
			message_id    TEXT NOT NULL DEFAULT '',
			session_id    TEXT NOT NULL DEFAULT '',
			prompt_length BIGINT NOT NULL DEFAULT 0,
			stream        BOOLEAN NOT NULL DEFAULT FALSE,
			total_tokens  BIGINT NOT NULL DEFAULT 0,
			input_tokens  BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			tool_name     TEXT NOT NULL DEFAULT '',
			raw           JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_user ON usage_events(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_kind ON usage_events(kind)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			user_id          TEXT PRIMARY KEY,
			tier             TEXT NOT NULL DEFAULT 'free',
			expires_at       TIMESTAMPTZ,
			extra_tokens     BIGINT NOT NULL DEFAULT 0,
			extra_tool_calls BIGINT NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
