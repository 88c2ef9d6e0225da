package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
)

// EventStore implements ports.EventStore using SQLite.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new SQLite event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

const insertEventSQL = `
	INSERT INTO usage_events (
		id, user_id, timestamp, kind, model, provider, message_id, session_id,
		prompt_length, stream, total_tokens, input_tokens, output_tokens, tool_name, raw
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Record stores a single usage event.
func (s *EventStore) Record(ctx context.Context, e usage.Event) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL,
		e.ID, e.UserID, e.Timestamp.UTC(), string(e.Kind), e.Model, e.Provider,
		e.MessageID, e.SessionID, e.PromptLength, e.Stream,
		e.TotalTokens, e.InputTokens, e.OutputTokens, e.ToolName, nullableRaw(e.Raw),
	)
	return err
}

// RecordBatch stores multiple usage events in one transaction.
func (s *EventStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			e.ID, e.UserID, e.Timestamp.UTC(), string(e.Kind), e.Model, e.Provider,
			e.MessageID, e.SessionID, e.PromptLength, e.Stream,
			e.TotalTokens, e.InputTokens, e.OutputTokens, e.ToolName, nullableRaw(e.Raw),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Query returns events matching the filter, newest first.
func (s *EventStore) Query(ctx context.Context, f ports.EventFilter) ([]usage.Event, error) {
	q := `
		SELECT id, user_id, timestamp, kind, model, provider, message_id, session_id,
		       prompt_length, stream, total_tokens, input_tokens, output_tokens, tool_name, raw
		FROM usage_events
		WHERE 1=1
	`
	var args []any
	if f.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Kind != "" {
		q += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	if !f.Start.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Start.UTC())
	}
	if !f.End.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, f.End.UTC())
	}
	q += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Summarize aggregates in memory over the user's events in the window.
// SQLite deployments are small; a scan plus the pure aggregation keeps
// the result identical to the other backends.
func (s *EventStore) Summarize(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error) {
	events, err := s.Query(ctx, ports.EventFilter{UserID: userID, Start: start, End: end})
	if err != nil {
		return usage.Summary{}, err
	}
	return usage.Summarize(events, start, end), nil
}

// Ping verifies the database is reachable.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func scanEvent(rows *sql.Rows) (usage.Event, error) {
	var e usage.Event
	var kind string
	var raw sql.NullString
	err := rows.Scan(
		&e.ID, &e.UserID, &e.Timestamp, &kind, &e.Model, &e.Provider,
		&e.MessageID, &e.SessionID, &e.PromptLength, &e.Stream,
		&e.TotalTokens, &e.InputTokens, &e.OutputTokens, &e.ToolName, &raw,
	)
	if err != nil {
		return usage.Event{}, err
	}
	e.Kind = usage.Kind(kind)
	e.Timestamp = e.Timestamp.UTC()
	if raw.Valid {
		e.Raw = []byte(raw.String)
	}
	return e, nil
}

func nullableRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Ensure interface compliance.
var _ ports.EventStore = (*EventStore)(nil)
