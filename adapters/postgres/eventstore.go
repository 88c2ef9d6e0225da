package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
)

// EventStore implements ports.EventStore using PostgreSQL.
// Aggregation happens in SQL so summaries stay cheap as the table grows.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new PostgreSQL event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

const insertEventSQL = `
	INSERT INTO usage_events (
		id, user_id, timestamp, kind, model, provider, message_id, session_id,
		prompt_length, stream, total_tokens, input_tokens, output_tokens, tool_name, raw
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		q += " AND user_id = " + arg(f.UserID)
	}
	if f.Kind != "" {
		q += " AND kind = " + arg(string(f.Kind))
	}
	if !f.Start.IsZero() {
		q += " AND timestamp >= " + arg(f.Start.UTC())
	}
	if !f.End.IsZero() {
		q += " AND timestamp <= " + arg(f.End.UTC())
	}
	q += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		var kind string
		var raw sql.NullString
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Timestamp, &kind, &e.Model, &e.Provider,
			&e.MessageID, &e.SessionID, &e.PromptLength, &e.Stream,
			&e.TotalTokens, &e.InputTokens, &e.OutputTokens, &e.ToolName, &raw,
		)
		if err != nil {
			return nil, err
		}
		e.Kind = usage.Kind(kind)
		e.Timestamp = e.Timestamp.UTC()
		if raw.Valid {
			e.Raw = []byte(raw.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Summarize returns aggregated usage for a user within a window.
// Totals, breakdowns, and daily buckets aggregate in SQL; the recent
// activity list is a bounded query. A zero start or end leaves that
// bound open, matching the pure aggregator.
func (s *EventStore) Summarize(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error) {
	summary := usage.Summary{
		UserID:         userID,
		PeriodStart:    start,
		PeriodEnd:      end,
		ModelBreakdown: []usage.ModelUsage{},
		ToolUsage:      []usage.ToolCount{},
		DailyUsage:     []usage.DailyTokens{},
		RecentActivity: []usage.Activity{},
	}

	window := "user_id = $1"
	args := []any{userID}
	if !start.IsZero() {
		args = append(args, start.UTC())
		window += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		window += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_tokens) FILTER (WHERE kind = 'completion'), 0),
			COALESCE(SUM(input_tokens) FILTER (WHERE kind = 'completion'), 0),
			COALESCE(SUM(output_tokens) FILTER (WHERE kind = 'completion'), 0),
			COUNT(*) FILTER (WHERE kind = 'completion'),
			COUNT(*) FILTER (WHERE kind = 'tool')
		FROM usage_events
		WHERE `+window, args...)
	err := row.Scan(
		&summary.TotalTokens, &summary.InputTokens, &summary.OutputTokens,
		&summary.TotalMessages, &summary.ToolCalls,
	)
	if err != nil {
		return usage.Summary{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, model, COALESCE(SUM(total_tokens), 0), COUNT(*)
		FROM usage_events
		WHERE `+window+` AND kind = 'completion'
		GROUP BY provider, model
		ORDER BY SUM(total_tokens) DESC, provider, model
	`, args...)
	if err != nil {
		return usage.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m usage.ModelUsage
		if err := rows.Scan(&m.Provider, &m.Model, &m.TotalTokens, &m.Messages); err != nil {
			return usage.Summary{}, err
		}
		summary.ModelBreakdown = append(summary.ModelBreakdown, m)
	}
	if err := rows.Err(); err != nil {
		return usage.Summary{}, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT tool_name, COUNT(*)
		FROM usage_events
		WHERE `+window+` AND kind = 'tool'
		GROUP BY tool_name
		ORDER BY COUNT(*) DESC, tool_name
	`, args...)
	if err != nil {
		return usage.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t usage.ToolCount
		if err := rows.Scan(&t.ToolName, &t.Count); err != nil {
			return usage.Summary{}, err
		}
		summary.ToolUsage = append(summary.ToolUsage, t)
	}
	if err := rows.Err(); err != nil {
		return usage.Summary{}, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT TO_CHAR(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(total_tokens), 0), COUNT(*)
		FROM usage_events
		WHERE `+window+` AND kind = 'completion'
		GROUP BY day
		ORDER BY day DESC
	`, args...)
	if err != nil {
		return usage.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d usage.DailyTokens
		if err := rows.Scan(&d.Date, &d.TotalTokens, &d.Messages); err != nil {
			return usage.Summary{}, err
		}
		summary.DailyUsage = append(summary.DailyUsage, d)
	}
	if err := rows.Err(); err != nil {
		return usage.Summary{}, err
	}

	recentArgs := append(args[:len(args):len(args)], usage.RecentActivityLimit)
	rows, err = s.db.QueryContext(ctx, `
		SELECT timestamp, kind, model, provider, tool_name, total_tokens
		FROM usage_events
		WHERE `+window+` AND kind IN ('completion', 'tool')
		ORDER BY timestamp DESC
		LIMIT `+fmt.Sprintf("$%d", len(recentArgs)), recentArgs...)
	if err != nil {
		return usage.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a usage.Activity
		var kind string
		if err := rows.Scan(&a.Timestamp, &kind, &a.Model, &a.Provider, &a.ToolName, &a.Tokens); err != nil {
			return usage.Summary{}, err
		}
		a.Kind = usage.Kind(kind)
		a.Timestamp = a.Timestamp.UTC()
		summary.RecentActivity = append(summary.RecentActivity, a)
	}
	if err := rows.Err(); err != nil {
		return usage.Summary{}, err
	}

	return summary, nil
}

// Ping verifies the database is reachable.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func nullableRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Ensure interface compliance.
var _ ports.EventStore = (*EventStore)(nil)
