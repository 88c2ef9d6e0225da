// Package jsonl provides a file-backed event store: append-only JSON
// lines, one file per user per month. A fallback for deployments with
// no database at all; reads are full scans.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
)

// Store is a JSONL-file implementation of ports.EventStore.
type Store struct {
	dir string
	mu  sync.Mutex // serializes appends across goroutines
}

// NewStore creates a JSONL store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// fileFor sanitizes the user ID into a safe filename component.
func (s *Store) fileFor(userID string, t time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, userID)
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.jsonl", safe, t.UTC().Format("2006-01")))
}

// Record appends a single usage event.
func (s *Store) Record(ctx context.Context, e usage.Event) error {
	return s.RecordBatch(ctx, []usage.Event{e})
}

// RecordBatch appends multiple usage events.
func (s *Store) RecordBatch(ctx context.Context, events []usage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Group per target file so a batch opens each file once.
	byFile := map[string][]usage.Event{}
	for _, e := range events {
		path := s.fileFor(e.UserID, e.Timestamp)
		byFile[path] = append(byFile[path], e)
	}

	for path, batch := range byFile {
		if err := appendAll(path, batch); err != nil {
			return err
		}
	}
	return nil
}

func appendAll(path string, events []usage.Event) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(eventRecord(e)); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return w.Flush()
}

// record is the on-disk line format.
type record struct {
	ID           string          `json:"id,omitempty"`
	UserID       string          `json:"userId"`
	Timestamp    time.Time       `json:"timestamp"`
	Kind         usage.Kind      `json:"type"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	MessageID    string          `json:"messageId,omitempty"`
	SessionID    string          `json:"sessionId,omitempty"`
	PromptLength int64           `json:"promptLength,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	TotalTokens  int64           `json:"totalTokens,omitempty"`
	InputTokens  int64           `json:"inputTokens,omitempty"`
	OutputTokens int64           `json:"outputTokens,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

func eventRecord(e usage.Event) record {
	return record{
		ID: e.ID, UserID: e.UserID, Timestamp: e.Timestamp.UTC(), Kind: e.Kind,
		Model: e.Model, Provider: e.Provider, MessageID: e.MessageID, SessionID: e.SessionID,
		PromptLength: e.PromptLength, Stream: e.Stream,
		TotalTokens: e.TotalTokens, InputTokens: e.InputTokens, OutputTokens: e.OutputTokens,
		ToolName: e.ToolName, Raw: e.Raw,
	}
}

func (r record) event() usage.Event {
	return usage.Event{
		ID: r.ID, UserID: r.UserID, Timestamp: r.Timestamp.UTC(), Kind: r.Kind,
		Model: r.Model, Provider: r.Provider, MessageID: r.MessageID, SessionID: r.SessionID,
		PromptLength: r.PromptLength, Stream: r.Stream,
		TotalTokens: r.TotalTokens, InputTokens: r.InputTokens, OutputTokens: r.OutputTokens,
		ToolName: r.ToolName, Raw: r.Raw,
	}
}

// Query scans the user's files and filters in memory.
func (s *Store) Query(ctx context.Context, f ports.EventFilter) ([]usage.Event, error) {
	events, err := s.load(f.UserID)
	if err != nil {
		return nil, err
	}

	var matching []usage.Event
	for _, e := range events {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if !e.InWindow(f.Start, f.End) {
			continue
		}
		matching = append(matching, e)
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].Timestamp.After(matching[j].Timestamp)
	})
	if f.Limit > 0 && len(matching) > f.Limit {
		matching = matching[:f.Limit]
	}
	return matching, nil
}

// Summarize aggregates the user's events in memory.
func (s *Store) Summarize(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error) {
	events, err := s.load(userID)
	if err != nil {
		return usage.Summary{}, err
	}
	return usage.Summarize(events, start, end), nil
}

// load reads every monthly file belonging to userID. Lines that fail to
// decode are skipped; one corrupt line must not hide a month of data.
func (s *Store) load(userID string) ([]usage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := s.fileFor(userID, time.Time{})
	prefix := strings.TrimSuffix(sample, "0001-01.jsonl")
	matches, err := filepath.Glob(prefix + "*.jsonl")
	if err != nil {
		return nil, err
	}

	var events []usage.Event
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			var r record
			if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
				continue
			}
			// Sanitized filenames can collide across prefixes
			if r.UserID != userID {
				continue
			}
			events = append(events, r.event())
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read log file: %w", err)
		}
	}
	return events, nil
}

// Ping verifies the directory is writable.
func (s *Store) Ping(ctx context.Context) error {
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Close is a no-op; files are opened per write.
func (s *Store) Close() error {
	return nil
}

// Ensure interface compliance.
var _ ports.EventStore = (*Store)(nil)
