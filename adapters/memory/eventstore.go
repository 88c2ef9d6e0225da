// Package memory provides in-memory store implementations for tests
// and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
)

// EventStore is an in-memory implementation of ports.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	events []usage.Event

	// FailWith, when set, makes every operation return this error.
	// Used to test degraded-store behavior.
	FailWith error
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		events: make([]usage.Event, 0),
	}
}

// Record stores a single usage event.
func (s *EventStore) Record(ctx context.Context, e usage.Event) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
	return nil
}

// RecordBatch stores multiple usage events.
func (s *EventStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	return nil
}

// Query returns events matching the filter, newest first when limited.
func (s *EventStore) Query(ctx context.Context, f ports.EventFilter) ([]usage.Event, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Event
	for _, e := range s.events {
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

// Summarize returns aggregated usage for a user within a window.
func (s *EventStore) Summarize(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error) {
	if s.FailWith != nil {
		return usage.Summary{}, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Event
	for _, e := range s.events {
		if e.UserID == userID {
			matching = append(matching, e)
		}
	}

	return usage.Summarize(matching, start, end), nil
}

// Ping reports store health.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.FailWith
}

// Close is a no-op for the in-memory store.
func (s *EventStore) Close() error {
	return nil
}

// All returns a copy of all events (for testing).
func (s *EventStore) All() []usage.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]usage.Event{}, s.events...)
}

// Clear removes all events (for testing).
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]usage.Event, 0)
}

// Ensure interface compliance.
var _ ports.EventStore = (*EventStore)(nil)
