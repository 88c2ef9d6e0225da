// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/domain/usage"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// EventFilter restricts an event query. Zero values mean "no restriction".
type EventFilter struct {
	UserID string
	Kind   usage.Kind
	Start  time.Time
	End    time.Time
	Limit  int
}

// EventStore persists usage events (append-only).
// Events are immutable once written; there is no update or delete path.
type EventStore interface {
	// Record stores a single usage event.
	Record(ctx context.Context, e usage.Event) error

	// RecordBatch stores multiple usage events.
	RecordBatch(ctx context.Context, events []usage.Event) error

	// Query returns events matching the filter, newest first when Limit > 0.
	Query(ctx context.Context, f EventFilter) ([]usage.Event, error)

	// Summarize returns aggregated usage for a user within a window.
	// Implementations may aggregate in the storage engine or in memory;
	// the result must match usage.Summarize over the same event set.
	Summarize(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// SubscriptionStore reads per-user subscription state.
// The billing system owns writes; this service only needs Get plus an
// Upsert hook for the billing collaborator.
type SubscriptionStore interface {
	// Get retrieves the subscription for a user.
	// Returns ErrNotFound when the user has never been seen.
	Get(ctx context.Context, userID string) (subscription.Subscription, error)

	// Upsert creates or replaces a user's subscription.
	Upsert(ctx context.Context, sub subscription.Subscription) error
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// UsageRecorder accepts usage events for async processing.
type UsageRecorder interface {
	// Record queues a usage event for processing.
	// This must be non-blocking; delivery is best-effort.
	Record(e usage.Event)

	// Flush forces immediate processing of queued events.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining events.
	Close() error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// ChatUpstream forwards a chat completion request to the model backend.
type ChatUpstream interface {
	// Complete sends a chat request body and returns the raw response
	// body and status code.
	Complete(ctx context.Context, body []byte) ([]byte, int, error)

	// HealthCheck verifies the upstream is reachable.
	HealthCheck(ctx context.Context) error
}
