package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/metergate/adapters/clock"
	"github.com/artpar/metergate/adapters/idgen"
	"github.com/artpar/metergate/app"
	"github.com/artpar/metergate/domain/usage"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

// captureRecorder collects events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []usage.Event
}

func (r *captureRecorder) Record(e usage.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) Flush(ctx context.Context) error { return nil }
func (r *captureRecorder) Close() error                    { return nil }

func (r *captureRecorder) all() []usage.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]usage.Event{}, r.events...)
}

func newIngest(rec *captureRecorder) *app.IngestService {
	return app.NewIngestService(rec, clock.NewFake(testNow), idgen.NewSequential("ev-"), nil, zerolog.Nop())
}

func TestLog_QueuesCompletionEvent(t *testing.T) {
	rec := &captureRecorder{}
	svc := newIngest(rec)

	err := svc.Log(context.Background(), app.LogRequest{
		UserID:       "u1",
		Type:         "completion",
		Model:        "gpt-4o",
		Provider:     "openai",
		InputTokens:  60,
		OutputTokens: 40,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("queued %d events, want 1", len(got))
	}
	e := got[0]
	if e.Kind != usage.KindCompletion {
		t.Errorf("Kind = %s, want completion", e.Kind)
	}
	if e.TotalTokens != 100 {
		t.Errorf("TotalTokens = %d, want 100", e.TotalTokens)
	}
	if !e.Timestamp.Equal(testNow) {
		t.Errorf("Timestamp = %v, want server time %v", e.Timestamp, testNow)
	}
	if e.ID == "" {
		t.Error("event ID not assigned")
	}
}

func TestLog_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  app.LogRequest
	}{
		{"missing user", app.LogRequest{Type: "prompt"}},
		{"missing type", app.LogRequest{UserID: "u1"}},
		{"unknown type", app.LogRequest{UserID: "u1", Type: "telemetry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captureRecorder{}
			svc := newIngest(rec)

			err := svc.Log(context.Background(), tt.req)
			if !errors.Is(err, app.ErrInvalidEvent) {
				t.Errorf("err = %v, want ErrInvalidEvent", err)
			}
			if len(rec.all()) != 0 {
				t.Error("invalid event must not be queued")
			}
		})
	}
}

func TestLog_ToolEvent(t *testing.T) {
	rec := &captureRecorder{}
	svc := newIngest(rec)

	err := svc.Log(context.Background(), app.LogRequest{
		UserID:   "u1",
		Type:     "tool",
		ToolName: "search",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	got := rec.all()
	if len(got) != 1 || got[0].ToolName != "search" {
		t.Fatalf("got %+v, want one search tool event", got)
	}
}
