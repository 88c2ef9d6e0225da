package jsonl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/metergate/adapters/jsonl"
	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := jsonl.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	events := []usage.Event{
		usage.NewCompletionEvent("e1", "u1", "gpt-4o", "openai", "m1", "s1", 100, 60, 40, base),
		usage.NewCompletionEvent("e2", "u1", "gpt-4o", "openai", "m2", "s1", 250, 150, 100, base.Add(time.Hour)),
		usage.NewToolEvent("e3", "u1", "search", "m3", "s1", base.Add(2*time.Hour)),
		// different month, still found by the scan
		usage.NewCompletionEvent("e4", "u1", "gpt-4o", "openai", "m4", "s1", 77, 0, 0, base.AddDate(0, -1, 0)),
		// different user, never visible to u1
		usage.NewCompletionEvent("e5", "u2", "gpt-4o", "openai", "m5", "s2", 999, 0, 0, base),
	}
	if err := store.RecordBatch(ctx, events); err != nil {
		t.Fatalf("record batch: %v", err)
	}

	start, end := usage.PeriodBounds(base)
	s, err := store.Summarize(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.TotalTokens != 350 {
		t.Errorf("TotalTokens = %d, want 350", s.TotalTokens)
	}
	if s.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", s.ToolCalls)
	}

	got, err := store.Query(ctx, ports.EventFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("len(events) = %d, want 4 (both months)", len(got))
	}
	if got[0].ID != "e3" {
		t.Errorf("first event = %s, want e3 (newest first)", got[0].ID)
	}
}

func TestStoreSkipsCorruptLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := jsonl.NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := store.Record(ctx, usage.NewCompletionEvent("e1", "u1", "gpt-4o", "openai", "", "", 42, 0, 0, base)); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Sabotage: append garbage, then a good event on top.
	if err := appendGarbage(t, dir, "u1_2025-03.jsonl"); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	if err := store.Record(ctx, usage.NewCompletionEvent("e2", "u1", "gpt-4o", "openai", "", "", 8, 0, 0, base.Add(time.Minute))); err != nil {
		t.Fatalf("record: %v", err)
	}

	start, end := usage.PeriodBounds(base)
	s, err := store.Summarize(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.TotalTokens != 50 {
		t.Errorf("TotalTokens = %d, want 50 (corrupt line skipped)", s.TotalTokens)
	}
}

func appendGarbage(t *testing.T, dir, name string) error {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("{not json\n")
	return err
}

func TestPing(t *testing.T) {
	store, err := jsonl.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
