package app_test

import (
	"context"
	"testing"

	"github.com/artpar/metergate/adapters/clock"
	"github.com/artpar/metergate/adapters/idgen"
	"github.com/artpar/metergate/adapters/memory"
	"github.com/artpar/metergate/app"
	"github.com/artpar/metergate/domain/usage"
	"github.com/rs/zerolog"
)

func TestTrackPromptAndOutcome(t *testing.T) {
	store := memory.NewEventStore()
	rec := &captureRecorder{}
	svc := app.NewTrackService(store, rec, clock.NewFake(testNow), idgen.NewSequential("ev-"), zerolog.Nop())

	x := app.ChatExchange{
		UserID:       "u1",
		Model:        "gpt-4o",
		Provider:     "openai",
		MessageID:    "m1",
		SessionID:    "s1",
		PromptLength: 42,
	}
	svc.TrackPrompt(context.Background(), x)

	// Prompt is written synchronously to the store.
	all := store.All()
	if len(all) != 1 || all[0].Kind != usage.KindPrompt || all[0].PromptLength != 42 {
		t.Fatalf("store = %+v, want one prompt event", all)
	}

	svc.TrackOutcome(x, app.ChatOutcome{
		TotalTokens: 100, InputTokens: 60, OutputTokens: 40,
		ToolCalls: []string{"search", "search", "calculator"},
	})

	queued := rec.all()
	if len(queued) != 4 {
		t.Fatalf("queued %d events, want 4 (1 completion + 3 tools)", len(queued))
	}
	if queued[0].Kind != usage.KindCompletion || queued[0].TotalTokens != 100 {
		t.Errorf("queued[0] = %+v, want completion with 100 tokens", queued[0])
	}
	var tools int
	for _, e := range queued[1:] {
		if e.Kind == usage.KindTool {
			tools++
		}
		if e.MessageID != "m1" {
			t.Errorf("tool event missing message correlation: %+v", e)
		}
	}
	if tools != 3 {
		t.Errorf("tool events = %d, want 3", tools)
	}
}

func TestTrackPrompt_StoreFailureDoesNotPanic(t *testing.T) {
	store := memory.NewEventStore()
	store.FailWith = context.DeadlineExceeded
	rec := &captureRecorder{}
	svc := app.NewTrackService(store, rec, clock.NewFake(testNow), idgen.NewSequential("ev-"), zerolog.Nop())

	// Must not panic or block the chat path.
	svc.TrackPrompt(context.Background(), app.ChatExchange{UserID: "u1"})
}
