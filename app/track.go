package app

import (
	"context"

	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
	"github.com/rs/zerolog"
)

// ChatExchange carries what the chat endpoint knows about one turn.
type ChatExchange struct {
	UserID       string
	Model        string
	Provider     string
	MessageID    string
	SessionID    string
	PromptLength int64
	Stream       bool
}

// ChatOutcome carries what the upstream response revealed.
type ChatOutcome struct {
	TotalTokens  int64
	InputTokens  int64
	OutputTokens int64
	ToolCalls    []string // tool names, one entry per invocation
}

// TrackService records usage for chat traffic flowing through the
// service. The prompt is written synchronously so a request is never
// entirely unaccounted; completion and tool events go through the
// async recorder. The recorder drains on shutdown, bounding loss to
// one unflushed batch.
type TrackService struct {
	store    ports.EventStore
	recorder ports.UsageRecorder
	clock    ports.Clock
	idGen    ports.IDGenerator
	logger   zerolog.Logger
}

// NewTrackService creates a new chat tracking service.
func NewTrackService(
	store ports.EventStore,
	recorder ports.UsageRecorder,
	clock ports.Clock,
	idGen ports.IDGenerator,
	logger zerolog.Logger,
) *TrackService {
	return &TrackService{
		store:    store,
		recorder: recorder,
		clock:    clock,
		idGen:    idGen,
		logger:   logger,
	}
}

// TrackPrompt records the outbound side of a chat turn synchronously.
// A write failure is logged but does not block the chat request.
func (s *TrackService) TrackPrompt(ctx context.Context, x ChatExchange) {
	e := usage.NewPromptEvent(
		s.idGen.New(), x.UserID, x.Model, x.Provider, x.MessageID, x.SessionID,
		x.PromptLength, x.Stream, s.clock.Now(),
	)
	if err := s.store.Record(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("user_id", x.UserID).
			Str("message_id", x.MessageID).
			Msg("prompt event write failed")
	}
}

// TrackOutcome queues completion and tool events for the turn.
// Fire-and-forget: never blocks or fails the chat response path.
func (s *TrackService) TrackOutcome(x ChatExchange, o ChatOutcome) {
	now := s.clock.Now()
	s.recorder.Record(usage.NewCompletionEvent(
		s.idGen.New(), x.UserID, x.Model, x.Provider, x.MessageID, x.SessionID,
		o.TotalTokens, o.InputTokens, o.OutputTokens, now,
	))
	for _, tool := range o.ToolCalls {
		s.recorder.Record(usage.NewToolEvent(
			s.idGen.New(), x.UserID, tool, x.MessageID, x.SessionID, now,
		))
	}
}
