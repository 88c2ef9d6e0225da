// Package app contains the use-case services. Services orchestrate
// domain logic and ports; all business rules live in domain packages.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/metergate/adapters/metrics"
	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
	"github.com/rs/zerolog"
)

// ErrInvalidEvent wraps validation failures that callers should map to
// a 400-class response.
var ErrInvalidEvent = errors.New("invalid usage event")

// LogRequest is the incoming ingestion payload. Kind-specific fields
// are optional; validation only requires UserID and Type.
type LogRequest struct {
	UserID       string          `json:"userId"`
	Type         string          `json:"type"`
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
	Raw          json.RawMessage `json:"-"`
}

// IngestService validates incoming usage payloads and queues them for
// asynchronous recording. Storage failures never reach the caller.
type IngestService struct {
	recorder ports.UsageRecorder
	clock    ports.Clock
	idGen    ports.IDGenerator
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	recorder ports.UsageRecorder,
	clock ports.Clock,
	idGen ports.IDGenerator,
	m *metrics.Collector,
	logger zerolog.Logger,
) *IngestService {
	return &IngestService{
		recorder: recorder,
		clock:    clock,
		idGen:    idGen,
		metrics:  m,
		logger:   logger,
	}
}

// Log validates the payload, stamps server time, and queues the event.
// Validation errors are returned synchronously; everything after
// validation is fire-and-forget.
func (s *IngestService) Log(ctx context.Context, req LogRequest) error {
	e, err := s.buildEvent(req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.WithLabelValues(rejectReason(err)).Inc()
		}
		return err
	}

	s.recorder.Record(e)
	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(string(e.Kind)).Inc()
	}
	s.logger.Debug().
		Str("user_id", e.UserID).
		Str("kind", string(e.Kind)).
		Str("event_id", e.ID).
		Msg("usage event queued")
	return nil
}

func (s *IngestService) buildEvent(req LogRequest) (usage.Event, error) {
	if req.UserID == "" {
		return usage.Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, usage.ErrMissingUserID)
	}
	if req.Type == "" {
		return usage.Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, usage.ErrMissingKind)
	}

	now := s.clock.Now()
	id := s.idGen.New()
	var e usage.Event
	switch usage.Kind(req.Type) {
	case usage.KindPrompt:
		e = usage.NewPromptEvent(id, req.UserID, req.Model, req.Provider, req.MessageID, req.SessionID, req.PromptLength, req.Stream, now)
	case usage.KindCompletion:
		e = usage.NewCompletionEvent(id, req.UserID, req.Model, req.Provider, req.MessageID, req.SessionID, req.TotalTokens, req.InputTokens, req.OutputTokens, now)
	case usage.KindTool:
		e = usage.NewToolEvent(id, req.UserID, req.ToolName, req.MessageID, req.SessionID, now)
	default:
		return usage.Event{}, fmt.Errorf("%w: %w %q", ErrInvalidEvent, usage.ErrUnknownKind, req.Type)
	}
	e.Raw = req.Raw
	return e, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, usage.ErrMissingUserID):
		return "missing_user"
	case errors.Is(err, usage.ErrMissingKind):
		return "missing_kind"
	case errors.Is(err, usage.ErrUnknownKind):
		return "unknown_kind"
	default:
		return "other"
	}
}
