// Package usage provides usage event types and aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind discriminates the three tracked interaction types.
type Kind string

const (
	KindPrompt     Kind = "prompt"     // Outbound chat request
	KindCompletion Kind = "completion" // Token-bearing model response
	KindTool       Kind = "tool"       // Single invoked tool/function call
)

// AnonymousUser is the bucket for traffic whose identity cannot be resolved.
const AnonymousUser = "anonymous"

// Validation errors returned by Event.Validate.
var (
	ErrMissingUserID = errors.New("usage: userId is required")
	ErrMissingKind   = errors.New("usage: kind is required")
	ErrUnknownKind   = errors.New("usage: unknown kind")
)

// Event represents a single usage event (immutable value type).
// Exactly one Kind applies; kind-specific fields are only set by the
// corresponding constructor.
type Event struct {
	ID        string
	UserID    string
	Timestamp time.Time // Server-assigned at ingestion, UTC
	Kind      Kind

	// Shared correlation fields (prompt/completion; tool inherits them
	// from its conversational turn when available)
	Model     string
	Provider  string
	MessageID string
	SessionID string

	// Prompt fields
	PromptLength int64
	Stream       bool

	// Completion fields
	TotalTokens  int64
	InputTokens  int64
	OutputTokens int64

	// Tool fields
	ToolName string

	// Raw retains the original payload for audit and forward compatibility.
	Raw json.RawMessage
}

// IsValidKind reports whether k is one of the known event kinds.
func IsValidKind(k Kind) bool {
	switch k {
	case KindPrompt, KindCompletion, KindTool:
		return true
	}
	return false
}

// Validate checks the invariants every stored event must satisfy.
func (e Event) Validate() error {
	if e.UserID == "" {
		return ErrMissingUserID
	}
	if e.Kind == "" {
		return ErrMissingKind
	}
	if !IsValidKind(e.Kind) {
		return ErrUnknownKind
	}
	return nil
}

// NewPromptEvent creates an event recording an outbound chat request.
func NewPromptEvent(id, userID, model, provider, messageID, sessionID string, promptLength int64, stream bool, at time.Time) Event {
	return Event{
		ID:           id,
		UserID:       userID,
		Timestamp:    at.UTC(),
		Kind:         KindPrompt,
		Model:        model,
		Provider:     provider,
		MessageID:    messageID,
		SessionID:    sessionID,
		PromptLength: promptLength,
		Stream:       stream,
	}
}

// NewCompletionEvent creates an event recording a token-bearing response.
func NewCompletionEvent(id, userID, model, provider, messageID, sessionID string, totalTokens, inputTokens, outputTokens int64, at time.Time) Event {
	if totalTokens == 0 {
		totalTokens = inputTokens + outputTokens
	}
	return Event{
		ID:           id,
		UserID:       userID,
		Timestamp:    at.UTC(),
		Kind:         KindCompletion,
		Model:        model,
		Provider:     provider,
		MessageID:    messageID,
		SessionID:    sessionID,
		TotalTokens:  totalTokens,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
}

// NewToolEvent creates an event recording a single tool invocation.
func NewToolEvent(id, userID, toolName, messageID, sessionID string, at time.Time) Event {
	return Event{
		ID:        id,
		UserID:    userID,
		Timestamp: at.UTC(),
		Kind:      KindTool,
		MessageID: messageID,
		SessionID: sessionID,
		ToolName:  toolName,
	}
}

// InWindow reports whether the event timestamp falls inside [start, end].
// A zero start or end means that bound is open.
func (e Event) InWindow(start, end time.Time) bool {
	if !start.IsZero() && e.Timestamp.Before(start) {
		return false
	}
	if !end.IsZero() && e.Timestamp.After(end) {
		return false
	}
	return true
}
