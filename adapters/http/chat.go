package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/artpar/metergate/app"
	"github.com/artpar/metergate/ports"
)

// chatRequest is the subset of the chat completion body this service
// inspects. The full body passes through to the upstream untouched.
type chatRequest struct {
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	SessionID string `json:"sessionId"`
	Stream    bool   `json:"stream"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// chatResponse is the subset of the upstream response needed for
// accounting: token usage and tool invocations.
type chatResponse struct {
	ID    string `json:"id"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatHandler proxies chat completions and meters them: the prompt is
// recorded before the upstream call, completion and tool events after
// the response, off the request path.
type ChatHandler struct {
	track    *app.TrackService
	upstream ports.ChatUpstream
	idGen    ports.IDGenerator
	logger   zerolog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(track *app.TrackService, upstream ports.ChatUpstream, idGen ports.IDGenerator, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{track: track, upstream: upstream, idGen: idGen, logger: logger}
}

// Chat handles POST /v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var promptLength int64
	for _, m := range req.Messages {
		promptLength += int64(len(m.Content))
	}

	x := app.ChatExchange{
		UserID:       ResolveIdentity(r),
		Model:        req.Model,
		Provider:     req.Provider,
		MessageID:    h.idGen.New(),
		SessionID:    req.SessionID,
		PromptLength: promptLength,
		Stream:       req.Stream,
	}
	h.track.TrackPrompt(r.Context(), x)

	respBody, status, err := h.upstream.Complete(r.Context(), body)
	if err != nil {
		h.logger.Error().Err(err).
			Str("user_id", x.UserID).
			Str("model", x.Model).
			Msg("chat upstream failed")
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	// Meter off the response path; a slow store must not delay the
	// client's chat response.
	if status < 400 {
		var resp chatResponse
		if err := json.Unmarshal(respBody, &resp); err == nil {
			outcome := app.ChatOutcome{
				TotalTokens:  resp.Usage.TotalTokens,
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}
			for _, c := range resp.Choices {
				for _, tc := range c.Message.ToolCalls {
					outcome.ToolCalls = append(outcome.ToolCalls, tc.Function.Name)
				}
			}
			h.track.TrackOutcome(x, outcome)
		} else {
			h.logger.Warn().Err(err).
				Str("user_id", x.UserID).
				Msg("upstream response not parseable, completion not metered")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(respBody)
}
