package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/metergate/adapters/clock"
	mghttp "github.com/artpar/metergate/adapters/http"
	"github.com/artpar/metergate/adapters/idgen"
	"github.com/artpar/metergate/adapters/memory"
	"github.com/artpar/metergate/app"
	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/domain/usage"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

// syncRecorder writes straight through to the store so tests can
// assert on results without flush timing.
type syncRecorder struct {
	store *memory.EventStore
}

func (r *syncRecorder) Record(e usage.Event)            { r.store.Record(context.Background(), e) }
func (r *syncRecorder) Flush(ctx context.Context) error { return nil }
func (r *syncRecorder) Close() error                    { return nil }

type fixture struct {
	store  *memory.EventStore
	subs   *memory.SubscriptionStore
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewEventStore()
	subs := memory.NewSubscriptionStore()
	clk := clock.NewFake(testNow)
	ids := idgen.NewSequential("ev-")
	logger := zerolog.Nop()

	rec := &syncRecorder{store: store}
	ingest := app.NewIngestService(rec, clk, ids, nil, logger)
	stats := app.NewStatsService(store, nil, logger)
	quota := app.NewQuotaService(store, subs, plan.Default(), subscription.ExpiryRevertToFree, clk, nil, logger)
	track := app.NewTrackService(store, rec, clk, ids, logger)

	usageHandler := mghttp.NewUsageHandler(ingest, stats, quota, logger)
	healthHandler := mghttp.NewHealthHandler(store)
	chatHandler := mghttp.NewChatHandler(track, mghttp.EchoUpstream{}, ids, logger)

	router := mghttp.NewRouter(usageHandler, healthHandler, logger, mghttp.RouterConfig{
		ChatHandler: chatHandler,
	})
	return &fixture{store: store, subs: subs, router: router}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestLogUsage_Success(t *testing.T) {
	f := newFixture(t)

	body := `{"userId":"u1","type":"completion","model":"gpt-4o","provider":"openai","totalTokens":100,"inputTokens":60,"outputTokens":40}`
	rr := f.do(t, httptest.NewRequest(http.MethodPost, "/usage/log", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || !resp["success"] {
		t.Errorf("body = %s, want success:true", rr.Body.String())
	}

	events := f.store.All()
	if len(events) != 1 {
		t.Fatalf("stored %d events, want 1", len(events))
	}
	if events[0].Kind != usage.KindCompletion || events[0].TotalTokens != 100 {
		t.Errorf("stored event = %+v", events[0])
	}
	// Raw payload retained
	if string(events[0].Raw) != body {
		t.Errorf("Raw = %s, want original body", events[0].Raw)
	}
}

func TestLogUsage_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing userId", `{"type":"prompt"}`},
		{"missing type", `{"userId":"u1"}`},
		{"unknown type", `{"userId":"u1","type":"telemetry"}`},
		{"bad json", `{nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(t, httptest.NewRequest(http.MethodPost, "/usage/log", strings.NewReader(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if len(f.store.All()) != 0 {
				t.Error("rejected event must not be stored")
			}
		})
	}
}

func TestLogUsage_IdentityFromHeader(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/usage/log", strings.NewReader(`{"type":"prompt"}`))
	req.Header.Set("X-User-Id", "header-user")
	rr := f.do(t, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	events := f.store.All()
	if len(events) != 1 || events[0].UserID != "header-user" {
		t.Errorf("events = %+v, want one event for header-user", events)
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	f.store.RecordBatch(context.Background(), []usage.Event{
		usage.NewCompletionEvent("e1", "u1", "gpt-4o", "openai", "m1", "s1", 100, 60, 40, testNow),
		usage.NewCompletionEvent("e2", "u1", "gpt-4o", "openai", "m2", "s1", 250, 150, 100, testNow),
		usage.NewToolEvent("e3", "u1", "search", "m3", "s1", testNow),
	})

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/usage/stats?userId=u1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var s usage.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.TotalTokens != 350 || s.TotalMessages != 2 || s.ToolCalls != 1 {
		t.Errorf("summary = %+v, want 350/2/1", s)
	}
}

func TestGetStats_DateFiltering(t *testing.T) {
	f := newFixture(t)
	f.store.RecordBatch(context.Background(), []usage.Event{
		usage.NewCompletionEvent("e1", "u1", "gpt-4o", "openai", "", "", 100, 0, 0, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		usage.NewCompletionEvent("e2", "u1", "gpt-4o", "openai", "", "", 200, 0, 0, time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)),
	})

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/usage/stats?userId=u1&startDate=2025-03-15&endDate=2025-03-25", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var s usage.Summary
	json.Unmarshal(rr.Body.Bytes(), &s)
	if s.TotalTokens != 200 {
		t.Errorf("TotalTokens = %d, want 200 (window filtered)", s.TotalTokens)
	}

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/usage/stats?userId=u1&startDate=bogus", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad date", rr.Code)
	}
}

func TestGetStats_NoDatesAggregatesAllTime(t *testing.T) {
	f := newFixture(t)
	f.store.RecordBatch(context.Background(), []usage.Event{
		usage.NewCompletionEvent("e1", "u1", "gpt-4o", "openai", "", "", 350, 210, 140, testNow.AddDate(0, -2, 0)),
		usage.NewCompletionEvent("e2", "u1", "gpt-4o", "openai", "", "", 100, 60, 40, testNow),
	})

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/usage/stats?userId=u1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var s usage.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.TotalTokens != 450 || s.TotalMessages != 2 {
		t.Errorf("summary = %+v, want all-time totals 450/2", s)
	}
	if !s.PeriodStart.IsZero() || !s.PeriodEnd.IsZero() {
		t.Errorf("period = [%v, %v], want open bounds", s.PeriodStart, s.PeriodEnd)
	}
}

func TestGetStats_IdentityResolution(t *testing.T) {
	f := newFixture(t)

	// No identity at all: 400.
	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/usage/stats", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without identity", rr.Code)
	}

	// Cookie identity works.
	req := httptest.NewRequest(http.MethodGet, "/usage/stats", nil)
	req.AddCookie(&http.Cookie{Name: "user_id", Value: "cookie-user"})
	rr = f.do(t, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with cookie identity", rr.Code)
	}

	// Auth header beats generic header.
	req = httptest.NewRequest(http.MethodGet, "/usage/stats", nil)
	req.Header.Set("X-Auth-User", "auth-user")
	req.Header.Set("X-User-Id", "other-user")
	rr = f.do(t, req)
	var s usage.Summary
	json.Unmarshal(rr.Body.Bytes(), &s)
	if s.UserID != "auth-user" {
		t.Errorf("UserID = %q, want auth-user", s.UserID)
	}
}

func TestGetQuota(t *testing.T) {
	f := newFixture(t)
	f.store.Record(context.Background(),
		usage.NewCompletionEvent("e1", "u1", "gpt-4o", "openai", "", "", 475_000, 0, 0, testNow))

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/usage/quota?userId=u1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var st struct {
		Tokens struct {
			Percent   int   `json:"percent"`
			Remaining int64 `json:"remaining"`
		} `json:"tokens"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Tokens.Percent != 95 || st.Tokens.Remaining != 25_000 {
		t.Errorf("tokens = %+v, want 95%% / 25000 remaining", st.Tokens)
	}
	if st.State != "critical" {
		t.Errorf("state = %q, want critical", st.State)
	}
}

func TestChat_MetersPromptCompletionAndTools(t *testing.T) {
	f := newFixture(t)

	body := `{"model":"gpt-4o","provider":"openai","sessionId":"s1","messages":[{"role":"user","content":"hello there"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("X-User-Id", "u1")
	rr := f.do(t, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	events := f.store.All()
	var prompts, completions int
	for _, e := range events {
		switch e.Kind {
		case usage.KindPrompt:
			prompts++
			if e.PromptLength != int64(len("hello there")) {
				t.Errorf("PromptLength = %d, want %d", e.PromptLength, len("hello there"))
			}
		case usage.KindCompletion:
			completions++
			if e.TotalTokens == 0 {
				t.Error("completion event has no tokens")
			}
		}
	}
	if prompts != 1 || completions != 1 {
		t.Errorf("prompts=%d completions=%d, want 1/1", prompts, completions)
	}
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rr.Code)
	}
	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rr.Code)
	}
	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/version", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("version status = %d, want 200", rr.Code)
	}
}

func TestReadiness_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith = context.DeadlineExceeded

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}
