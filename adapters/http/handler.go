// Package http provides the HTTP surface: usage ingestion, stats,
// quota, chat passthrough, and operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/metergate/adapters/metrics"
	"github.com/artpar/metergate/app"
	"github.com/artpar/metergate/domain/usage"
)

// maxBodySize caps ingestion payloads.
const maxBodySize = 1 << 20 // 1MB

// UsageHandler serves the usage endpoints.
type UsageHandler struct {
	ingest *app.IngestService
	stats  *app.StatsService
	quota  *app.QuotaService
	logger zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(ingest *app.IngestService, stats *app.StatsService, quota *app.QuotaService, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{ingest: ingest, stats: stats, quota: quota, logger: logger}
}

// LogUsage handles POST /usage/log.
// The body must carry userId and type; everything else is optional.
func (h *UsageHandler) LogUsage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	var req app.LogRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	// Header identity fills in when the payload omits userId.
	if req.UserID == "" {
		if id := ResolveIdentityStrict(r); id != "" {
			req.UserID = id
		}
	}
	req.Raw = body

	if err := h.ingest.Log(r.Context(), req); err != nil {
		if errors.Is(err, app.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Ingestion is fire-and-forget past validation; anything else
		// here is a programming error.
		h.logger.Error().Err(err).Msg("unexpected ingest error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetStats handles GET /usage/stats.
// Identity comes from the userId query param, headers, or cookies.
func (h *UsageHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = ResolveIdentityStrict(r)
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary := h.stats.Stats(r.Context(), userID, start, end)
	writeJSON(w, http.StatusOK, summary)
}

// GetQuota handles GET /usage/quota.
func (h *UsageHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = ResolveIdentityStrict(r)
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	writeJSON(w, http.StatusOK, h.quota.Evaluate(r.Context(), userID))
}

// GetRecent handles GET /usage/recent, a debug surface listing the
// newest raw events for a user.
func (h *UsageHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = ResolveIdentityStrict(r)
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.stats.Recent(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("recent events query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if events == nil {
		events = []usage.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "events": events})
}

// parseWindow reads startDate/endDate query params (RFC3339 or
// YYYY-MM-DD). Absent params leave that bound open, so an undated
// query aggregates all recorded usage.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var start, end time.Time

	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid startDate")
		}
		start = t
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid endDate")
		}
		// A bare date means the whole day, inclusive.
		if len(v) == len("2006-01-02") {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		end = t
	}
	return start, end, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	pinger interface {
		Ping(ctx context.Context) error
	}
}

// NewHealthHandler creates a new health handler. pinger is typically
// the event store.
func NewHealthHandler(pinger interface{ Ping(ctx context.Context) error }) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness checks if the store is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// BuildVersion is set at build time via -ldflags.
var BuildVersion = "dev"

// Version returns the service version.
func Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: BuildVersion,
		Service: "metergate",
	})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics     *metrics.Collector
	ChatHandler *ChatHandler
	Timeout     time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(usageHandler *UsageHandler, healthHandler *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints
	r.Get("/health", healthHandler.Liveness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/version", Version)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Usage API
	r.Route("/usage", func(r chi.Router) {
		r.Post("/log", usageHandler.LogUsage)
		r.Get("/stats", usageHandler.GetStats)
		r.Get("/quota", usageHandler.GetQuota)
		r.Get("/recent", usageHandler.GetRecent)
	})

	// Chat passthrough
	if cfg.ChatHandler != nil {
		r.Post("/v1/chat", cfg.ChatHandler.Chat)
	}

	return r
}

// NewLoggingMiddleware creates a zerolog request logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware records request counts and latency.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := strconv.Itoa(ww.Status())
			m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
