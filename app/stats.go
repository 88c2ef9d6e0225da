package app

import (
	"context"
	"time"

	"github.com/artpar/metergate/adapters/metrics"
	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
	"github.com/rs/zerolog"
)

// StatsService aggregates usage for dashboards. Availability wins over
// correctness here: a broken store yields a zero-valued summary, not
// an error to the caller.
type StatsService struct {
	store   ports.EventStore
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewStatsService creates a new stats service.
func NewStatsService(store ports.EventStore, m *metrics.Collector, logger zerolog.Logger) *StatsService {
	return &StatsService{store: store, metrics: m, logger: logger}
}

// Stats returns the usage summary for a user within [start, end].
// Store errors are logged and masked as an empty summary.
func (s *StatsService) Stats(ctx context.Context, userID string, start, end time.Time) usage.Summary {
	began := time.Now()
	summary, err := s.store.Summarize(ctx, userID, start, end)
	if s.metrics != nil {
		s.metrics.StoreQueryDuration.WithLabelValues("summarize").Observe(time.Since(began).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues("summarize").Inc()
		}
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Msg("summarize failed, returning empty summary")
		return emptySummary(userID, start, end)
	}
	summary.UserID = userID
	return summary
}

// Recent returns the newest events for a user, for debug surfaces.
func (s *StatsService) Recent(ctx context.Context, userID string, limit int) ([]usage.Event, error) {
	return s.store.Query(ctx, ports.EventFilter{UserID: userID, Limit: limit})
}

func emptySummary(userID string, start, end time.Time) usage.Summary {
	s := usage.Summarize(nil, start, end)
	s.UserID = userID
	return s
}
