package app

import (
	"context"
	"errors"
	"sync"

	"github.com/artpar/metergate/adapters/metrics"
	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/quota"
	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/domain/usage"
	"github.com/artpar/metergate/ports"
	"github.com/rs/zerolog"
)

// QuotaService evaluates a user's current-month usage against their
// subscription entitlements.
type QuotaService struct {
	events  ports.EventStore
	subs    ports.SubscriptionStore
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger

	mu           sync.RWMutex
	catalog      plan.Catalog
	expiryPolicy subscription.ExpiryPolicy
}

// NewQuotaService creates a new quota service.
func NewQuotaService(
	events ports.EventStore,
	subs ports.SubscriptionStore,
	catalog plan.Catalog,
	expiryPolicy subscription.ExpiryPolicy,
	clock ports.Clock,
	m *metrics.Collector,
	logger zerolog.Logger,
) *QuotaService {
	return &QuotaService{
		events:       events,
		subs:         subs,
		catalog:      catalog,
		expiryPolicy: expiryPolicy,
		clock:        clock,
		metrics:      m,
		logger:       logger,
	}
}

// SetCatalog replaces the plan catalog and expiry policy. Used by
// config hot reload.
func (s *QuotaService) SetCatalog(catalog plan.Catalog, policy subscription.ExpiryPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
	s.expiryPolicy = policy
}

// Evaluate computes the quota status for a user. Unknown users and
// subscription lookup failures fall back to the default Free
// subscription; usage lookup failures count as zero usage.
func (s *QuotaService) Evaluate(ctx context.Context, userID string) quota.Status {
	now := s.clock.Now()

	s.mu.RLock()
	catalog := s.catalog
	expiryPolicy := s.expiryPolicy
	s.mu.RUnlock()

	sub, err := s.subs.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Error().Err(err).
				Str("user_id", userID).
				Msg("subscription lookup failed, assuming free tier")
		}
		sub = subscription.DefaultFor(userID, now)
	}
	sub = subscription.Effective(sub, expiryPolicy, now)

	start, end := usage.PeriodBounds(now)
	summary, err := s.events.Summarize(ctx, userID, start, end)
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Msg("usage lookup failed, evaluating against zero usage")
		summary = usage.Summary{}
	}

	st := quota.Evaluate(catalog.Find(sub.Tier), sub, summary, now)
	if s.metrics != nil {
		s.metrics.QuotaEvaluations.WithLabelValues(string(st.State)).Inc()
	}
	return st
}
