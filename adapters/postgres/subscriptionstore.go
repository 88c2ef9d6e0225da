package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/ports"
)

// SubscriptionStore implements ports.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a new PostgreSQL subscription store.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Get retrieves the subscription for a user.
func (s *SubscriptionStore) Get(ctx context.Context, userID string) (subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, tier, expires_at, extra_tokens, extra_tool_calls
		FROM subscriptions
		WHERE user_id = $1
	`, userID)

	var sub subscription.Subscription
	var tier string
	var expiresAt sql.NullTime
	err := row.Scan(&sub.UserID, &tier, &expiresAt, &sub.ExtraTokens, &sub.ExtraToolCalls)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, ports.ErrNotFound
	}
	if err != nil {
		return subscription.Subscription{}, err
	}
	sub.Tier = plan.Tier(tier)
	if expiresAt.Valid {
		sub.ExpiresAt = expiresAt.Time.UTC()
	}
	return sub, nil
}

// Upsert creates or replaces a user's subscription.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub subscription.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, tier, expires_at, extra_tokens, extra_tool_calls)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			expires_at = EXCLUDED.expires_at,
			extra_tokens = EXCLUDED.extra_tokens,
			extra_tool_calls = EXCLUDED.extra_tool_calls
	`, sub.UserID, string(sub.Tier), nullableTime(sub.ExpiresAt), sub.ExtraTokens, sub.ExtraToolCalls)
	return err
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
