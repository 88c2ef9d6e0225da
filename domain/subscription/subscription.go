// Package subscription models per-user subscription state.
// The billing system owns this data; here it is read-mostly input to
// quota evaluation.
package subscription

import (
	"time"

	"github.com/artpar/metergate/domain/plan"
)

// Subscription is a user's current plan binding (value type).
// ExtraTokens and ExtraToolCalls are purchased on top of the plan limits.
type Subscription struct {
	UserID         string    `json:"userId"`
	Tier           plan.Tier `json:"tier"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ExtraTokens    int64     `json:"extraTokens"`
	ExtraToolCalls int64     `json:"extraToolCalls"`

	// Blocked is set by Effective under the block expiry policy;
	// a blocked subscription has zero effective limits.
	Blocked bool `json:"blocked,omitempty"`
}

// ExpiryPolicy selects what an expired subscription degrades to.
type ExpiryPolicy string

const (
	// ExpiryRevertToFree treats an expired subscription as Free tier.
	ExpiryRevertToFree ExpiryPolicy = "revert-to-free"
	// ExpiryBlock zeroes all entitlements until renewal.
	ExpiryBlock ExpiryPolicy = "block"
)

// DefaultFor returns the subscription assumed for an unknown user:
// Free tier expiring at the end of the current month.
// This is a PURE function.
func DefaultFor(userID string, now time.Time) Subscription {
	return Subscription{
		UserID:    userID,
		Tier:      plan.TierFree,
		ExpiresAt: endOfMonth(now),
	}
}

// Expired reports whether the subscription has lapsed at now.
// A zero ExpiresAt means no expiry.
func (s Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ExpiresWithin reports whether the subscription lapses within d of now.
func (s Subscription) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt.IsZero() || s.Expired(now) {
		return false
	}
	return s.ExpiresAt.Sub(now) <= d
}

// Effective applies the expiry policy to a possibly lapsed subscription.
// Unexpired subscriptions pass through unchanged.
// This is a PURE function.
func Effective(s Subscription, policy ExpiryPolicy, now time.Time) Subscription {
	if !s.Expired(now) {
		return s
	}
	switch policy {
	case ExpiryBlock:
		s.ExtraTokens = 0
		s.ExtraToolCalls = 0
		s.Blocked = true
		return s
	default: // revert-to-free
		s.Tier = plan.TierFree
		return s
	}
}

func endOfMonth(t time.Time) time.Time {
	t = t.UTC()
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Nanosecond)
}
