// Package quota provides pure functions for quota evaluation.
// All functions are deterministic with no side effects.
package quota

import (
	"math"
	"time"

	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/domain/usage"
)

// RenewalNoticeWindow is how far ahead of expiry the renewal notice shows.
const RenewalNoticeWindow = 7 * 24 * time.Hour

// State classifies how close to the limit a user is.
type State string

const (
	StateNormal   State = "normal"   // < 75% on both dimensions
	StateWarning  State = "warning"  // >= 75% on either dimension
	StateCritical State = "critical" // >= 90% on either dimension
)

// Dimension is one metered limit (tokens or tool calls).
type Dimension struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Percent   int   `json:"percent"`
}

// Status is the outcome of a quota evaluation (value type).
type Status struct {
	UserID        string    `json:"userId"`
	Tier          plan.Tier `json:"tier"`
	Tokens        Dimension `json:"tokens"`
	ToolCalls     Dimension `json:"toolCalls"`
	State         State     `json:"state"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
	RenewalNotice bool      `json:"renewalNotice"`
	OverageCost   float64   `json:"overageCost"`
}

// Percent returns min(100, round(100*used/limit)); 0 when limit is 0.
// This is a PURE function.
func Percent(used, limit int64) int {
	if limit <= 0 {
		return 0
	}
	pct := int(math.Round(float64(used) / float64(limit) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// Remaining returns max(0, limit-used).
// This is a PURE function.
func Remaining(used, limit int64) int64 {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}

// Evaluate combines a plan, a subscription, and a usage summary into a
// quota Status. Limits are plan limits plus purchased extras; a blocked
// subscription has zero limits.
// This is a PURE function.
func Evaluate(p plan.Plan, sub subscription.Subscription, s usage.Summary, now time.Time) Status {
	tokenLimit := p.MonthlyTokenLimit + sub.ExtraTokens
	toolLimit := p.ToolCallLimit + sub.ExtraToolCalls
	if sub.Blocked {
		tokenLimit = 0
		toolLimit = 0
	}

	st := Status{
		UserID: sub.UserID,
		Tier:   sub.Tier,
		Tokens: Dimension{
			Used:      s.TotalTokens,
			Limit:     tokenLimit,
			Remaining: Remaining(s.TotalTokens, tokenLimit),
			Percent:   Percent(s.TotalTokens, tokenLimit),
		},
		ToolCalls: Dimension{
			Used:      s.ToolCalls,
			Limit:     toolLimit,
			Remaining: Remaining(s.ToolCalls, toolLimit),
			Percent:   Percent(s.ToolCalls, toolLimit),
		},
		ExpiresAt:     sub.ExpiresAt,
		RenewalNotice: sub.ExpiresWithin(now, RenewalNoticeWindow),
	}

	worst := st.Tokens.Percent
	if st.ToolCalls.Percent > worst {
		worst = st.ToolCalls.Percent
	}
	switch {
	case worst >= 90:
		st.State = StateCritical
	case worst >= 75:
		st.State = StateWarning
	default:
		st.State = StateNormal
	}

	st.OverageCost = OverageCost(p, s.TotalTokens, s.ToolCalls, tokenLimit, toolLimit)
	return st
}

// OverageCost prices usage beyond the effective limits with the plan's
// per-unit overage rates.
// This is a PURE function.
func OverageCost(p plan.Plan, tokensUsed, toolsUsed, tokenLimit, toolLimit int64) float64 {
	var cost float64
	if over := tokensUsed - tokenLimit; over > 0 {
		cost += float64(over) * p.ExtraTokenPrice
	}
	if over := toolsUsed - toolLimit; over > 0 {
		cost += float64(over) * p.ExtraToolCallPrice
	}
	return cost
}
