package quota_test

import (
	"testing"
	"time"

	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/quota"
	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/domain/usage"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func freePlan() plan.Plan { return plan.Default().Find(plan.TierFree) }

func TestPercent(t *testing.T) {
	tests := []struct {
		name        string
		used, limit int64
		want        int
	}{
		{"half", 50, 100, 50},
		{"rounds", 495_000, 500_000, 99},
		{"rounds up", 996, 1000, 100},
		{"caps at 100", 2000, 1000, 100},
		{"zero limit", 500, 0, 0},
		{"zero usage", 0, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quota.Percent(tt.used, tt.limit); got != tt.want {
				t.Errorf("Percent(%d, %d) = %d, want %d", tt.used, tt.limit, got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	if got := quota.Remaining(300, 1000); got != 700 {
		t.Errorf("Remaining = %d, want 700", got)
	}
	if got := quota.Remaining(1500, 1000); got != 0 {
		t.Errorf("Remaining = %d, want 0 (never negative)", got)
	}
}

func TestEvaluate_FreePlanNearLimit(t *testing.T) {
	sub := subscription.DefaultFor("u1", now)
	summary := usage.Summary{TotalTokens: 475_000}

	st := quota.Evaluate(freePlan(), sub, summary, now)

	if st.Tokens.Percent != 95 {
		t.Errorf("Tokens.Percent = %d, want 95", st.Tokens.Percent)
	}
	if st.Tokens.Remaining != 25_000 {
		t.Errorf("Tokens.Remaining = %d, want 25000", st.Tokens.Remaining)
	}
	if st.State != quota.StateCritical {
		t.Errorf("State = %s, want critical", st.State)
	}
}

func TestEvaluate_States(t *testing.T) {
	tests := []struct {
		name   string
		tokens int64
		tools  int64
		want   quota.State
	}{
		{"normal", 100_000, 5, quota.StateNormal},
		{"warning at 75", 375_000, 0, quota.StateWarning},
		{"critical at 90", 450_000, 0, quota.StateCritical},
		{"tool dimension drives state", 0, 45, quota.StateCritical}, // 45/50 = 90%
	}

	sub := subscription.DefaultFor("u1", now)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := quota.Evaluate(freePlan(), sub, usage.Summary{TotalTokens: tt.tokens, ToolCalls: tt.tools}, now)
			if st.State != tt.want {
				t.Errorf("State = %s, want %s", st.State, tt.want)
			}
		})
	}
}

func TestEvaluate_ExtrasRaiseLimit(t *testing.T) {
	sub := subscription.DefaultFor("u1", now)
	sub.ExtraTokens = 500_000

	st := quota.Evaluate(freePlan(), sub, usage.Summary{TotalTokens: 500_000}, now)

	if st.Tokens.Limit != 1_000_000 {
		t.Errorf("Tokens.Limit = %d, want 1000000", st.Tokens.Limit)
	}
	if st.Tokens.Percent != 50 {
		t.Errorf("Tokens.Percent = %d, want 50", st.Tokens.Percent)
	}
}

func TestEvaluate_BlockedZeroesLimits(t *testing.T) {
	sub := subscription.DefaultFor("u1", now)
	sub.Blocked = true

	st := quota.Evaluate(freePlan(), sub, usage.Summary{TotalTokens: 100}, now)

	if st.Tokens.Limit != 0 || st.ToolCalls.Limit != 0 {
		t.Errorf("limits = %d/%d, want 0/0", st.Tokens.Limit, st.ToolCalls.Limit)
	}
	// limit=0 reports 0%, no division by zero
	if st.Tokens.Percent != 0 {
		t.Errorf("Tokens.Percent = %d, want 0", st.Tokens.Percent)
	}
}

func TestEvaluate_RenewalNotice(t *testing.T) {
	sub := subscription.DefaultFor("u1", now)
	sub.ExpiresAt = now.Add(3 * 24 * time.Hour)

	st := quota.Evaluate(freePlan(), sub, usage.Summary{}, now)
	if !st.RenewalNotice {
		t.Error("want renewal notice within 7 days of expiry")
	}

	sub.ExpiresAt = now.Add(30 * 24 * time.Hour)
	st = quota.Evaluate(freePlan(), sub, usage.Summary{}, now)
	if st.RenewalNotice {
		t.Error("no renewal notice a month out")
	}
}

func TestOverageCost(t *testing.T) {
	p := freePlan() // 0.002/token, 0.10/tool call

	cost := quota.OverageCost(p, 501_000, 55, 500_000, 50)
	want := 1000*0.002 + 5*0.1
	if cost != want {
		t.Errorf("OverageCost = %v, want %v", cost, want)
	}

	if got := quota.OverageCost(p, 100, 1, 500_000, 50); got != 0 {
		t.Errorf("OverageCost under limit = %v, want 0", got)
	}
}
