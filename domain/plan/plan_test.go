package plan_test

import (
	"testing"

	"github.com/artpar/metergate/domain/plan"
)

func TestDefaultCatalogLimits(t *testing.T) {
	tests := []struct {
		tier       plan.Tier
		wantTokens int64
		wantTools  int64
	}{
		{plan.TierFree, 500_000, 50},
		{plan.TierBasic, 2_000_000, 300},
		{plan.TierPro, 5_000_000, 1000},
		{plan.TierEnterprise, 20_000_000, 5000},
	}

	catalog := plan.Default()
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			p := catalog.Find(tt.tier)
			if p.MonthlyTokenLimit != tt.wantTokens {
				t.Errorf("MonthlyTokenLimit = %d, want %d", p.MonthlyTokenLimit, tt.wantTokens)
			}
			if p.ToolCallLimit != tt.wantTools {
				t.Errorf("ToolCallLimit = %d, want %d", p.ToolCallLimit, tt.wantTools)
			}
		})
	}
}

func TestFind_UnknownTierFallsBackToFree(t *testing.T) {
	p := plan.Default().Find("platinum")
	if p.Tier != plan.TierFree {
		t.Errorf("Tier = %s, want free", p.Tier)
	}
}

func TestOverride(t *testing.T) {
	catalog := plan.Default().Override([]plan.Plan{
		{Tier: plan.TierFree, Name: "Trial", MonthlyTokenLimit: 100_000, ToolCallLimit: 10},
	})

	p := catalog.Find(plan.TierFree)
	if p.MonthlyTokenLimit != 100_000 {
		t.Errorf("MonthlyTokenLimit = %d, want 100000", p.MonthlyTokenLimit)
	}
	// Other tiers untouched
	if got := catalog.Find(plan.TierPro).MonthlyTokenLimit; got != 5_000_000 {
		t.Errorf("Pro MonthlyTokenLimit = %d, want 5000000", got)
	}
}

func TestTierIsValid(t *testing.T) {
	if !plan.TierBasic.IsValid() {
		t.Error("basic should be valid")
	}
	if plan.Tier("gold").IsValid() {
		t.Error("gold should be invalid")
	}
}
