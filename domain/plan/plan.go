// Package plan defines the subscription plan catalog.
// Plans are value types; lookups are pure functions.
package plan

// Tier identifies a subscription plan level.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// IsValid reports whether t names a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Plan describes the entitlements of a subscription tier (value type).
// Prices are in USD; ExtraTokenPrice is per token, ExtraToolCallPrice
// per call.
type Plan struct {
	Tier               Tier     `json:"id" yaml:"tier"`
	Name               string   `json:"name" yaml:"name"`
	Description        string   `json:"description" yaml:"description"`
	MonthlyTokenLimit  int64    `json:"monthlyTokenLimit" yaml:"monthly_token_limit"`
	ToolCallLimit      int64    `json:"toolCallLimit" yaml:"tool_call_limit"`
	ExtraTokenPrice    float64  `json:"extraTokenPrice" yaml:"extra_token_price"`
	ExtraToolCallPrice float64  `json:"extraToolCallPrice" yaml:"extra_tool_call_price"`
	PriceMonthly       float64  `json:"priceMonthly" yaml:"price_monthly"`
	PriceYearly        float64  `json:"priceYearly" yaml:"price_yearly"`
	Features           []string `json:"features" yaml:"features"`
}

// Catalog is an ordered set of plans keyed by tier.
type Catalog []Plan

// Default is the built-in plan catalog. A config override replaces
// individual entries by tier without touching the rest.
func Default() Catalog {
	return Catalog{
		{
			Tier:               TierFree,
			Name:               "Free Plan",
			Description:        "Get started with basic access to AI assistants",
			MonthlyTokenLimit:  500_000,
			ToolCallLimit:      50,
			ExtraTokenPrice:    0.002,
			ExtraToolCallPrice: 0.1,
			Features: []string{
				"Access to basic models",
				"Limited monthly tokens",
				"Limited tool calls",
			},
		},
		{
			Tier:               TierBasic,
			Name:               "Basic Plan",
			Description:        "Ideal for personal or light professional use",
			MonthlyTokenLimit:  2_000_000,
			ToolCallLimit:      300,
			ExtraTokenPrice:    0.0015,
			ExtraToolCallPrice: 0.08,
			PriceMonthly:       9.99,
			PriceYearly:        99.90,
			Features: []string{
				"All Free features",
				"Increased token limit",
				"Priority response times",
			},
		},
		{
			Tier:               TierPro,
			Name:               "Pro Plan",
			Description:        "For power users and professionals",
			MonthlyTokenLimit:  5_000_000,
			ToolCallLimit:      1000,
			ExtraTokenPrice:    0.001,
			ExtraToolCallPrice: 0.05,
			PriceMonthly:       19.99,
			PriceYearly:        199.90,
			Features: []string{
				"All Basic features",
				"Access to advanced models",
				"Early access to new features",
			},
		},
		{
			Tier:               TierEnterprise,
			Name:               "Enterprise Plan",
			Description:        "Custom solutions for teams and organizations",
			MonthlyTokenLimit:  20_000_000,
			ToolCallLimit:      5000,
			ExtraTokenPrice:    0.0008,
			ExtraToolCallPrice: 0.03,
			PriceMonthly:       49.99,
			PriceYearly:        499.90,
			Features: []string{
				"All Pro features",
				"Dedicated support",
				"Team management",
			},
		},
	}
}

// Find returns the plan for a tier. Unknown tiers fall back to Free so
// quota checks always have a concrete limit to work with.
// This is a PURE function.
func (c Catalog) Find(t Tier) Plan {
	for _, p := range c {
		if p.Tier == t {
			return p
		}
	}
	for _, p := range c {
		if p.Tier == TierFree {
			return p
		}
	}
	// Catalog without a free tier is a config error; fail closed.
	return Plan{Tier: TierFree, Name: "Free Plan"}
}

// Override replaces catalog entries whose tier matches an override entry.
// This is a PURE function.
func (c Catalog) Override(overrides []Plan) Catalog {
	out := make(Catalog, len(c))
	copy(out, c)
	for _, o := range overrides {
		replaced := false
		for i, p := range out {
			if p.Tier == o.Tier {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}
