package usage

import "time"

// Token cost multipliers, used to weight raw token counts for billing
// and quota purposes. Model-specific entries win over provider entries.

// DefaultCostMultiplier applies when neither model nor provider matches.
const DefaultCostMultiplier = 1.0

var modelMultipliers = map[string]float64{
	"o3-mini":           2.0,
	"o1-mini":           2.0,
	"gpt-4o":            2.0,
	"claude-3-opus":     8.0,
	"claude-3.7-sonnet": 2.3,
	"gemini-pro":        1.0,
	"gemini-ultra":      2.5,
}

var providerMultipliers = map[string]float64{
	"openai":    1.0,
	"anthropic": 1.5,
	"google":    1.0,
	"deepseek":  0.8,
}

// CostMultiplier returns the token cost multiplier for a model/provider pair.
// This is a PURE function.
func CostMultiplier(model, provider string) float64 {
	if m, ok := modelMultipliers[model]; ok {
		return m
	}
	if p, ok := providerMultipliers[provider]; ok {
		return p
	}
	return DefaultCostMultiplier
}

// AdjustedTokens returns the cost-weighted token total over completion
// events in [start, end].
// This is a PURE function.
func AdjustedTokens(events []Event, start, end time.Time) float64 {
	var total float64
	for _, e := range events {
		if e.Kind != KindCompletion || !e.InWindow(start, end) {
			continue
		}
		total += float64(e.TotalTokens) * CostMultiplier(e.Model, e.Provider)
	}
	return total
}
