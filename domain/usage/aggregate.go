package usage

import (
	"sort"
	"time"
)

// RecentActivityLimit caps the recent-activity list in a Summary.
const RecentActivityLimit = 10

// ModelUsage is the per-(provider, model) slice of a Summary.
type ModelUsage struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	TotalTokens int64  `json:"totalTokens"`
	Messages    int64  `json:"messages"`
}

// ToolCount is the per-tool slice of a Summary.
type ToolCount struct {
	ToolName string `json:"toolName"`
	Count    int64  `json:"count"`
}

// DailyTokens is one UTC calendar day of token usage.
type DailyTokens struct {
	Date        string `json:"date"` // YYYY-MM-DD
	TotalTokens int64  `json:"totalTokens"`
	Messages    int64  `json:"messages"`
}

// Activity is one entry in the recent-activity list.
type Activity struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"type"`
	Model     string    `json:"model,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	ToolName  string    `json:"toolName,omitempty"`
	Tokens    int64     `json:"tokens,omitempty"`
}

// Summary aggregates a user's usage over a window (value type).
type Summary struct {
	UserID         string        `json:"userId,omitempty"`
	PeriodStart    time.Time     `json:"periodStart,omitempty"`
	PeriodEnd      time.Time     `json:"periodEnd,omitempty"`
	TotalTokens    int64         `json:"totalTokens"`
	InputTokens    int64         `json:"inputTokens"`
	OutputTokens   int64         `json:"outputTokens"`
	TotalMessages  int64         `json:"totalMessages"`
	ToolCalls      int64         `json:"toolCalls"`
	ModelBreakdown []ModelUsage  `json:"modelBreakdown"`
	ToolUsage      []ToolCount   `json:"toolUsage"`
	DailyUsage     []DailyTokens `json:"dailyUsage"`
	RecentActivity []Activity    `json:"recentActivity"`
}

// Summarize aggregates events within [start, end] into a Summary.
// Token totals and message counts come from completion events only;
// tool counts from tool events. A zero start/end leaves that bound open.
// Empty input yields a zero-valued Summary.
// This is a PURE function.
func Summarize(events []Event, start, end time.Time) Summary {
	s := Summary{
		PeriodStart:    start,
		PeriodEnd:      end,
		ModelBreakdown: []ModelUsage{},
		ToolUsage:      []ToolCount{},
		DailyUsage:     []DailyTokens{},
		RecentActivity: []Activity{},
	}

	type modelKey struct{ provider, model string }
	models := map[modelKey]*ModelUsage{}
	tools := map[string]int64{}
	days := map[string]*DailyTokens{}
	var recent []Activity

	for _, e := range events {
		if !e.InWindow(start, end) {
			continue
		}
		if s.UserID == "" {
			s.UserID = e.UserID
		}

		switch e.Kind {
		case KindCompletion:
			s.TotalTokens += e.TotalTokens
			s.InputTokens += e.InputTokens
			s.OutputTokens += e.OutputTokens
			s.TotalMessages++

			k := modelKey{e.Provider, e.Model}
			m, ok := models[k]
			if !ok {
				m = &ModelUsage{Provider: e.Provider, Model: e.Model}
				models[k] = m
			}
			m.TotalTokens += e.TotalTokens
			m.Messages++

			day := e.Timestamp.UTC().Format("2006-01-02")
			d, ok := days[day]
			if !ok {
				d = &DailyTokens{Date: day}
				days[day] = d
			}
			d.TotalTokens += e.TotalTokens
			d.Messages++

			recent = append(recent, Activity{
				Timestamp: e.Timestamp,
				Kind:      KindCompletion,
				Model:     e.Model,
				Provider:  e.Provider,
				Tokens:    e.TotalTokens,
			})

		case KindTool:
			s.ToolCalls++
			tools[e.ToolName]++
			recent = append(recent, Activity{
				Timestamp: e.Timestamp,
				Kind:      KindTool,
				ToolName:  e.ToolName,
			})
		}
	}

	for _, m := range models {
		s.ModelBreakdown = append(s.ModelBreakdown, *m)
	}
	sort.Slice(s.ModelBreakdown, func(i, j int) bool {
		a, b := s.ModelBreakdown[i], s.ModelBreakdown[j]
		if a.TotalTokens != b.TotalTokens {
			return a.TotalTokens > b.TotalTokens
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.Model < b.Model
	})

	for name, n := range tools {
		s.ToolUsage = append(s.ToolUsage, ToolCount{ToolName: name, Count: n})
	}
	sort.Slice(s.ToolUsage, func(i, j int) bool {
		a, b := s.ToolUsage[i], s.ToolUsage[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ToolName < b.ToolName
	})

	for _, d := range days {
		s.DailyUsage = append(s.DailyUsage, *d)
	}
	sort.Slice(s.DailyUsage, func(i, j int) bool {
		return s.DailyUsage[i].Date > s.DailyUsage[j].Date
	})

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > RecentActivityLimit {
		recent = recent[:RecentActivityLimit]
	}
	s.RecentActivity = recent
	if s.RecentActivity == nil {
		s.RecentActivity = []Activity{}
	}

	return s
}

// MergeSummaries combines summaries from disjoint event sets.
// Breakdown slices are re-sorted; recent activity keeps the newest entries.
// This is a PURE function.
func MergeSummaries(summaries ...Summary) Summary {
	if len(summaries) == 0 {
		return Summary{}
	}

	result := summaries[0]
	for _, s := range summaries[1:] {
		result.TotalTokens += s.TotalTokens
		result.InputTokens += s.InputTokens
		result.OutputTokens += s.OutputTokens
		result.TotalMessages += s.TotalMessages
		result.ToolCalls += s.ToolCalls
		result.ModelBreakdown = mergeModels(result.ModelBreakdown, s.ModelBreakdown)
		result.ToolUsage = mergeTools(result.ToolUsage, s.ToolUsage)
		result.DailyUsage = mergeDays(result.DailyUsage, s.DailyUsage)
		result.RecentActivity = append(result.RecentActivity, s.RecentActivity...)

		if !s.PeriodStart.IsZero() && (result.PeriodStart.IsZero() || s.PeriodStart.Before(result.PeriodStart)) {
			result.PeriodStart = s.PeriodStart
		}
		if s.PeriodEnd.After(result.PeriodEnd) {
			result.PeriodEnd = s.PeriodEnd
		}
	}

	sort.Slice(result.RecentActivity, func(i, j int) bool {
		return result.RecentActivity[i].Timestamp.After(result.RecentActivity[j].Timestamp)
	})
	if len(result.RecentActivity) > RecentActivityLimit {
		result.RecentActivity = result.RecentActivity[:RecentActivityLimit]
	}

	return result
}

func mergeModels(a, b []ModelUsage) []ModelUsage {
	type key struct{ provider, model string }
	acc := map[key]*ModelUsage{}
	for _, lst := range [][]ModelUsage{a, b} {
		for _, m := range lst {
			k := key{m.Provider, m.Model}
			if cur, ok := acc[k]; ok {
				cur.TotalTokens += m.TotalTokens
				cur.Messages += m.Messages
			} else {
				cp := m
				acc[k] = &cp
			}
		}
	}
	out := make([]ModelUsage, 0, len(acc))
	for _, m := range acc {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTokens != out[j].TotalTokens {
			return out[i].TotalTokens > out[j].TotalTokens
		}
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

func mergeTools(a, b []ToolCount) []ToolCount {
	acc := map[string]int64{}
	for _, lst := range [][]ToolCount{a, b} {
		for _, t := range lst {
			acc[t.ToolName] += t.Count
		}
	}
	out := make([]ToolCount, 0, len(acc))
	for name, n := range acc {
		out = append(out, ToolCount{ToolName: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ToolName < out[j].ToolName
	})
	return out
}

func mergeDays(a, b []DailyTokens) []DailyTokens {
	acc := map[string]*DailyTokens{}
	for _, lst := range [][]DailyTokens{a, b} {
		for _, d := range lst {
			if cur, ok := acc[d.Date]; ok {
				cur.TotalTokens += d.TotalTokens
				cur.Messages += d.Messages
			} else {
				cp := d
				acc[d.Date] = &cp
			}
		}
	}
	out := make([]DailyTokens, 0, len(acc))
	for _, d := range acc {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// PeriodBounds returns the start and end of the calendar month containing t.
// This is a PURE function.
func PeriodBounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}
