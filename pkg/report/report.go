// Package report prices aggregated usage records and builds the daily
// contribution data behind the usage graph.
package report

import (
	"sort"

	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/pricing"
)

// PriceLookup resolves a model id to pricing. *pricing.Resolver implements it.
type PriceLookup interface {
	Lookup(modelID string) (pricing.Match, bool)
}

// ModelCost is one priced usage record.
type ModelCost struct {
	Model        string              `json:"model"`
	MessageCount int64               `json:"messageCount"`
	Tokens       pricing.TokenCounts `json:"tokens"`
	TotalTokens  int64               `json:"totalTokens"`
	PricingKey   string              `json:"pricingKey"`
	Strategy     pricing.Strategy    `json:"strategy"`
	Breakdown    pricing.Breakdown   `json:"breakdown"`
	Cost         float64             `json:"cost"`
}

// Report is the cost report over a set of usage records.
type Report struct {
	Models        []ModelCost          `json:"models"`
	Unpriced      []models.UsageRecord `json:"unpriced"`
	TotalTokens   int64                `json:"totalTokens"`
	TotalMessages int64                `json:"totalMessages"`
	TotalCost     float64              `json:"totalCost"`
}

// TokensFor maps a usage record onto billable categories. Cached input is a
// subset of input, so only the uncached remainder is billed at the input rate.
func TokensFor(r models.UsageRecord) pricing.TokenCounts {
	input := r.Input - r.CachedInput
	if input < 0 {
		input = 0
	}
	return pricing.TokenCounts{
		Input:     input,
		Output:    r.Output,
		Reasoning: r.Reasoning,
		CacheRead: r.CachedInput,
	}
}

// Build prices each record. Records whose model cannot be resolved are listed
// in Unpriced; their tokens still count towards the totals.
func Build(records []models.UsageRecord, prices PriceLookup) Report {
	rep := Report{
		Models:   []ModelCost{},
		Unpriced: []models.UsageRecord{},
	}
	for _, r := range records {
		rep.TotalTokens += r.TotalTokens()
		rep.TotalMessages += r.MessageCount

		m, ok := prices.Lookup(r.Model)
		if !ok {
			rep.Unpriced = append(rep.Unpriced, r)
			continue
		}
		tokens := TokensFor(r)
		b := pricing.CostBreakdown(tokens, m.Entry)
		mc := ModelCost{
			Model:        r.Model,
			MessageCount: r.MessageCount,
			Tokens:       tokens,
			TotalTokens:  r.TotalTokens(),
			PricingKey:   m.Key,
			Strategy:     m.Strategy,
			Breakdown:    b,
			Cost:         b.Total(),
		}
		rep.TotalCost += mc.Cost
		rep.Models = append(rep.Models, mc)
	}

	sort.Slice(rep.Models, func(i, j int) bool {
		if rep.Models[i].Cost != rep.Models[j].Cost {
			return rep.Models[i].Cost > rep.Models[j].Cost
		}
		return rep.Models[i].Model < rep.Models[j].Model
	})
	sort.Slice(rep.Unpriced, func(i, j int) bool {
		return rep.Unpriced[i].Model < rep.Unpriced[j].Model
	})
	return rep
}
