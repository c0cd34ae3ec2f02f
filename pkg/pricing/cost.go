package pricing

// TieredThreshold is the token count above which the Above* rates apply.
const TieredThreshold = 200_000

// TokenCounts are the billable token categories of one cost computation.
// Reasoning tokens are billed as output.
type TokenCounts struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	Reasoning  int64 `json:"reasoning"`
	CacheRead  int64 `json:"cacheRead"`
	CacheWrite int64 `json:"cacheWrite"`
}

// Breakdown is the cost of each billable category.
type Breakdown struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cacheWrite"`
	CacheRead  float64 `json:"cacheRead"`
}

// Total sums all categories.
func (b Breakdown) Total() float64 {
	return b.Input + b.Output + b.CacheWrite + b.CacheRead
}

// CalculateCost returns the total cost of tokens under p. The result is not
// rounded.
func CalculateCost(tokens TokenCounts, p Entry) float64 {
	return CostBreakdown(tokens, p).Total()
}

// CostBreakdown computes the per-category costs behind CalculateCost.
func CostBreakdown(tokens TokenCounts, p Entry) Breakdown {
	return Breakdown{
		Input:      tiered(tokens.Input, p.InputCostPerToken, p.InputCostPerTokenAbove),
		Output:     tiered(tokens.Output+tokens.Reasoning, p.OutputCostPerToken, p.OutputCostPerTokenAbove),
		CacheWrite: tiered(tokens.CacheWrite, p.CacheWriteCostPerToken, p.CacheWriteCostPerTokenAbove),
		CacheRead:  tiered(tokens.CacheRead, p.CacheReadCostPerToken, p.CacheReadCostPerTokenAbove),
	}
}

func tiered(count int64, base, above *float64) float64 {
	if base == nil || *base == 0 || count <= 0 {
		return 0
	}
	if count <= TieredThreshold || above == nil || *above == 0 {
		return float64(count) * *base
	}
	return TieredThreshold**base + float64(count-TieredThreshold)**above
}
