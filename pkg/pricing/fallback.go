package pricing

// family is a model family price point used when the dataset has no match.
type family struct {
	name  string
	entry Entry
}

func perMillion(v float64) *float64 {
	f := v / 1_000_000
	return &f
}

// fallbackFamilies is matched by case-insensitive substring, most specific
// family first so "claude-opus-4-5" is not swallowed by "claude-opus-4".
var fallbackFamilies = []family{
	{"claude-opus-4-5", Entry{
		InputCostPerToken:      perMillion(15),
		OutputCostPerToken:     perMillion(75),
		CacheReadCostPerToken:  perMillion(1.5),
		CacheWriteCostPerToken: perMillion(18.75),
	}},
	{"claude-opus-4", Entry{
		InputCostPerToken:      perMillion(15),
		OutputCostPerToken:     perMillion(75),
		CacheReadCostPerToken:  perMillion(1.5),
		CacheWriteCostPerToken: perMillion(18.75),
	}},
	{"claude-sonnet-4-5", Entry{
		InputCostPerToken:      perMillion(3),
		OutputCostPerToken:     perMillion(15),
		CacheReadCostPerToken:  perMillion(0.3),
		CacheWriteCostPerToken: perMillion(3.75),
	}},
	{"claude-sonnet-4", Entry{
		InputCostPerToken:      perMillion(3),
		OutputCostPerToken:     perMillion(15),
		CacheReadCostPerToken:  perMillion(0.3),
		CacheWriteCostPerToken: perMillion(3.75),
	}},
	{"claude-haiku-4-5", Entry{
		InputCostPerToken:      perMillion(0.8),
		OutputCostPerToken:     perMillion(4),
		CacheReadCostPerToken:  perMillion(0.08),
		CacheWriteCostPerToken: perMillion(1),
	}},
}

// FallbackFamilies lists the family names of the built-in price table.
func FallbackFamilies() []string {
	names := make([]string, len(fallbackFamilies))
	for i, f := range fallbackFamilies {
		names[i] = f.name
	}
	return names
}
