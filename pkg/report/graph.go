package report

import (
	"math"
	"sort"
	"time"

	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/pricing"
)

// MaxIntensity is the highest contribution level.
const MaxIntensity = 4

// GraphOptions bounds the graph. Zero Since/Until default to the first and
// last day with usage.
type GraphOptions struct {
	Since time.Time
	Until time.Time
	Now   func() time.Time
}

// Totals are the headline counters of a day.
type Totals struct {
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Messages int64   `json:"messages"`
}

// TokenBreakdown splits a day's tokens by category.
type TokenBreakdown struct {
	Input     int64 `json:"input"`
	Output    int64 `json:"output"`
	CacheRead int64 `json:"cacheRead"`
	Reasoning int64 `json:"reasoning"`
}

// ModelDay is one model's share of a day.
type ModelDay struct {
	Model    string  `json:"model"`
	Source   string  `json:"source"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Messages int64   `json:"messages"`
	Priced   bool    `json:"priced"`
}

// Contribution is one calendar cell.
type Contribution struct {
	Date           string         `json:"date"`
	Totals         Totals         `json:"totals"`
	Intensity      int            `json:"intensity"`
	TokenBreakdown TokenBreakdown `json:"tokenBreakdown"`
	Models         []ModelDay     `json:"models"`
}

// DateRange is an inclusive span of days.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Meta describes how the graph was produced.
type Meta struct {
	GeneratedAt time.Time `json:"generatedAt"`
	DateRange   DateRange `json:"dateRange"`
}

// Summary aggregates the whole range.
type Summary struct {
	TotalTokens int64    `json:"totalTokens"`
	TotalCost   float64  `json:"totalCost"`
	TotalDays   int      `json:"totalDays"`
	ActiveDays  int      `json:"activeDays"`
	MaxCost     float64  `json:"maxCost"`
	MaxCostDay  string   `json:"maxCostDay,omitempty"`
	Models      []string `json:"models"`
	Unpriced    []string `json:"unpriced"`
}

// Contributions is the full graph payload.
type Contributions struct {
	Meta          Meta           `json:"meta"`
	Summary       Summary        `json:"summary"`
	Contributions []Contribution `json:"contributions"`
}

// Graph turns daily usage into one contribution per day in the range.
func Graph(daily []models.DailyUsage, prices PriceLookup, opts GraphOptions) Contributions {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	byDay := make(map[string][]models.DailyUsage)
	var first, last string
	for _, d := range daily {
		byDay[d.Day] = append(byDay[d.Day], d)
		if first == "" || d.Day < first {
			first = d.Day
		}
		if d.Day > last {
			last = d.Day
		}
	}

	start, end := truncateDay(opts.Since), truncateDay(opts.Until)
	if start.IsZero() && first != "" {
		start, _ = time.Parse(time.DateOnly, first)
	}
	if end.IsZero() && last != "" {
		end, _ = time.Parse(time.DateOnly, last)
	}

	out := Contributions{
		Meta: Meta{GeneratedAt: now().UTC()},
		Summary: Summary{
			Models:   []string{},
			Unpriced: []string{},
		},
		Contributions: []Contribution{},
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return out
	}
	out.Meta.DateRange = DateRange{Start: start.Format(time.DateOnly), End: end.Format(time.DateOnly)}

	seen := make(map[string]bool)
	unpriced := make(map[string]bool)
	anyPriced := false

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		c := Contribution{Date: key, Models: []ModelDay{}}
		for _, d := range byDay[key] {
			md := ModelDay{
				Model:    d.Model,
				Source:   d.Source,
				Tokens:   d.TotalTokens(),
				Messages: d.MessageCount,
			}
			if m, ok := prices.Lookup(d.Model); ok {
				md.Cost = pricing.CalculateCost(TokensFor(d.UsageRecord), m.Entry)
				md.Priced = true
				anyPriced = true
			} else {
				unpriced[d.Model] = true
			}
			seen[d.Model] = true

			c.Models = append(c.Models, md)
			c.Totals.Tokens += md.Tokens
			c.Totals.Cost += md.Cost
			c.Totals.Messages += md.Messages
			c.TokenBreakdown.Input += d.Input
			c.TokenBreakdown.Output += d.Output
			c.TokenBreakdown.CacheRead += d.CachedInput
			c.TokenBreakdown.Reasoning += d.Reasoning
		}
		sort.Slice(c.Models, func(i, j int) bool { return c.Models[i].Model < c.Models[j].Model })

		out.Summary.TotalTokens += c.Totals.Tokens
		out.Summary.TotalCost += c.Totals.Cost
		if c.Totals.Tokens > 0 {
			out.Summary.ActiveDays++
		}
		if c.Totals.Cost > out.Summary.MaxCost {
			out.Summary.MaxCost = c.Totals.Cost
			out.Summary.MaxCostDay = key
		}
		out.Contributions = append(out.Contributions, c)
	}
	out.Summary.TotalDays = len(out.Contributions)

	var maxTokens int64
	for _, c := range out.Contributions {
		if c.Totals.Tokens > maxTokens {
			maxTokens = c.Totals.Tokens
		}
	}
	for i := range out.Contributions {
		c := &out.Contributions[i]
		if anyPriced {
			c.Intensity = intensity(c.Totals.Cost, out.Summary.MaxCost)
			// Usage on unpriced models alone still marks the day.
			if c.Intensity == 0 && c.Totals.Tokens > 0 {
				c.Intensity = 1
			}
		} else {
			c.Intensity = intensity(float64(c.Totals.Tokens), float64(maxTokens))
		}
	}

	for m := range seen {
		out.Summary.Models = append(out.Summary.Models, m)
	}
	for m := range unpriced {
		out.Summary.Unpriced = append(out.Summary.Unpriced, m)
	}
	sort.Strings(out.Summary.Models)
	sort.Strings(out.Summary.Unpriced)
	return out
}

// intensity maps v onto 0..MaxIntensity relative to peak. Any positive value
// is at least level 1.
func intensity(v, peak float64) int {
	if v <= 0 || peak <= 0 {
		return 0
	}
	level := int(math.Ceil(MaxIntensity * v / peak))
	if level < 1 {
		return 1
	}
	if level > MaxIntensity {
		return MaxIntensity
	}
	return level
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
