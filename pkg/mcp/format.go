package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/pricing"
	"github.com/token-tracker/tracker/pkg/report"
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatUsage formats per-model totals as a text table.
func formatUsage(rows []models.UsageRecord) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %8s %14s %14s %14s %12s\n",
		"Model", "Messages", "Input", "Cached", "Output", "Reasoning")
	b.WriteString(strings.Repeat("-", 97) + "\n")
	var total int64
	for _, r := range rows {
		fmt.Fprintf(&b, "%-30s %8d %14s %14s %14s %12s\n",
			truncate(r.Model, 30), r.MessageCount,
			humanize.Comma(r.Input), humanize.Comma(r.CachedInput),
			humanize.Comma(r.Output), humanize.Comma(r.Reasoning))
		total += r.TotalTokens()
	}
	fmt.Fprintf(&b, "\nTotal tokens: %s\n", humanize.Comma(total))
	return b.String()
}

// formatDaily formats per-day rows as a text table.
func formatDaily(rows []models.DailyUsage) string {
	if len(rows) == 0 {
		return "No usage data found for this range."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s  %-30s %8s %14s\n", "Day", "Model", "Messages", "Tokens")
	b.WriteString(strings.Repeat("-", 66) + "\n")
	for _, d := range rows {
		fmt.Fprintf(&b, "%-10s  %-30s %8d %14s\n",
			d.Day, truncate(d.Model, 30), d.MessageCount, humanize.Comma(d.TotalTokens()))
	}
	return b.String()
}

// formatCostReport formats a priced report as a text table.
func formatCostReport(rep report.Report) string {
	if len(rep.Models) == 0 && len(rep.Unpriced) == 0 {
		return "No usage found in the session logs."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-8s %14s %12s  %s\n", "Model", "Match", "Tokens", "Cost", "Priced As")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, m := range rep.Models {
		fmt.Fprintf(&b, "%-30s %-8s %14s %12s  %s\n",
			truncate(m.Model, 30), m.Strategy, humanize.Comma(m.TotalTokens), formatUSD(m.Cost), m.PricingKey)
	}
	for _, r := range rep.Unpriced {
		fmt.Fprintf(&b, "%-30s %-8s %14s %12s\n", truncate(r.Model, 30), "none", humanize.Comma(r.TotalTokens()), "-")
	}
	fmt.Fprintf(&b, "\nTotal: %s across %s tokens and %s messages\n",
		formatUSD(rep.TotalCost), humanize.Comma(rep.TotalTokens), humanize.Comma(rep.TotalMessages))
	if len(rep.Unpriced) > 0 {
		fmt.Fprintf(&b, "%d model(s) could not be priced.\n", len(rep.Unpriced))
	}
	return b.String()
}

// formatMatch formats a resolved pricing entry as per-million rates.
func formatMatch(model string, m pricing.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pricing for %s\n", model)
	fmt.Fprintf(&b, "  Matched:     %s (%s)\n", m.Key, m.Strategy)
	fmt.Fprintf(&b, "  Input:       %s\n", perMillion(m.Entry.InputCostPerToken, m.Entry.InputCostPerTokenAbove))
	fmt.Fprintf(&b, "  Output:      %s\n", perMillion(m.Entry.OutputCostPerToken, m.Entry.OutputCostPerTokenAbove))
	fmt.Fprintf(&b, "  Cache read:  %s\n", perMillion(m.Entry.CacheReadCostPerToken, m.Entry.CacheReadCostPerTokenAbove))
	fmt.Fprintf(&b, "  Cache write: %s\n", perMillion(m.Entry.CacheWriteCostPerToken, m.Entry.CacheWriteCostPerTokenAbove))
	return b.String()
}

// perMillion renders a per-token rate as dollars per million tokens.
func perMillion(base, above *float64) string {
	if base == nil {
		return "n/a"
	}
	s := fmt.Sprintf("$%.4g / 1M", *base*1_000_000)
	if above != nil {
		s += fmt.Sprintf(" ($%.4g / 1M above %s)", *above*1_000_000, humanize.Comma(pricing.TieredThreshold))
	}
	return s
}

func formatUSD(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-8s %12s %12s %12s %6s\n",
		"Model", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 84) + "\n")
	for _, s := range statuses {
		model := s.Model
		if model == "" {
			model = "(all models)"
		}
		pct := float64(0)
		if s.Policy.MaxTokens > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxTokens) * 100
		}
		fmt.Fprintf(&b, "%-30s %-8s %12d %12d %12d %5.1f%%\n",
			truncate(model, 30), s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining, pct)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Pricing Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}
