package mcp

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/token-tracker/tracker/pkg/report"
)

// Tool argument structs.

type rangeArgs struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

type modelArgs struct {
	Model string `json:"model"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"tokens_usage":         handleUsage,
	"tokens_daily":         handleDaily,
	"tokens_cost_report":   handleCostReport,
	"tokens_model_pricing": handleModelPricing,
	"tokens_budget":        handleBudget,
	"tokens_pricing_cache": handlePricingCache,
}

func dateProperty(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": desc,
	}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "tokens_usage",
		Description: "Show recorded token usage per model, optionally since a date.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": dateProperty("Start date in YYYY-MM-DD format (optional, omit for all history)"),
			},
		},
	},
	{
		Name:        "tokens_daily",
		Description: "Show recorded token usage per day and model.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": dateProperty("Start date in YYYY-MM-DD format (optional, defaults to 30 days ago)"),
				"until": dateProperty("End date in YYYY-MM-DD format (optional)"),
			},
		},
	},
	{
		Name:        "tokens_cost_report",
		Description: "Scan the session logs and estimate cost per model using LiteLLM pricing.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "tokens_model_pricing",
		Description: "Resolve a model id to its per-token pricing and show how it was matched.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"model"},
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Model id as it appears in the session logs",
				},
			},
		},
	},
	{
		Name:        "tokens_budget",
		Description: "Show budget status (usage vs limits) for configured policies, optionally for one model.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Filter by model (optional, omit for all policies)",
				},
			},
		},
	},
	{
		Name:        "tokens_pricing_cache",
		Description: "Show pricing snapshot cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func handleUsage(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Usage history is not configured.")
	}
	var args rangeArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	since, err := parseDate(args.Since)
	if err != nil {
		return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
	}
	rows, err := s.tracker.Summary(ctx, since)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	return textResult(formatUsage(rows))
}

func handleDaily(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Usage history is not configured.")
	}
	var args rangeArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if args.Since != "" {
		t, err := parseDate(args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}
	until, err := parseDate(args.Until)
	if err != nil {
		return errorResult("Invalid until date (use YYYY-MM-DD): " + err.Error())
	}

	rows, err := s.tracker.Daily(ctx, since, until)
	if err != nil {
		return errorResult("Error fetching daily usage: " + err.Error())
	}
	return textResult(formatDaily(rows))
}

func handleCostReport(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.usage == nil || s.pricer == nil {
		return textResult("Cost reporting is not configured.")
	}
	if _, err := s.pricer.Fetch(ctx); err != nil {
		return errorResult("Error loading pricing: " + err.Error())
	}
	records := s.usage.Read(s.sessionsDir)
	return textResult(formatCostReport(report.Build(records, s.pricer)))
}

func handleModelPricing(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.pricer == nil {
		return textResult("Pricing is not configured.")
	}
	var args modelArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Model == "" {
		return errorResult("model is required")
	}
	if _, err := s.pricer.Fetch(ctx); err != nil {
		return errorResult("Error loading pricing: " + err.Error())
	}
	m, ok := s.pricer.Lookup(args.Model)
	if !ok {
		return textResult("No pricing found for " + args.Model + ".")
	}
	return textResult(formatMatch(args.Model, m))
}

func handleBudget(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	var args modelArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	statuses, err := s.enforcer.Status(ctx, args.Model)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}

func handlePricingCache(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Pricing cache is not configured.")
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}
