package mcp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/token-tracker/tracker/pkg/budget"
	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/pricing"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summary []models.UsageRecord
	daily   []models.DailyUsage
	total   int64
}

func (f *fakeTracker) RecordScan(_ context.Context, run models.ScanRun, _ []models.DailyUsage) (models.ScanRun, error) {
	return run, nil
}
func (f *fakeTracker) Summary(_ context.Context, _ time.Time) ([]models.UsageRecord, error) {
	return f.summary, nil
}
func (f *fakeTracker) Daily(_ context.Context, _, _ time.Time) ([]models.DailyUsage, error) {
	return f.daily, nil
}
func (f *fakeTracker) TotalByModel(_ context.Context, _ string, _ time.Time) (int64, error) {
	return f.total, nil
}
func (f *fakeTracker) ListScans(_ context.Context, _ int) ([]models.ScanRun, error) {
	return nil, nil
}
func (f *fakeTracker) Close() error { return nil }

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats() (models.CacheStats, error) { return f.stats, nil }

// fakePricer implements Pricer for testing.
type fakePricer struct {
	entries  map[string]pricing.Entry
	fetchErr error
}

func (f *fakePricer) Fetch(_ context.Context) (*pricing.Dataset, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return pricing.NewDataset(nil, f.entries), nil
}

func (f *fakePricer) Lookup(model string) (pricing.Match, bool) {
	e, ok := f.entries[model]
	if !ok {
		return pricing.Match{}, false
	}
	return pricing.Match{Key: model, Strategy: pricing.StrategyExact, Entry: e}, true
}

// fakeUsage implements UsageReader for testing.
type fakeUsage struct {
	records []models.UsageRecord
	root    string
}

func (f *fakeUsage) Read(root string) []models.UsageRecord {
	f.root = root
	return f.records
}

func rate(v float64) *float64 { return &v }

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(Deps{Tracker: &fakeTracker{}}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != ServerName {
		t.Errorf("server name = %s, want %s", result.ServerInfo.Name, ServerName)
	}
	if !bytes.Contains(data, []byte(`"tools":{}`)) {
		t.Errorf("capabilities should advertise tools, got %s", data)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(Deps{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}

	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("listed tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallUsage(t *testing.T) {
	tr := &fakeTracker{
		summary: []models.UsageRecord{
			{Source: models.SourceClaudeCode, Model: "gpt-5-codex", MessageCount: 10, Input: 12000, Output: 300},
		},
	}
	srv := New(Deps{Tracker: tr}, "test")

	text := callTool(t, srv, "tokens_usage", `{}`).Content[0].Text
	if !strings.Contains(text, "gpt-5-codex") {
		t.Errorf("expected gpt-5-codex in output, got: %s", text)
	}
	if !strings.Contains(text, "12,300") {
		t.Errorf("expected humanized total in output, got: %s", text)
	}
}

func TestToolCallUsageInvalidSince(t *testing.T) {
	srv := New(Deps{Tracker: &fakeTracker{}}, "test")
	result := callTool(t, srv, "tokens_usage", `{"since":"last week"}`)
	if !result.IsError {
		t.Error("expected isError=true for bad date")
	}
}

func TestToolCallDaily(t *testing.T) {
	tr := &fakeTracker{daily: []models.DailyUsage{
		{Day: "2025-06-01", UsageRecord: models.UsageRecord{Model: "o3", MessageCount: 2, Input: 1500}},
	}}
	srv := New(Deps{Tracker: tr}, "test")

	text := callTool(t, srv, "tokens_daily", `{"since":"2025-06-01"}`).Content[0].Text
	if !strings.Contains(text, "2025-06-01") || !strings.Contains(text, "1,500") {
		t.Errorf("unexpected daily output: %s", text)
	}
}

func TestToolCallCostReport(t *testing.T) {
	usage := &fakeUsage{records: []models.UsageRecord{
		{Model: "priced", MessageCount: 1, Input: 1_000_000},
		{Model: "mystery", MessageCount: 1, Input: 10},
	}}
	pricer := &fakePricer{entries: map[string]pricing.Entry{
		"priced": {InputCostPerToken: rate(2e-06)},
	}}
	srv := New(Deps{Usage: usage, Pricer: pricer, SessionsDir: "/logs"}, "test")

	text := callTool(t, srv, "tokens_cost_report", `{}`).Content[0].Text
	if usage.root != "/logs" {
		t.Errorf("expected scan of /logs, got %q", usage.root)
	}
	if !strings.Contains(text, "$2") {
		t.Errorf("expected $2 cost, got: %s", text)
	}
	if !strings.Contains(text, "1 model(s) could not be priced") {
		t.Errorf("expected unpriced note, got: %s", text)
	}
}

func TestToolCallCostReportFetchError(t *testing.T) {
	pricer := &fakePricer{fetchErr: &pricing.FetchError{StatusCode: 503, URL: "https://x.test"}}
	srv := New(Deps{Usage: &fakeUsage{}, Pricer: pricer}, "test")

	result := callTool(t, srv, "tokens_cost_report", `{}`)
	if !result.IsError {
		t.Error("expected isError=true when pricing cannot be fetched")
	}
	if !strings.Contains(result.Content[0].Text, "503") {
		t.Errorf("expected status in message, got: %s", result.Content[0].Text)
	}
}

func TestToolCallModelPricing(t *testing.T) {
	pricer := &fakePricer{entries: map[string]pricing.Entry{
		"gpt-5": {InputCostPerToken: rate(1.25e-06), OutputCostPerToken: rate(1e-05)},
	}}
	srv := New(Deps{Pricer: pricer}, "test")

	text := callTool(t, srv, "tokens_model_pricing", `{"model":"gpt-5"}`).Content[0].Text
	if !strings.Contains(text, "$1.25 / 1M") || !strings.Contains(text, "(exact)") {
		t.Errorf("unexpected pricing output: %s", text)
	}

	text = callTool(t, srv, "tokens_model_pricing", `{"model":"nope"}`).Content[0].Text
	if !strings.Contains(text, "No pricing found") {
		t.Errorf("expected not found message, got: %s", text)
	}

	if result := callTool(t, srv, "tokens_model_pricing", `{}`); !result.IsError {
		t.Error("expected isError=true for missing model")
	}
}

func TestToolCallCacheNotConfigured(t *testing.T) {
	srv := New(Deps{}, "test")
	text := callTool(t, srv, "tokens_pricing_cache", "").Content[0].Text
	if !strings.Contains(text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", text)
	}
}

func TestToolCallBudgetNotConfigured(t *testing.T) {
	srv := New(Deps{}, "test")
	text := callTool(t, srv, "tokens_budget", "").Content[0].Text
	if !strings.Contains(text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", text)
	}
}

func TestToolCallBudget(t *testing.T) {
	tr := &fakeTracker{total: 250}
	enforcer := budget.New([]models.BudgetPolicy{
		{MaxTokens: 1000, Period: models.BudgetDaily},
	}, tr)
	srv := New(Deps{Tracker: tr, Enforcer: enforcer}, "test")

	text := callTool(t, srv, "tokens_budget", `{}`).Content[0].Text
	if !strings.Contains(text, "(all models)") || !strings.Contains(text, "25.0%") {
		t.Errorf("unexpected budget output: %s", text)
	}
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Entries: 42, Hits: 10, Misses: 5}}
	srv := New(Deps{Cache: cache}, "test")

	text := callTool(t, srv, "tokens_pricing_cache", "").Content[0].Text
	if !strings.Contains(text, "42") || !strings.Contains(text, "66.7%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(Deps{}, "test")
	result := callTool(t, srv, "tokens_nope", `{}`)
	if !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(Deps{}, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestParseError(t *testing.T) {
	srv := New(Deps{}, "test")

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{not json\n"), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(Deps{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	srv := New(Deps{}, "test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Run(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`+"\n"), &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
