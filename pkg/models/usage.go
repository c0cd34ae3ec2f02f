package models

import "time"

// SourceClaudeCode identifies usage parsed from Claude Code / Codex session logs.
const SourceClaudeCode = "claudecode"

// UnknownModel is attributed usage seen before any model was declared.
const UnknownModel = "unknown"

// TokenSnapshot holds the counters reported by a single token-count event.
// It is either an incremental delta or a cumulative total depending on which
// field of the event it was read from.
type TokenSnapshot struct {
	Input     int64 `json:"input_tokens"`
	Cached    int64 `json:"cached_input_tokens"`
	Output    int64 `json:"output_tokens"`
	Reasoning int64 `json:"reasoning_output_tokens"`
}

// Sub returns s - prev per category, clamped at zero.
func (s TokenSnapshot) Sub(prev TokenSnapshot) TokenSnapshot {
	return TokenSnapshot{
		Input:     max(s.Input-prev.Input, 0),
		Cached:    max(s.Cached-prev.Cached, 0),
		Output:    max(s.Output-prev.Output, 0),
		Reasoning: max(s.Reasoning-prev.Reasoning, 0),
	}
}

// Empty reports whether the snapshot carries no billable traffic. Reasoning
// alone does not count.
func (s TokenSnapshot) Empty() bool {
	return s.Input == 0 && s.Cached == 0 && s.Output == 0
}

// UsageRecord is aggregated usage for one model from one source.
type UsageRecord struct {
	Source       string `json:"source"`
	Model        string `json:"model"`
	MessageCount int64  `json:"messageCount"`
	Input        int64  `json:"input"`
	Output       int64  `json:"output"`
	CachedInput  int64  `json:"cachedInput"`
	Reasoning    int64  `json:"reasoning"`
}

// Add merges one delta into the record and counts it as a message.
func (r *UsageRecord) Add(d TokenSnapshot) {
	r.MessageCount++
	r.Input += d.Input
	r.Output += d.Output
	r.CachedInput += d.Cached
	r.Reasoning += d.Reasoning
}

// Merge folds another record for the same model into r.
func (r *UsageRecord) Merge(o UsageRecord) {
	r.MessageCount += o.MessageCount
	r.Input += o.Input
	r.Output += o.Output
	r.CachedInput += o.CachedInput
	r.Reasoning += o.Reasoning
}

// TotalTokens is input + output + reasoning. Cached input is a subset of
// input and is not added again.
func (r UsageRecord) TotalTokens() int64 {
	return r.Input + r.Output + r.Reasoning
}

// DailyUsage is a UsageRecord bucketed by UTC day (YYYY-MM-DD).
type DailyUsage struct {
	Day string `json:"day"`
	UsageRecord
}

// ScanRun describes one pass over a sessions directory.
type ScanRun struct {
	ID           string    `json:"id"`
	Root         string    `json:"root"`
	Files        int       `json:"files"`
	Lines        int       `json:"lines"`
	SkippedLines int       `json:"skipped_lines"`
	Models       int       `json:"models"`
	Messages     int64     `json:"messages"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
