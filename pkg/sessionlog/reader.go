// Package sessionlog reads Claude Code / Codex session logs (line-delimited
// JSON) and turns them into per-model token usage.
package sessionlog

import (
	"bytes"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/token-tracker/tracker/pkg/models"
)

// Extension is the file suffix of session logs.
const Extension = ".jsonl"

// Reader scans session log directories. A Reader holds no state between
// calls and may be used from several goroutines.
type Reader struct {
	logger *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for skipped files.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a Reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Scan is the result of one pass over a sessions directory.
type Scan struct {
	Records         []models.UsageRecord
	Daily           []models.DailyUsage
	Files           int
	Lines           int
	SkippedLines    int
	UnreadableFiles int
}

// Messages returns the number of counted token events.
func (s Scan) Messages() int64 {
	var n int64
	for _, r := range s.Records {
		n += r.MessageCount
	}
	return n
}

// Read returns aggregated usage per model for every log under root. A
// missing root yields an empty result.
func (r *Reader) Read(root string) []models.UsageRecord {
	return r.Scan(root).Records
}

// ReadDaily returns usage per (day, model) for every log under root.
func (r *Reader) ReadDaily(root string) []models.DailyUsage {
	return r.Scan(root).Daily
}

// Scan walks root once and aggregates usage both per model and per day.
func (r *Reader) Scan(root string) Scan {
	return r.scanFiles(root, r.findFiles(root))
}

// scanFiles aggregates the given logs. Files that cannot be read are counted
// and skipped.
func (r *Reader) scanFiles(root string, files []string) Scan {
	var scan Scan
	if len(files) == 0 {
		return scan
	}

	acc := newAccumulator()
	for _, path := range files {
		scan.Files++
		if err := r.scanFile(path, root, acc, &scan); err != nil {
			scan.UnreadableFiles++
			r.logger.Debug("skipping unreadable session log", "path", path, "error", err)
		}
	}

	scan.Records = acc.records()
	scan.Daily = acc.daily()
	return scan
}

func (r *Reader) findFiles(root string) []string {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil
	}

	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Debug("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), Extension) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// fileState is the running state kept while scanning one file.
type fileState struct {
	model    string
	previous *models.TokenSnapshot
}

func (r *Reader) scanFile(path, root string, acc *accumulator, scan *Scan) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fallbackDay := dayFromPath(path, root)
	if fallbackDay == "" {
		if info, err := os.Stat(path); err == nil {
			fallbackDay = info.ModTime().UTC().Format(time.DateOnly)
		}
	}

	state := fileState{model: models.UnknownModel}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		scan.Lines++
		if !processLine(line, &state, fallbackDay, acc) {
			scan.SkippedLines++
		}
	}
	return nil
}

// processLine applies one line to the file state. It reports false when the
// line could not be decoded.
func processLine(line []byte, state *fileState, fallbackDay string, acc *accumulator) bool {
	ev, err := DecodeEvent(line)
	if err != nil {
		return false
	}

	switch e := ev.(type) {
	case ContextEvent:
		if e.Model != "" {
			state.model = e.Model
		}
	case TokenCountEvent:
		if e.Model != "" {
			state.model = e.Model
		}

		var delta models.TokenSnapshot
		switch {
		case e.Last != nil:
			delta = *e.Last
		case e.Total != nil && state.previous != nil:
			delta = e.Total.Sub(*state.previous)
		}
		if e.Total != nil {
			prev := *e.Total
			state.previous = &prev
		}

		// Heartbeat events repeat the previous totals.
		if delta.Empty() {
			return true
		}

		day := fallbackDay
		if !e.Timestamp.IsZero() {
			day = e.Timestamp.UTC().Format(time.DateOnly)
		}
		acc.add(day, state.model, delta)
	}
	return true
}

// dayFromPath extracts a YYYY-MM-DD date from a sessions/YYYY/MM/DD/... layout.
func dayFromPath(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 0; i+3 < len(parts); i++ {
		candidate := parts[i] + "-" + parts[i+1] + "-" + parts[i+2]
		if _, err := time.Parse(time.DateOnly, candidate); err == nil {
			return candidate
		}
	}
	return ""
}

type dayKey struct {
	day   string
	model string
}

// accumulator merges deltas across files; merging is commutative so file
// order does not affect totals.
type accumulator struct {
	byModel map[string]*models.UsageRecord
	byDay   map[dayKey]*models.DailyUsage
}

func newAccumulator() *accumulator {
	return &accumulator{
		byModel: make(map[string]*models.UsageRecord),
		byDay:   make(map[dayKey]*models.DailyUsage),
	}
}

func (a *accumulator) add(day, model string, delta models.TokenSnapshot) {
	rec, ok := a.byModel[model]
	if !ok {
		rec = &models.UsageRecord{Source: models.SourceClaudeCode, Model: model}
		a.byModel[model] = rec
	}
	rec.Add(delta)

	if day == "" {
		return
	}
	k := dayKey{day: day, model: model}
	du, ok := a.byDay[k]
	if !ok {
		du = &models.DailyUsage{Day: day, UsageRecord: models.UsageRecord{Source: models.SourceClaudeCode, Model: model}}
		a.byDay[k] = du
	}
	du.Add(delta)
}

func (a *accumulator) records() []models.UsageRecord {
	out := make([]models.UsageRecord, 0, len(a.byModel))
	for _, rec := range a.byModel {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

func (a *accumulator) daily() []models.DailyUsage {
	out := make([]models.DailyUsage, 0, len(a.byDay))
	for _, du := range a.byDay {
		out = append(out, *du)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Model < out[j].Model
	})
	return out
}
