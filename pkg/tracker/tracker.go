package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/token-tracker/tracker/pkg/models"
)

// Tracker records and queries scanned token usage.
type Tracker interface {
	// RecordScan stores a scan and its daily usage rows.
	RecordScan(ctx context.Context, run models.ScanRun, daily []models.DailyUsage) (models.ScanRun, error)
	// Summary returns per-model totals for days on or after since.
	Summary(ctx context.Context, since time.Time) ([]models.UsageRecord, error)
	// Daily returns per-day, per-model usage in [since, until].
	Daily(ctx context.Context, since, until time.Time) ([]models.DailyUsage, error)
	// TotalByModel returns input+output+reasoning tokens for a model since a
	// given time. An empty model counts all models.
	TotalByModel(ctx context.Context, model string, since time.Time) (int64, error)
	// ListScans returns the most recent scans first.
	ListScans(ctx context.Context, limit int) ([]models.ScanRun, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createDailyTable = `
CREATE TABLE IF NOT EXISTS daily_usage (
	day TEXT NOT NULL,
	source TEXT NOT NULL,
	model TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cached_input_tokens INTEGER NOT NULL DEFAULT 0,
	reasoning_tokens INTEGER NOT NULL DEFAULT 0,
	scan_id TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (day, source, model)
);
CREATE INDEX IF NOT EXISTS idx_daily_model_day ON daily_usage(model, day);
`

const createScansTable = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	files INTEGER NOT NULL,
	lines INTEGER NOT NULL,
	skipped_lines INTEGER NOT NULL,
	models INTEGER NOT NULL,
	messages INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the scan insert and upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createDailyTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if _, err := db.Exec(createScansTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate scans table: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// RecordScan stores run and upserts every daily row in one transaction.
// Counters of an existing (day, source, model) row are replaced, so recording
// the same logs twice leaves the totals unchanged. The stored run, with its
// generated ID, is returned.
func (t *SQLiteTracker) RecordScan(ctx context.Context, run models.ScanRun, daily []models.DailyUsage) (models.ScanRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return run, fmt.Errorf("begin record scan: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scans (id, root, files, lines, skipped_lines, models, messages, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.Files, run.Lines, run.SkippedLines, run.Models, run.Messages, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return run, fmt.Errorf("insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_usage (day, source, model, message_count, input_tokens, output_tokens, cached_input_tokens, reasoning_tokens, scan_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(day, source, model) DO UPDATE SET
		   message_count = excluded.message_count,
		   input_tokens = excluded.input_tokens,
		   output_tokens = excluded.output_tokens,
		   cached_input_tokens = excluded.cached_input_tokens,
		   reasoning_tokens = excluded.reasoning_tokens,
		   scan_id = excluded.scan_id,
		   updated_at = excluded.updated_at`)
	if err != nil {
		return run, fmt.Errorf("prepare daily upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range daily {
		_, err := stmt.ExecContext(ctx,
			d.Day, d.Source, d.Model, d.MessageCount, d.Input, d.Output, d.CachedInput, d.Reasoning, run.ID, run.FinishedAt,
		)
		if err != nil {
			return run, fmt.Errorf("upsert daily usage %s/%s: %w", d.Day, d.Model, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return run, fmt.Errorf("commit record scan: %w", err)
	}
	return run, nil
}

// Summary returns per-model totals across days on or after since. A zero
// since includes all history.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT source, model, SUM(message_count), SUM(input_tokens), SUM(output_tokens), SUM(cached_input_tokens), SUM(reasoning_tokens)
		 FROM daily_usage WHERE day >= ?
		 GROUP BY source, model ORDER BY model, source`,
		dayOf(since),
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.Source, &r.Model, &r.MessageCount, &r.Input, &r.Output, &r.CachedInput, &r.Reasoning); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Daily returns usage rows with since <= day <= until, ordered by day then
// model. A zero until means no upper bound.
func (t *SQLiteTracker) Daily(ctx context.Context, since, until time.Time) ([]models.DailyUsage, error) {
	query := `SELECT day, source, model, message_count, input_tokens, output_tokens, cached_input_tokens, reasoning_tokens
		 FROM daily_usage WHERE day >= ?`
	args := []any{dayOf(since)}
	if !until.IsZero() {
		query += ` AND day <= ?`
		args = append(args, dayOf(until))
	}
	query += ` ORDER BY day, model, source`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	var out []models.DailyUsage
	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(&d.Day, &d.Source, &d.Model, &d.MessageCount, &d.Input, &d.Output, &d.CachedInput, &d.Reasoning); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TotalByModel returns input+output+reasoning tokens for model since a given
// time. An empty model sums every model.
func (t *SQLiteTracker) TotalByModel(ctx context.Context, model string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(input_tokens + output_tokens + reasoning_tokens), 0) FROM daily_usage WHERE day >= ?`
	args := []any{dayOf(since)}
	if model != "" {
		query += ` AND model = ?`
		args = append(args, model)
	}

	var total int64
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("total usage by model: %w", err)
	}
	return total, nil
}

// ListScans returns up to limit scans, newest first. limit <= 0 returns all.
func (t *SQLiteTracker) ListScans(ctx context.Context, limit int) ([]models.ScanRun, error) {
	query := `SELECT id, root, files, lines, skipped_lines, models, messages, started_at, finished_at
		 FROM scans ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []models.ScanRun
	for rows.Next() {
		var s models.ScanRun
		if err := rows.Scan(&s.ID, &s.Root, &s.Files, &s.Lines, &s.SkippedLines, &s.Models, &s.Messages, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

// dayOf formats t as a UTC day key. The zero time maps to "" which sorts
// before every stored day.
func dayOf(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
