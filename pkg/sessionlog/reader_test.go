package sessionlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-tracker/tracker/pkg/models"
)

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func turnContext(model string) string {
	return `{"timestamp":"2025-06-01T09:00:00Z","type":"turn_context","payload":{"model":"` + model + `"}}`
}

func lastUsage(usage string) string {
	return `{"timestamp":"2025-06-01T09:01:00Z","type":"event_msg","payload":{"type":"token_count","info":{"last_token_usage":` + usage + `}}}`
}

func totalUsage(usage string) string {
	return `{"timestamp":"2025-06-01T09:02:00Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":` + usage + `}}}`
}

func byModel(records []models.UsageRecord) map[string]models.UsageRecord {
	m := make(map[string]models.UsageRecord, len(records))
	for _, r := range records {
		m[r.Model] = r
	}
	return m
}

func TestReadMissingRoot(t *testing.T) {
	r := NewReader()
	assert.Empty(t, r.Read(filepath.Join(t.TempDir(), "does-not-exist")))
	assert.Empty(t, r.ReadDaily(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestReadIncrementalUsage(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		lastUsage(`{"input_tokens":100,"cached_input_tokens":40,"output_tokens":20,"reasoning_output_tokens":8}`),
		lastUsage(`{"input_tokens":50,"output_tokens":5}`),
	)

	records := NewReader().Read(dir)
	require.Len(t, records, 1)
	assert.Equal(t, models.UsageRecord{
		Source:       models.SourceClaudeCode,
		Model:        "gpt-5",
		MessageCount: 2,
		Input:        150,
		Output:       25,
		CachedInput:  40,
		Reasoning:    8,
	}, records[0])
}

func TestReadDefaultsToUnknownModel(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl", lastUsage(`{"input_tokens":10}`))

	records := NewReader().Read(dir)
	require.Len(t, records, 1)
	assert.Equal(t, models.UnknownModel, records[0].Model)
}

func TestReadCumulativeUsage(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		// First cumulative snapshot has no predecessor and contributes nothing.
		totalUsage(`{"input_tokens":100,"cached_input_tokens":10,"output_tokens":10}`),
		totalUsage(`{"input_tokens":250,"cached_input_tokens":30,"output_tokens":40,"reasoning_output_tokens":4}`),
	)

	records := NewReader().Read(dir)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].MessageCount)
	assert.Equal(t, int64(150), records[0].Input)
	assert.Equal(t, int64(20), records[0].CachedInput)
	assert.Equal(t, int64(30), records[0].Output)
	assert.Equal(t, int64(4), records[0].Reasoning)
}

func TestReadCumulativeResetClampsToZero(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		totalUsage(`{"input_tokens":1000,"cached_input_tokens":500,"output_tokens":100}`),
		// Counters went down for input and cached: a new sub-session.
		totalUsage(`{"input_tokens":200,"cached_input_tokens":0,"output_tokens":150}`),
		// Delta is computed against the reset snapshot, not the old one.
		totalUsage(`{"input_tokens":260,"cached_input_tokens":0,"output_tokens":150}`),
	)

	rec := byModel(NewReader().Read(dir))["gpt-5"]
	assert.Equal(t, int64(2), rec.MessageCount)
	assert.Equal(t, int64(60), rec.Input)
	assert.Equal(t, int64(0), rec.CachedInput)
	assert.Equal(t, int64(50), rec.Output)
}

func TestReadSkipsEmptyDeltas(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		lastUsage(`{"reasoning_output_tokens":500}`),
		lastUsage(`{}`),
		totalUsage(`{"input_tokens":10}`),
		totalUsage(`{"input_tokens":10,"reasoning_output_tokens":99}`),
	)

	assert.Empty(t, NewReader().Read(dir))
}

func TestReadTotalUpdatesSnapshotEvenWithLastUsage(t *testing.T) {
	dir := t.TempDir()
	both := `{"type":"event_msg","payload":{"type":"token_count","info":{` +
		`"last_token_usage":{"input_tokens":5},` +
		`"total_token_usage":{"input_tokens":100}}}}`
	writeLog(t, dir, "a.jsonl",
		turnContext("m"),
		both,
		totalUsage(`{"input_tokens":130}`),
	)

	rec := byModel(NewReader().Read(dir))["m"]
	assert.Equal(t, int64(2), rec.MessageCount)
	assert.Equal(t, int64(35), rec.Input)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		`{"type":"event_msg", broken`,
		`not json at all`,
		lastUsage(`{"input_tokens":7}`),
	)

	scan := NewReader().Scan(dir)
	require.Len(t, scan.Records, 1)
	assert.Equal(t, int64(7), scan.Records[0].Input)
	assert.Equal(t, 4, scan.Lines)
	assert.Equal(t, 2, scan.SkippedLines)
}

func TestReadModelStateIsPerFile(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		totalUsage(`{"input_tokens":100}`),
	)
	writeLog(t, dir, "b.jsonl",
		// No context here: the model from a.jsonl must not leak in, and
		// neither may its cumulative snapshot.
		totalUsage(`{"input_tokens":300}`),
		lastUsage(`{"input_tokens":1}`),
	)

	records := byModel(NewReader().Read(dir))
	assert.NotContains(t, records, "gpt-5")
	assert.Equal(t, int64(1), records[models.UnknownModel].Input)
}

func TestReadMergesModelsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "2025/06/01/a.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":10}`))
	writeLog(t, dir, "2025/06/02/b.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":20}`))
	writeLog(t, dir, "nested/deeper/c.jsonl", turnContext("o3"), lastUsage(`{"output_tokens":3}`))
	writeLog(t, dir, "ignored.json", turnContext("nope"), lastUsage(`{"input_tokens":999}`))

	records := NewReader().Read(dir)
	require.Len(t, records, 2)
	assert.Equal(t, "gpt-5", records[0].Model)
	assert.Equal(t, int64(30), records[0].Input)
	assert.Equal(t, int64(2), records[0].MessageCount)
	assert.Equal(t, "o3", records[1].Model)
}

func TestReadTokenCountPayloadModel(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		turnContext("gpt-5"),
		`{"type":"event_msg","payload":{"type":"token_count","model_name":"o4-mini","info":{"last_token_usage":{"input_tokens":3}}}}`,
		lastUsage(`{"input_tokens":4}`),
	)

	records := byModel(NewReader().Read(dir))
	assert.NotContains(t, records, "gpt-5")
	assert.Equal(t, int64(7), records["o4-mini"].Input)
}

func TestReadIsOrderIndependent(t *testing.T) {
	lines := map[string][]string{
		"x.jsonl": {turnContext("a"), lastUsage(`{"input_tokens":1,"output_tokens":2}`)},
		"y.jsonl": {turnContext("b"), lastUsage(`{"input_tokens":3}`), turnContext("a"), lastUsage(`{"output_tokens":4}`)},
		"z.jsonl": {turnContext("a"), totalUsage(`{"input_tokens":5}`), totalUsage(`{"input_tokens":9}`)},
	}

	forward := t.TempDir()
	for _, name := range []string{"x.jsonl", "y.jsonl", "z.jsonl"} {
		writeLog(t, forward, name, lines[name]...)
	}
	// Reverse lexical order puts the files into a different walk order.
	reverse := t.TempDir()
	writeLog(t, reverse, "1.jsonl", lines["z.jsonl"]...)
	writeLog(t, reverse, "2.jsonl", lines["y.jsonl"]...)
	writeLog(t, reverse, "3.jsonl", lines["x.jsonl"]...)

	r := NewReader()
	assert.Equal(t, r.Read(forward), r.Read(reverse))
}

func TestScanSkipsUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":10,"output_tokens":1}`))
	locked := writeLog(t, dir, "b.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":99,"output_tokens":9}`))
	writeLog(t, dir, "c.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":20,"output_tokens":2}`))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	scan := NewReader().Scan(dir)
	assert.Equal(t, 3, scan.Files)
	assert.Equal(t, 1, scan.UnreadableFiles)
	require.Len(t, scan.Records, 1)
	assert.Equal(t, int64(30), scan.Records[0].Input)
	assert.Equal(t, int64(2), scan.Records[0].MessageCount)
}

func TestScanFilesCountsVanishedFile(t *testing.T) {
	dir := t.TempDir()
	a := writeLog(t, dir, "a.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":10,"output_tokens":1}`))
	gone := filepath.Join(dir, "gone.jsonl")
	c := writeLog(t, dir, "c.jsonl", turnContext("gpt-5"), lastUsage(`{"input_tokens":20,"output_tokens":2}`))

	scan := NewReader().scanFiles(dir, []string{a, gone, c})
	assert.Equal(t, 3, scan.Files)
	assert.Equal(t, 1, scan.UnreadableFiles)
	assert.Equal(t, 4, scan.Lines)
	require.Len(t, scan.Records, 1)
	assert.Equal(t, int64(30), scan.Records[0].Input)
	assert.Equal(t, int64(3), scan.Records[0].Output)
}

func TestReadDaily(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "2025/05/30/a.jsonl",
		turnContext("gpt-5"),
		// No timestamp: falls back to the directory date.
		`{"type":"event_msg","payload":{"type":"token_count","info":{"last_token_usage":{"input_tokens":10}}}}`,
		lastUsage(`{"input_tokens":20}`),
	)

	daily := NewReader().ReadDaily(dir)
	require.Len(t, daily, 2)
	assert.Equal(t, "2025-05-30", daily[0].Day)
	assert.Equal(t, int64(10), daily[0].Input)
	assert.Equal(t, "2025-06-01", daily[1].Day)
	assert.Equal(t, int64(20), daily[1].Input)
}

func TestDayFromPath(t *testing.T) {
	root := filepath.Join("home", "sessions")
	assert.Equal(t, "2025-01-15", dayFromPath(filepath.Join(root, "2025", "01", "15", "rollout.jsonl"), root))
	assert.Equal(t, "", dayFromPath(filepath.Join(root, "misc", "rollout.jsonl"), root))
	assert.Equal(t, "", dayFromPath(filepath.Join(root, "2025", "13", "40", "rollout.jsonl"), root))
}
