package sessionlog

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/token-tracker/tracker/pkg/models"
)

// ErrMalformedLine is returned by DecodeEvent for lines that are not a JSON object.
var ErrMalformedLine = errors.New("malformed log line")

// Event is one decoded session log line. The concrete type is one of
// ContextEvent, TokenCountEvent or UnrecognizedEvent.
type Event interface {
	isEvent()
}

// ContextEvent declares the model for the turns that follow it.
type ContextEvent struct {
	Model     string
	Timestamp time.Time
}

// TokenCountEvent reports token usage. Last is set when the event carries
// per-turn counters, Total when it carries cumulative session counters.
// Either may be nil.
type TokenCountEvent struct {
	Model     string
	Last      *models.TokenSnapshot
	Total     *models.TokenSnapshot
	Timestamp time.Time
}

// UnrecognizedEvent is any well-formed line the reader does not care about.
type UnrecognizedEvent struct{}

func (ContextEvent) isEvent()      {}
func (TokenCountEvent) isEvent()   {}
func (UnrecognizedEvent) isEvent() {}

// DecodeEvent classifies a single JSONL line. Absent or mistyped fields are
// treated as missing rather than as errors.
func DecodeEvent(line []byte) (Event, error) {
	if !gjson.ValidBytes(line) {
		return nil, ErrMalformedLine
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return nil, ErrMalformedLine
	}

	payload := root.Get("payload")
	if !payload.IsObject() {
		return UnrecognizedEvent{}, nil
	}
	ts := parseTimestamp(root.Get("timestamp"))

	switch root.Get("type").String() {
	case "turn_context":
		return ContextEvent{Model: extractModel(payload), Timestamp: ts}, nil
	case "event_msg":
		if payload.Get("type").String() != "token_count" {
			return UnrecognizedEvent{}, nil
		}
		info := payload.Get("info")
		if !info.IsObject() {
			return UnrecognizedEvent{}, nil
		}
		return TokenCountEvent{
			Model:     extractModel(payload),
			Last:      decodeSnapshot(info.Get("last_token_usage")),
			Total:     decodeSnapshot(info.Get("total_token_usage")),
			Timestamp: ts,
		}, nil
	default:
		return UnrecognizedEvent{}, nil
	}
}

// extractModel looks for a model id on payload.model, payload.info.model,
// payload.model_name and payload.info.model_name, in that order.
func extractModel(payload gjson.Result) string {
	for _, path := range []string{"model", "info.model", "model_name", "info.model_name"} {
		v := payload.Get(path)
		if v.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(v.Str); s != "" {
			return s
		}
	}
	return ""
}

func decodeSnapshot(v gjson.Result) *models.TokenSnapshot {
	if !v.IsObject() {
		return nil
	}
	cached := counter(v.Get("cached_input_tokens"))
	if cached == 0 {
		cached = counter(v.Get("cache_read_input_tokens"))
	}
	return &models.TokenSnapshot{
		Input:     counter(v.Get("input_tokens")),
		Cached:    cached,
		Output:    counter(v.Get("output_tokens")),
		Reasoning: counter(v.Get("reasoning_output_tokens")),
	}
}

// counter reads a non-negative token count; anything else reads as zero.
func counter(v gjson.Result) int64 {
	if v.Type != gjson.Number {
		return 0
	}
	n := v.Int()
	if n < 0 {
		return 0
	}
	return n
}

func parseTimestamp(v gjson.Result) time.Time {
	if v.Type != gjson.String {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.Str)
	if err != nil {
		return time.Time{}
	}
	return t
}
