package pricing

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Entry is the per-token pricing for one model. Nil rates are absent
// upstream. The Above* rates apply to the part of a category's count beyond
// TieredThreshold.
type Entry struct {
	InputCostPerToken      *float64 `json:"input_cost_per_token,omitempty"`
	OutputCostPerToken     *float64 `json:"output_cost_per_token,omitempty"`
	CacheWriteCostPerToken *float64 `json:"cache_creation_input_token_cost,omitempty"`
	CacheReadCostPerToken  *float64 `json:"cache_read_input_token_cost,omitempty"`

	InputCostPerTokenAbove      *float64 `json:"input_cost_per_token_above_200k_tokens,omitempty"`
	OutputCostPerTokenAbove     *float64 `json:"output_cost_per_token_above_200k_tokens,omitempty"`
	CacheWriteCostPerTokenAbove *float64 `json:"cache_creation_input_token_cost_above_200k_tokens,omitempty"`
	CacheReadCostPerTokenAbove  *float64 `json:"cache_read_input_token_cost_above_200k_tokens,omitempty"`
}

// Dataset maps model ids to pricing entries, keyed exactly as published.
// Keys remembers publication order so fuzzy matching is reproducible.
type Dataset struct {
	keys    []string
	entries map[string]Entry
}

// NewDataset builds a Dataset from entries in the given key order. Keys
// missing from order are appended in no particular order.
func NewDataset(order []string, entries map[string]Entry) *Dataset {
	ds := &Dataset{entries: make(map[string]Entry, len(entries))}
	for _, k := range order {
		e, ok := entries[k]
		if !ok {
			continue
		}
		if _, dup := ds.entries[k]; dup {
			continue
		}
		ds.keys = append(ds.keys, k)
		ds.entries[k] = e
	}
	for k, e := range entries {
		if _, ok := ds.entries[k]; !ok {
			ds.keys = append(ds.keys, k)
			ds.entries[k] = e
		}
	}
	return ds
}

// ParseDataset decodes the upstream JSON object. Only numeric rate fields are
// kept; objects without any rate still get an (empty) entry.
func ParseDataset(raw []byte) (*Dataset, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("parse pricing dataset: invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("parse pricing dataset: expected object, got %s", root.Type)
	}

	ds := &Dataset{entries: make(map[string]Entry)}
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		k := key.String()
		if _, dup := ds.entries[k]; !dup {
			ds.keys = append(ds.keys, k)
		}
		ds.entries[k] = Entry{
			InputCostPerToken:           rate(value, "input_cost_per_token"),
			OutputCostPerToken:          rate(value, "output_cost_per_token"),
			CacheWriteCostPerToken:      rate(value, "cache_creation_input_token_cost"),
			CacheReadCostPerToken:       rate(value, "cache_read_input_token_cost"),
			InputCostPerTokenAbove:      rate(value, "input_cost_per_token_above_200k_tokens"),
			OutputCostPerTokenAbove:     rate(value, "output_cost_per_token_above_200k_tokens"),
			CacheWriteCostPerTokenAbove: rate(value, "cache_creation_input_token_cost_above_200k_tokens"),
			CacheReadCostPerTokenAbove:  rate(value, "cache_read_input_token_cost_above_200k_tokens"),
		}
		return true
	})
	return ds, nil
}

func rate(obj gjson.Result, field string) *float64 {
	v := obj.Get(field)
	if v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	return &f
}

// Len returns the number of models in the dataset.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns model ids in publication order.
func (d *Dataset) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the entry stored under exactly key.
func (d *Dataset) Get(key string) (Entry, bool) {
	if d == nil {
		return Entry{}, false
	}
	e, ok := d.entries[key]
	return e, ok
}
