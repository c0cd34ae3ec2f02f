// Package pricing fetches the public LiteLLM model price list, resolves model
// ids against it and computes token costs.
package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultURL is the published LiteLLM price list.
const DefaultURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

const maxBodySize = 32 * 1024 * 1024

// vendorPrefixes are tried in order after an exact miss.
var vendorPrefixes = []string{"anthropic/", "openai/", "google/", "bedrock/"}

// Strategy names how a model id was resolved.
type Strategy string

const (
	StrategyExact    Strategy = "exact"
	StrategyPrefix   Strategy = "prefix"
	StrategyFuzzy    Strategy = "fuzzy"
	StrategyFallback Strategy = "fallback"
)

// Match is a resolved pricing entry.
type Match struct {
	Key      string   `json:"key"`
	Strategy Strategy `json:"strategy"`
	Entry    Entry    `json:"entry"`
}

// FetchError reports a non-2xx response from the pricing endpoint.
type FetchError struct {
	StatusCode int
	URL        string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch pricing: unexpected status %d from %s", e.StatusCode, e.URL)
}

// SnapshotStore persists raw dataset bytes between runs. Get reports a miss
// for expired snapshots.
type SnapshotStore interface {
	Get(url string) ([]byte, bool)
	Put(url string, raw []byte) error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithURL overrides the dataset URL.
func WithURL(url string) Option {
	return func(r *Resolver) { r.url = url }
}

// WithHTTPClient sets the client used for the dataset request.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithSnapshotStore enables the on-disk dataset cache.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(r *Resolver) { r.store = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// Resolver resolves model ids to pricing entries. The dataset is fetched at
// most once per Resolver; after a successful fetch it is never refreshed.
type Resolver struct {
	url    string
	client *http.Client
	store  SnapshotStore
	logger *slog.Logger

	mu      sync.Mutex
	dataset *Dataset
}

// NewResolver creates a Resolver for DefaultURL with a 30s HTTP timeout.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		url:    DefaultURL,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL returns the dataset URL.
func (r *Resolver) URL() string { return r.url }

// Fetch returns the dataset, downloading it on first use. Failed attempts are
// not memoized.
func (r *Resolver) Fetch(ctx context.Context) (*Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dataset != nil {
		return r.dataset, nil
	}

	if r.store != nil {
		if raw, ok := r.store.Get(r.url); ok {
			ds, err := ParseDataset(raw)
			if err == nil {
				r.logger.Debug("pricing snapshot cache hit", "url", r.url, "models", ds.Len())
				r.dataset = ds
				return ds, nil
			}
			r.logger.Debug("discarding unreadable pricing snapshot", "url", r.url, "error", err)
		}
	}

	raw, err := r.download(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := ParseDataset(raw)
	if err != nil {
		return nil, err
	}
	r.logger.Info("fetched pricing dataset", "url", r.url, "models", ds.Len(), "bytes", len(raw))

	if r.store != nil {
		if err := r.store.Put(r.url, raw); err != nil {
			r.logger.Warn("failed to store pricing snapshot", "error", err)
		}
	}
	r.dataset = ds
	return ds, nil
}

func (r *Resolver) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create pricing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{StatusCode: resp.StatusCode, URL: r.url}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read pricing response: %w", err)
	}
	if len(raw) > maxBodySize {
		return nil, fmt.Errorf("pricing response exceeds %d bytes", maxBodySize)
	}
	return raw, nil
}

// UseDataset installs ds as the memoized dataset. A nil ds clears it.
func (r *Resolver) UseDataset(ds *Dataset) {
	r.mu.Lock()
	r.dataset = ds
	r.mu.Unlock()
}

// Loaded reports whether a dataset is available.
func (r *Resolver) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataset != nil
}

// ModelPricing returns the entry for modelID.
func (r *Resolver) ModelPricing(modelID string) (Entry, bool) {
	m, ok := r.Lookup(modelID)
	return m.Entry, ok
}

// Lookup resolves modelID. It never fetches: before a dataset is loaded every
// lookup misses.
func (r *Resolver) Lookup(modelID string) (Match, bool) {
	r.mu.Lock()
	ds := r.dataset
	r.mu.Unlock()

	if ds == nil {
		return Match{}, false
	}
	return resolve(ds, modelID)
}

func resolve(ds *Dataset, modelID string) (Match, bool) {
	if e, ok := ds.Get(modelID); ok {
		return Match{Key: modelID, Strategy: StrategyExact, Entry: e}, true
	}

	for _, prefix := range vendorPrefixes {
		key := prefix + modelID
		if e, ok := ds.Get(key); ok {
			return Match{Key: key, Strategy: StrategyPrefix, Entry: e}, true
		}
	}

	lower := strings.ToLower(modelID)
	if lower != "" {
		for _, key := range ds.keys {
			k := strings.ToLower(key)
			if k == "" {
				continue
			}
			if strings.Contains(k, lower) || strings.Contains(lower, k) {
				return Match{Key: key, Strategy: StrategyFuzzy, Entry: ds.entries[key]}, true
			}
		}
	}

	for _, f := range fallbackFamilies {
		if strings.Contains(lower, f.name) {
			return Match{Key: f.name, Strategy: StrategyFallback, Entry: f.entry}, true
		}
	}
	return Match{}, false
}
