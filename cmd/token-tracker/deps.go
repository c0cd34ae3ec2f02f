package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/goccy/go-json"

	cachepkg "github.com/token-tracker/tracker/pkg/cache/sqlite"
	"github.com/token-tracker/tracker/pkg/config"
	"github.com/token-tracker/tracker/pkg/pricing"
	"github.com/token-tracker/tracker/pkg/tracker"
)

// openTracker opens the usage history database.
func openTracker(cfg *config.Config) (*tracker.SQLiteTracker, error) {
	if err := ensureDir(cfg.DBPath); err != nil {
		return nil, err
	}
	return tracker.New(cfg.DBPath)
}

// openCache opens the pricing snapshot cache, which shares the history
// database file.
func openCache(cfg *config.Config) (*cachepkg.Cache, error) {
	if err := ensureDir(cfg.DBPath); err != nil {
		return nil, err
	}
	return cachepkg.New(cfg.DBPath, cfg.Pricing.CacheTTL)
}

// newResolver builds a resolver from config, opening the snapshot cache when
// its TTL is positive. The returned close func releases the cache.
func newResolver(cfg *config.Config, logger *slog.Logger, offline bool) (*pricing.Resolver, func(), error) {
	if offline || cfg.Pricing.Offline || cfg.Pricing.CacheTTL <= 0 {
		return buildResolver(cfg, logger, offline, nil), func() {}, nil
	}
	c, err := openCache(cfg)
	if err != nil {
		return nil, nil, err
	}
	return buildResolver(cfg, logger, offline, c), func() { _ = c.Close() }, nil
}

// buildResolver builds a resolver over an already open snapshot store, which
// may be nil. In offline mode it is preloaded with an empty dataset so
// lookups use only the built-in family table.
func buildResolver(cfg *config.Config, logger *slog.Logger, offline bool, store pricing.SnapshotStore) *pricing.Resolver {
	if offline || cfg.Pricing.Offline {
		r := pricing.NewResolver(pricing.WithLogger(logger))
		r.UseDataset(pricing.NewDataset(nil, nil))
		return r
	}

	opts := []pricing.Option{
		pricing.WithURL(cfg.Pricing.URL),
		pricing.WithHTTPClient(&http.Client{Timeout: cfg.Pricing.Timeout}),
		pricing.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, pricing.WithSnapshotStore(store))
	}
	return pricing.NewResolver(opts...)
}

// loadPricing fetches the dataset unless the resolver is already loaded.
func loadPricing(ctx context.Context, r *pricing.Resolver) error {
	if r.Loaded() {
		return nil
	}
	_, err := r.Fetch(ctx)
	return err
}

// writeJSONFile writes v to path, reporting errors from closing the file.
func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
