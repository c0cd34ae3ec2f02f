package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/token-tracker/tracker/pkg/models"
)

// Cache stores raw pricing documents keyed by source URL, backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS pricing_snapshots (
	url TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	digest TEXT NOT NULL,
	fetched_ms INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Digest returns the hex SHA-256 of a pricing document.
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Get returns the stored document for url. Expired entries are misses.
func (c *Cache) Get(url string) ([]byte, bool) {
	var body []byte
	var fetchedMs, ttlMs int64

	err := c.db.QueryRow(
		`SELECT body, fetched_ms, ttl_ms FROM pricing_snapshots WHERE url = ?`,
		url,
	).Scan(&body, &fetchedMs, &ttlMs)

	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	if c.now().UnixMilli() > fetchedMs+ttlMs {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return body, true
}

// Put stores raw as the current document for url.
func (c *Cache) Put(url string, raw []byte) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO pricing_snapshots (url, body, digest, fetched_ms, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		url, raw, Digest(raw), c.now().UnixMilli(), c.ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Snapshot returns metadata and body for url regardless of expiry.
func (c *Cache) Snapshot(url string) (models.PricingSnapshot, bool, error) {
	var s models.PricingSnapshot
	var fetchedMs, ttlMs int64
	err := c.db.QueryRow(
		`SELECT url, body, digest, fetched_ms, ttl_ms FROM pricing_snapshots WHERE url = ?`,
		url,
	).Scan(&s.URL, &s.Raw, &s.Digest, &fetchedMs, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PricingSnapshot{}, false, nil
	}
	if err != nil {
		return models.PricingSnapshot{}, false, fmt.Errorf("cache snapshot: %w", err)
	}
	s.Size = len(s.Raw)
	s.FetchedAt = time.UnixMilli(fetchedMs).UTC()
	s.TTL = time.Duration(ttlMs) * time.Millisecond
	s.Expired = c.now().UnixMilli() > fetchedMs+ttlMs
	return s, true, nil
}

// List returns metadata for every stored document, without bodies.
func (c *Cache) List() ([]models.PricingSnapshot, error) {
	rows, err := c.db.Query(
		`SELECT url, LENGTH(body), digest, fetched_ms, ttl_ms FROM pricing_snapshots ORDER BY url`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	defer rows.Close()

	now := c.now().UnixMilli()
	var out []models.PricingSnapshot
	for rows.Next() {
		var s models.PricingSnapshot
		var fetchedMs, ttlMs int64
		if err := rows.Scan(&s.URL, &s.Size, &s.Digest, &fetchedMs, &ttlMs); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		s.FetchedAt = time.UnixMilli(fetchedMs).UTC()
		s.TTL = time.Duration(ttlMs) * time.Millisecond
		s.Expired = now > fetchedMs+ttlMs
		out = append(out, s)
	}
	return out, rows.Err()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM pricing_snapshots`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries and returns how many were deleted. If
// expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(expiredOnly bool) (int64, error) {
	var res sql.Result
	var err error
	if expiredOnly {
		res, err = c.db.Exec(`DELETE FROM pricing_snapshots WHERE fetched_ms + ttl_ms < ?`, c.now().UnixMilli())
	} else {
		res, err = c.db.Exec(`DELETE FROM pricing_snapshots`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
