package models

import "time"

// PricingSnapshot is a stored copy of an upstream pricing document.
type PricingSnapshot struct {
	URL       string        `json:"url"`
	Raw       []byte        `json:"-"`
	Digest    string        `json:"digest"`
	Size      int           `json:"size"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
	Expired   bool          `json:"expired"`
}

// CacheStats reports pricing cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
