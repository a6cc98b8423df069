package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode distinguishes topic feeds from free-text related-post searches.
type Mode string

const (
	ModeTopic  Mode = "topic"
	ModeSearch Mode = "search"
)

// CacheKey identifies one cached retrieval. Two requests that differ only in
// letter case or whitespace share a key.
type CacheKey struct {
	Mode       Mode
	Query      string
	MaxResults int
}

// NewCacheKey builds a key with a normalized query.
func NewCacheKey(mode Mode, query string, maxResults int) CacheKey {
	return CacheKey{Mode: mode, Query: NormalizeQuery(query), MaxResults: maxResults}
}

// String renders the key as "<mode>|<query>|n=<maxResults>".
func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|n=%d", k.Mode, k.Query, k.MaxResults)
}

// Prefix renders the portion of the key shared by every maxResults variant.
func (k CacheKey) Prefix() string {
	return KeyPrefix(k.Mode, k.Query)
}

// KeyPrefix returns "<mode>|<normalized query>|".
func KeyPrefix(mode Mode, query string) string {
	return fmt.Sprintf("%s|%s|", mode, NormalizeQuery(query))
}

// NormalizeQuery lowercases, collapses internal whitespace and trims.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// CacheEntry is one slot of the TTL cache. LastGood survives expiry and
// invalidation so that degraded responses can still be served.
type CacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
	Fresh     bool
}

// IsExpired reports whether the entry is no longer fresh at now.
// An entry expires exactly at ExpiresAt.
func (e *CacheEntry[V]) IsExpired(now time.Time) bool {
	return !e.Fresh || !now.Before(e.ExpiresAt)
}

// RateWindow is the state of a fixed-length rolling rate window.
type RateWindow struct {
	WindowStart time.Time     `json:"window_start"`
	Count       int           `json:"count"`
	Max         int           `json:"max"`
	Window      time.Duration `json:"window"`
}

// Remaining returns the number of acquisitions left in the window.
func (w RateWindow) Remaining() int {
	if w.Count >= w.Max {
		return 0
	}
	return w.Max - w.Count
}
