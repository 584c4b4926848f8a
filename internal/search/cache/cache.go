// Package cache memoizes search results keyed by normalized query. It ships
// a bounded in-memory TTL store and a Redis-backed store behind the same
// interface.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulsefeed/moment-search/internal/moment"
)

// Cache memoizes complete search results per normalized query.
type Cache interface {
	Get(ctx context.Context, query *moment.Query) (*moment.SearchResult, bool)
	Set(ctx context.Context, query *moment.Query, result *moment.SearchResult)
	// Cleanup purges expired entries and returns how many were removed.
	Cleanup(ctx context.Context) int
	Clear(ctx context.Context) error
	Stats(ctx context.Context) Stats
}

// Stats describes the cache population.
type Stats struct {
	TotalEntries     int   `json:"totalEntries"`
	ActiveEntries    int   `json:"activeEntries"`
	ExpiredEntries   int   `json:"expiredEntries"`
	MemoryUsageBytes int64 `json:"memoryUsageBytes"`
}

// Key derives a deterministic cache key from the normalized term, the
// serialized filters, and the serialized pagination. Identical queries
// always produce identical keys.
func Key(query *moment.Query) string {
	term := strings.Join(strings.Fields(strings.ToLower(query.Term)), " ")
	filters, _ := json.Marshal(query.Filters)
	pagination, _ := json.Marshal(query.Pagination)
	raw := fmt.Sprintf("%s|%s|%s", term, filters, pagination)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", hash[:16])
}
