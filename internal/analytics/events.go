// Package analytics collects search events into a Kafka-backed pipeline and
// aggregates them into rolling operational stats.
package analytics

import "time"

// EventType distinguishes the analytics event kinds.
type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventZeroResult EventType = "zero_result"
	EventError      EventType = "search_error"
)

// SearchEvent records one completed (or failed) moment search.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Term       string    `json:"term"`
	Hashtags   []string  `json:"hashtags,omitempty"`
	Strategies []string  `json:"strategies,omitempty"`
	Total      int       `json:"total"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	UserID     string    `json:"user_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}
