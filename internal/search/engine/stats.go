package engine

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

const topQueryLimit = 10

// QueryCount is one entry in the popular-query table.
type QueryCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// EngineStats is a point-in-time snapshot of the cumulative engine counters
// plus process resource gauges.
type EngineStats struct {
	TotalSearches     int64        `json:"totalSearches"`
	AvgResponseTimeMs float64      `json:"avgResponseTimeMs"`
	ErrorRate         float64      `json:"errorRate"`
	CacheHits         int64        `json:"cacheHits"`
	CacheMisses       int64        `json:"cacheMisses"`
	TopQueries        []QueryCount `json:"topQueries"`
	Goroutines        int          `json:"goroutines"`
	HeapAllocBytes    uint64       `json:"heapAllocBytes"`
	Uptime            string       `json:"uptime"`
}

// Stats accumulates per-search counters. Averages are maintained as
// cumulative means so a snapshot is O(queries), not O(searches).
type Stats struct {
	mu            sync.Mutex
	startedAt     time.Time
	totalSearches int64
	failed        int64
	avgResponseMs float64
	cacheHits     int64
	cacheMisses   int64
	termCounts    map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		startedAt:  time.Now(),
		termCounts: make(map[string]int64),
	}
}

// Record folds one search into the cumulative counters. Failed searches
// count toward the total and the error rate but not the query table.
func (s *Stats) Record(term string, latencyMs int64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSearches++
	s.avgResponseMs += (float64(latencyMs) - s.avgResponseMs) / float64(s.totalSearches)
	if failed {
		s.failed++
		return
	}
	s.termCounts[term]++
}

// RecordCache counts one cache lookup.
func (s *Stats) RecordCache(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.cacheHits++
	} else {
		s.cacheMisses++
	}
}

// Snapshot returns the current counters with the top queries sorted by
// count descending, term ascending on ties.
func (s *Stats) Snapshot() EngineStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	top := make([]QueryCount, 0, len(s.termCounts))
	for term, count := range s.termCounts {
		top = append(top, QueryCount{Term: term, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Term < top[j].Term
	})
	if len(top) > topQueryLimit {
		top = top[:topQueryLimit]
	}

	errorRate := 0.0
	if s.totalSearches > 0 {
		errorRate = float64(s.failed) / float64(s.totalSearches)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return EngineStats{
		TotalSearches:     s.totalSearches,
		AvgResponseTimeMs: s.avgResponseMs,
		ErrorRate:         errorRate,
		CacheHits:         s.cacheHits,
		CacheMisses:       s.cacheMisses,
		TopQueries:        top,
		Goroutines:        runtime.NumGoroutine(),
		HeapAllocBytes:    mem.HeapAlloc,
		Uptime:            time.Since(s.startedAt).Round(time.Second).String(),
	}
}
