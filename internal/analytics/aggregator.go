package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsefeed/moment-search/pkg/kafka"
)

// AggregatedStats is the rolling operational view of search traffic.
type AggregatedStats struct {
	TotalSearches     int64       `json:"total_searches"`
	CacheHits         int64       `json:"cache_hits"`
	CacheMisses       int64       `json:"cache_misses"`
	ZeroResultCount   int64       `json:"zero_result_count"`
	ErrorCount        int64       `json:"error_count"`
	AvgLatencyMs      float64     `json:"avg_latency_ms"`
	P50LatencyMs      int64       `json:"p50_latency_ms"`
	P95LatencyMs      int64       `json:"p95_latency_ms"`
	P99LatencyMs      int64       `json:"p99_latency_ms"`
	TopTerms          []TermCount `json:"top_terms"`
	ZeroResultTerms   []TermCount `json:"zero_result_terms"`
	SearchesPerMinute float64     `json:"searches_per_minute"`
}

// TermCount is a search term with its observed frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Aggregator consumes search events and folds them into AggregatedStats.
type Aggregator struct {
	mu              sync.RWMutex
	totalSearches   atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	zeroResults     atomic.Int64
	errorCount      atomic.Int64
	latencies       []int64
	termCounts      map[string]int64
	zeroResultTerms map[string]int64
	startTime       time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator reading from the given consumer. The
// consumer may be nil when events are recorded directly (tests, single
// process).
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:       make([]int64, 0, 10000),
		termCounts:      make(map[string]int64),
		zeroResultTerms: make(map[string]int64),
		startTime:       time.Now(),
		consumer:        consumer,
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start enters the consume loop until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent returns a kafka.MessageHandler that feeds the aggregator.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one search event into the rolling stats.
func (a *Aggregator) Record(event SearchEvent) {
	a.totalSearches.Add(1)

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Type == EventError {
		a.errorCount.Add(1)
	}
	if event.Total == 0 && event.Type != EventError {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.latencies = append(a.latencies, event.LatencyMs)
	a.termCounts[event.Term]++
	if event.Total == 0 && event.Type != EventError {
		a.zeroResultTerms[event.Term]++
	}
	a.mu.Unlock()
}

// Stats returns a snapshot of the aggregated stats.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		ErrorCount:      a.errorCount.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTerms = topN(a.termCounts, 10)
	stats.ZeroResultTerms = topN(a.zeroResultTerms, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.SearchesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		result = append(result, TermCount{Term: term, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Term < result[j].Term
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
