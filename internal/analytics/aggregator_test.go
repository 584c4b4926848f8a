package analytics

import (
	"testing"
	"time"
)

func searchEvent(term string, total int, latencyMs int64) SearchEvent {
	return SearchEvent{
		Type:      EventCacheMiss,
		Term:      term,
		Total:     total,
		Returned:  total,
		LatencyMs: latencyMs,
		Timestamp: time.Now().UTC(),
	}
}

func TestAggregatorRecord(t *testing.T) {
	agg := NewAggregator(nil)

	agg.Record(searchEvent("beach", 12, 40))
	agg.Record(searchEvent("beach", 12, 60))
	agg.Record(searchEvent("sunset", 3, 20))
	agg.Record(searchEvent("nothing here", 0, 10))
	agg.Record(SearchEvent{Type: EventCacheHit, Term: "beach", Total: 12, CacheHit: true, LatencyMs: 2})
	agg.Record(SearchEvent{Type: EventError, Term: "bad", Error: "index down", LatencyMs: 5})

	stats := agg.Stats()
	if stats.TotalSearches != 6 {
		t.Errorf("TotalSearches = %d, want 6", stats.TotalSearches)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 5 {
		t.Errorf("cache counters = %d/%d, want 1 hit, 5 misses", stats.CacheHits, stats.CacheMisses)
	}
	if stats.ZeroResultCount != 1 {
		t.Errorf("ZeroResultCount = %d, want 1", stats.ZeroResultCount)
	}
	if stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", stats.ErrorCount)
	}

	if len(stats.TopTerms) == 0 || stats.TopTerms[0].Term != "beach" || stats.TopTerms[0].Count != 3 {
		t.Errorf("TopTerms = %+v, want beach x3 first", stats.TopTerms)
	}
	if len(stats.ZeroResultTerms) != 1 || stats.ZeroResultTerms[0].Term != "nothing here" {
		t.Errorf("ZeroResultTerms = %+v, want only the zero-result term", stats.ZeroResultTerms)
	}
	if stats.SearchesPerMinute <= 0 {
		t.Errorf("SearchesPerMinute = %.2f, want positive", stats.SearchesPerMinute)
	}
}

func TestAggregatorLatencyPercentiles(t *testing.T) {
	agg := NewAggregator(nil)
	for i := int64(1); i <= 100; i++ {
		agg.Record(searchEvent("q", 1, i))
	}

	stats := agg.Stats()
	if stats.AvgLatencyMs != 50.5 {
		t.Errorf("AvgLatencyMs = %.2f, want 50.5", stats.AvgLatencyMs)
	}
	if stats.P50LatencyMs != 51 {
		t.Errorf("P50LatencyMs = %d, want 51", stats.P50LatencyMs)
	}
	if stats.P95LatencyMs != 96 {
		t.Errorf("P95LatencyMs = %d, want 96", stats.P95LatencyMs)
	}
	if stats.P99LatencyMs != 100 {
		t.Errorf("P99LatencyMs = %d, want 100", stats.P99LatencyMs)
	}
}

func TestTopNTieBreak(t *testing.T) {
	counts := map[string]int64{"zebra": 2, "apple": 2, "mango": 5}
	got := topN(counts, 2)
	if len(got) != 2 {
		t.Fatalf("topN returned %d entries, want 2", len(got))
	}
	if got[0].Term != "mango" || got[1].Term != "apple" {
		t.Errorf("topN = %+v, want mango then apple (ties break alphabetically)", got)
	}
}
