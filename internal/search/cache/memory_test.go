package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pulsefeed/moment-search/internal/moment"
)

func queryFor(term string) *moment.Query {
	return &moment.Query{Term: term, Pagination: moment.Pagination{Limit: 20}}
}

func resultFor(total int) *moment.SearchResult {
	return &moment.SearchResult{Total: total, Limit: 20}
}

func TestKeyDeterminism(t *testing.T) {
	a := &moment.Query{Term: "  Beach   Day ", Pagination: moment.Pagination{Limit: 20}}
	b := &moment.Query{Term: "beach day", Pagination: moment.Pagination{Limit: 20}}
	if Key(a) != Key(b) {
		t.Error("keys differ for queries equal after normalization")
	}

	c := &moment.Query{Term: "beach day", Pagination: moment.Pagination{Limit: 20, Offset: 20}}
	if Key(a) == Key(c) {
		t.Error("keys identical for different pagination")
	}

	d := &moment.Query{Term: "beach day", Pagination: moment.Pagination{Limit: 20},
		Filters: &moment.Filters{Statuses: []moment.Status{moment.StatusPublished}}}
	if Key(b) == Key(d) {
		t.Error("keys identical for different filters")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, queryFor("miss")); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(ctx, queryFor("beach"), resultFor(42))
	got, ok := c.Get(ctx, queryFor("beach"))
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.Total != 42 {
		t.Errorf("cached Total = %d, want 42", got.Total)
	}
}

func TestMemoryCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Set(ctx, queryFor(fmt.Sprintf("term-%d", i)), resultFor(i))
	}
	c.Set(ctx, queryFor("term-10"), resultFor(10))

	if _, ok := c.Get(ctx, queryFor("term-0")); ok {
		t.Error("oldest entry survived insertion at capacity")
	}
	for i := 1; i <= 10; i++ {
		if _, ok := c.Get(ctx, queryFor(fmt.Sprintf("term-%d", i))); !ok {
			t.Errorf("entry term-%d missing", i)
		}
	}
	if stats := c.Stats(ctx); stats.TotalEntries != 10 {
		t.Errorf("TotalEntries = %d, want 10", stats.TotalEntries)
	}
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	c.Set(ctx, queryFor("a"), resultFor(1))
	c.Set(ctx, queryFor("b"), resultFor(2))
	c.Set(ctx, queryFor("a"), resultFor(3))

	got, ok := c.Get(ctx, queryFor("a"))
	if !ok || got.Total != 3 {
		t.Fatalf("overwritten entry = %+v, ok=%v, want Total 3", got, ok)
	}
	if _, ok := c.Get(ctx, queryFor("b")); !ok {
		t.Error("sibling entry evicted by an overwrite")
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set(ctx, queryFor("fresh"), resultFor(1))
	current = current.Add(59 * time.Second)
	if _, ok := c.Get(ctx, queryFor("fresh")); !ok {
		t.Fatal("entry expired before its TTL")
	}

	current = current.Add(time.Second)
	if _, ok := c.Get(ctx, queryFor("fresh")); ok {
		t.Fatal("entry survived past its TTL")
	}
	if stats := c.Stats(ctx); stats.TotalEntries != 0 {
		t.Errorf("TotalEntries = %d, want 0 after lazy eviction", stats.TotalEntries)
	}
}

func TestMemoryCacheCleanup(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set(ctx, queryFor("old-1"), resultFor(1))
	c.Set(ctx, queryFor("old-2"), resultFor(2))
	current = current.Add(30 * time.Second)
	c.Set(ctx, queryFor("young"), resultFor(3))
	current = current.Add(31 * time.Second)

	stats := c.Stats(ctx)
	if stats.ActiveEntries != 1 || stats.ExpiredEntries != 2 {
		t.Fatalf("Stats = %+v, want 1 active, 2 expired", stats)
	}

	if removed := c.Cleanup(ctx); removed != 2 {
		t.Errorf("Cleanup() = %d, want 2", removed)
	}
	if stats := c.Stats(ctx); stats.TotalEntries != 1 || stats.ActiveEntries != 1 {
		t.Errorf("Stats after cleanup = %+v, want exactly the young entry", stats)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()
	c.Set(ctx, queryFor("a"), resultFor(1))
	c.Set(ctx, queryFor("b"), resultFor(2))

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if stats := c.Stats(ctx); stats.TotalEntries != 0 {
		t.Errorf("TotalEntries = %d after Clear, want 0", stats.TotalEntries)
	}
	if _, ok := c.Get(ctx, queryFor("a")); ok {
		t.Error("entry survived Clear")
	}
}
