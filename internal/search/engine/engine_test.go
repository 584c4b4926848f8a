package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/cache"
	"github.com/pulsefeed/moment-search/internal/store"
	"github.com/pulsefeed/moment-search/pkg/config"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
)

func testSearchConfig() config.SearchConfig {
	return config.Default().Search
}

func publishedMoment(id, title string, hashtags ...string) *moment.Moment {
	return &moment.Moment{
		ID:         id,
		Title:      title,
		Hashtags:   hashtags,
		Status:     moment.StatusPublished,
		Visibility: moment.VisibilityPublic,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
}

func searchIDs(result *moment.SearchResult) []string {
	ids := make([]string, len(result.Moments))
	for i, m := range result.Moments {
		ids[i] = m.ID
	}
	return ids
}

func TestSearchValidation(t *testing.T) {
	e := New(store.NewMemoryIndex(), testSearchConfig())
	ctx := context.Background()

	tests := []struct {
		name     string
		query    *moment.Query
		sentinel error
	}{
		{
			name:     "empty term",
			query:    &moment.Query{Term: "   "},
			sentinel: pkgerrors.ErrInvalidTerm,
		},
		{
			name: "limit above maximum",
			query: &moment.Query{
				Term:       "beach",
				Pagination: moment.Pagination{Limit: 101},
			},
			sentinel: pkgerrors.ErrLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(ctx, tt.query, nil)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("Search() error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestSearchPipeline(t *testing.T) {
	idx := store.NewMemoryIndex(
		publishedMoment("m-exact", "sunset at the beach", "sunset"),
		publishedMoment("m-partial", "sunsets and coffee"),
		publishedMoment("m-unrelated", "mountain hike"),
	)
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{Term: "sunset"}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if result.Total != 2 {
		t.Fatalf("Total = %d (%v), want 2", result.Total, searchIDs(result))
	}
	if got := searchIDs(result); got[0] != "m-exact" {
		t.Errorf("top result = %v, want m-exact first", got)
	}
	if result.Page != 1 || result.Limit != 20 || result.TotalPages != 1 {
		t.Errorf("pagination envelope = page %d limit %d totalPages %d, want 1/20/1",
			result.Page, result.Limit, result.TotalPages)
	}
	if len(result.Suggestions) != 5 {
		t.Errorf("got %d suggestions, want 5", len(result.Suggestions))
	}
	if result.AppliedFilters == nil || len(result.AppliedFilters.Statuses) == 0 {
		t.Fatal("applied filters missing the default status set")
	}
	if result.AppliedFilters.Statuses[0] != moment.StatusPublished {
		t.Errorf("default status = %s, want published", result.AppliedFilters.Statuses[0])
	}
	for _, m := range result.Moments {
		if m.Relevance.Score < 0 || m.Relevance.Score > 1 {
			t.Errorf("moment %s score %.4f outside [0, 1]", m.ID, m.Relevance.Score)
		}
	}
}

func TestSearchDeduplicatesAcrossStrategies(t *testing.T) {
	// Matches both the text strategy (title) and the hashtag strategy (tag).
	idx := store.NewMemoryIndex(publishedMoment("m-both", "travel diary", "travel"))
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{Term: "travel #travel"}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d (%v), want the moment exactly once", result.Total, searchIDs(result))
	}
	if result.Moments[0].Relevance.Breakdown.Textual == 0 {
		t.Error("merged result lost its textual sub-score")
	}
}

func TestSearchMergesGeoDimensionIntoTextMatch(t *testing.T) {
	// Found by both the text strategy (title) and the location strategy
	// (inside the radius); the text copy arrives first in the merge.
	m := publishedMoment("m-beach", "sunset at the beach")
	m.Location = &moment.Location{Latitude: -23.55, Longitude: -46.63}
	idx := store.NewMemoryIndex(m, publishedMoment("m-inland", "sunset inland"))
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{
		Term: "sunset",
		Filters: &moment.Filters{
			Location: &moment.GeoFilter{Latitude: -23.55, Longitude: -46.63, RadiusKm: 10},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 1 || searchIDs(result)[0] != "m-beach" {
		t.Fatalf("Search() = %v, want only m-beach inside the radius", searchIDs(result))
	}

	got := result.Moments[0]
	if got.DistanceKm == nil {
		t.Fatal("merged result lost distanceKm from the location strategy")
	}
	if *got.DistanceKm > 0.01 {
		t.Errorf("distanceKm = %.4f, want ~0 at the filter center", *got.DistanceKm)
	}
	if got.Relevance.Breakdown.Proximity != 1.0 {
		t.Errorf("proximity = %.4f, want 1.0 inside 0.1*radius", got.Relevance.Breakdown.Proximity)
	}
	if got.Relevance.Breakdown.Textual == 0 {
		t.Error("merged result lost its textual sub-score")
	}
}

func TestSearchDefaultFiltersExcludeDrafts(t *testing.T) {
	draft := publishedMoment("m-draft", "sunset draft")
	draft.Status = moment.StatusDraft
	idx := store.NewMemoryIndex(publishedMoment("m-live", "sunset live"), draft)
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{Term: "sunset"}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 1 || searchIDs(result)[0] != "m-live" {
		t.Fatalf("Search() = %v, want only m-live", searchIDs(result))
	}

	// A caller status filter overrides the default set.
	result, err = e.Search(context.Background(), &moment.Query{
		Term:    "sunset",
		Filters: &moment.Filters{Statuses: []moment.Status{moment.StatusDraft}},
	}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 1 || searchIDs(result)[0] != "m-draft" {
		t.Fatalf("Search() = %v, want only m-draft", searchIDs(result))
	}
}

func TestSearchPagination(t *testing.T) {
	idx := store.NewMemoryIndex()
	for _, id := range []string{"m-1", "m-2", "m-3", "m-4", "m-5"} {
		idx.Add(publishedMoment(id, "beach walk "+id))
	}
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{
		Term:       "beach",
		Pagination: moment.Pagination{Limit: 2, Offset: 2},
	}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 5 || len(result.Moments) != 2 {
		t.Fatalf("Total = %d, returned %d, want 5 and 2", result.Total, len(result.Moments))
	}
	if result.Page != 2 || result.TotalPages != 3 {
		t.Errorf("page %d totalPages %d, want 2 and 3", result.Page, result.TotalPages)
	}

	// Offset past the end returns an empty page with the envelope intact.
	result, err = e.Search(context.Background(), &moment.Query{
		Term:       "beach",
		Pagination: moment.Pagination{Limit: 2, Offset: 10},
	}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Moments) != 0 || result.Total != 5 {
		t.Errorf("past-the-end page returned %d moments, want 0 of 5", len(result.Moments))
	}
}

// flakyIndex fails selected retrieval paths.
type flakyIndex struct {
	inner   store.Index
	textErr error
	tagErr  error
	nearErr error
}

func (f *flakyIndex) SearchText(ctx context.Context, p store.TextParams) ([]*moment.Moment, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	return f.inner.SearchText(ctx, p)
}

func (f *flakyIndex) SearchHashtags(ctx context.Context, p store.HashtagParams) ([]*moment.Moment, error) {
	if f.tagErr != nil {
		return nil, f.tagErr
	}
	return f.inner.SearchHashtags(ctx, p)
}

func (f *flakyIndex) SearchNear(ctx context.Context, p store.GeoParams) ([]*moment.Moment, error) {
	if f.nearErr != nil {
		return nil, f.nearErr
	}
	return f.inner.SearchNear(ctx, p)
}

func TestSearchDropsFailedStrategy(t *testing.T) {
	inner := store.NewMemoryIndex(publishedMoment("m-tagged", "weekend clip", "travel"))
	idx := &flakyIndex{inner: inner, textErr: errors.New("text shards down")}
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{Term: "clip #travel"}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v, want hashtag results despite text failure", err)
	}
	if result.Total != 1 || searchIDs(result)[0] != "m-tagged" {
		t.Fatalf("Search() = %v, want m-tagged from the surviving strategy", searchIDs(result))
	}
}

func TestSearchAllStrategiesFailed(t *testing.T) {
	idx := &flakyIndex{
		inner:   store.NewMemoryIndex(),
		textErr: errors.New("text shards down"),
		tagErr:  errors.New("tag shards down"),
	}
	e := New(idx, testSearchConfig())

	_, err := e.Search(context.Background(), &moment.Query{Term: "clip #travel"}, nil)
	if !errors.Is(err, pkgerrors.ErrAllSearchesFailed) {
		t.Fatalf("Search() error = %v, want ErrAllSearchesFailed", err)
	}
}

func TestSearchCacheHit(t *testing.T) {
	idx := store.NewMemoryIndex(publishedMoment("m-1", "sunset at the beach"))
	e := New(idx, testSearchConfig(), WithCache(cache.NewMemoryCache(100, time.Minute)))
	ctx := context.Background()
	query := &moment.Query{Term: "sunset"}

	first, err := e.Search(ctx, query, nil)
	if err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	second, err := e.Search(ctx, query, nil)
	if err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if second.Total != first.Total || len(second.Moments) != len(first.Moments) {
		t.Errorf("cached result diverges: %d/%d vs %d/%d",
			second.Total, len(second.Moments), first.Total, len(first.Moments))
	}

	stats := e.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("cache counters = %d hits / %d misses, want 1/1", stats.CacheHits, stats.CacheMisses)
	}
}

func TestSearchLocationStrategyNeedsGeoFilter(t *testing.T) {
	// SearchNear always fails; without a geo filter the location strategy is
	// never launched, so the search must still succeed.
	inner := store.NewMemoryIndex(publishedMoment("m-1", "sunset at the beach"))
	idx := &flakyIndex{inner: inner, nearErr: errors.New("geo shards down")}
	e := New(idx, testSearchConfig())

	result, err := e.Search(context.Background(), &moment.Query{Term: "sunset"}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}
}

func TestStats(t *testing.T) {
	idx := store.NewMemoryIndex(publishedMoment("m-1", "sunset at the beach"))
	e := New(idx, testSearchConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Search(ctx, &moment.Query{Term: "sunset"}, nil); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	}
	if _, err := e.Search(ctx, &moment.Query{Term: "  "}, nil); err == nil {
		t.Fatal("expected validation error")
	}

	stats := e.Stats()
	if stats.TotalSearches != 4 {
		t.Errorf("TotalSearches = %d, want 4", stats.TotalSearches)
	}
	if stats.ErrorRate < 0.2499 || stats.ErrorRate > 0.2501 {
		t.Errorf("ErrorRate = %.4f, want 0.25", stats.ErrorRate)
	}
	if len(stats.TopQueries) != 1 || stats.TopQueries[0].Term != "sunset" || stats.TopQueries[0].Count != 3 {
		t.Errorf("TopQueries = %+v, want sunset x3", stats.TopQueries)
	}
	if stats.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want positive", stats.Goroutines)
	}
}
