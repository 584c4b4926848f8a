package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/cache"
	"github.com/pulsefeed/moment-search/internal/search/engine"
	"github.com/pulsefeed/moment-search/internal/search/ranking"
	"github.com/pulsefeed/moment-search/internal/store"
	"github.com/pulsefeed/moment-search/pkg/config"
)

var benchTitles = []string{
	"sunset at the beach",
	"weekend travel vlog",
	"street food tour",
	"mountain sunrise timelapse",
	"city lights after rain",
}

var benchTags = [][]string{
	{"sunset", "beach"},
	{"travel", "vlog"},
	{"food", "street"},
	{"nature", "sunrise"},
	{"city", "night"},
}

func seedIndex(n int) *store.MemoryIndex {
	idx := store.NewMemoryIndex()
	base := time.Now()
	for i := 0; i < n; i++ {
		idx.Add(&moment.Moment{
			ID:         fmt.Sprintf("m-%06d", i),
			Title:      benchTitles[i%len(benchTitles)],
			Hashtags:   benchTags[i%len(benchTags)],
			OwnerID:    fmt.Sprintf("u-%d", i%100),
			Status:     moment.StatusPublished,
			Visibility: moment.VisibilityPublic,
			CreatedAt:  base.Add(-time.Duration(i%720) * time.Hour),
			Metrics: moment.EngagementMetrics{
				Views:    int64(i * 13 % 20000),
				Likes:    int64(i * 7 % 2000),
				Comments: int64(i * 3 % 800),
				Shares:   int64(i % 300),
			},
			Location: &moment.Location{
				Latitude:  -23.5 + float64(i%100)*0.001,
				Longitude: -46.6 + float64(i%100)*0.001,
			},
		})
	}
	return idx
}

// BenchmarkSearch measures the full pipeline (fan-out, merge, filter, rank,
// paginate) across index sizes.
func BenchmarkSearch(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("moments_%d", size), func(b *testing.B) {
			eng := engine.New(seedIndex(size), config.Default().Search)
			query := &moment.Query{Term: "sunset beach"}
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := eng.Search(ctx, query, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSearchCached measures the memoized path.
func BenchmarkSearchCached(b *testing.B) {
	eng := engine.New(seedIndex(10000), config.Default().Search,
		engine.WithCache(cache.NewMemoryCache(1000, time.Minute)))
	query := &moment.Query{Term: "sunset beach"}
	ctx := context.Background()
	if _, err := eng.Search(ctx, query, nil); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Search(ctx, query, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRank measures scoring and sorting for different result-set sizes.
func BenchmarkRank(b *testing.B) {
	weights := config.Default().Search.RankingWeights
	sizes := []int{100, 1000, 10000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("results_%d", size), func(b *testing.B) {
			ranker := ranking.New(weights)
			idx := seedIndex(size)
			results, err := idx.SearchText(context.Background(), store.TextParams{Term: "sunset beach travel food city"})
			if err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ranker.Rank(results, nil)
			}
		})
	}
}

// BenchmarkCacheKey measures cache key derivation.
func BenchmarkCacheKey(b *testing.B) {
	from := time.Now().Add(-24 * time.Hour)
	query := &moment.Query{
		Term: "sunset at the beach #vlog",
		Filters: &moment.Filters{
			Statuses: []moment.Status{moment.StatusPublished},
			Hashtags: []string{"vlog", "sunset"},
			DateFrom: &from,
		},
		Pagination: moment.Pagination{Limit: 20},
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = cache.Key(query)
	}
}
