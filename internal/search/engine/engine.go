// Package engine orchestrates moment search: validation, filter merging,
// concurrent strategy fan-out, merge and dedup, filtering, ranking,
// pagination, and result memoization.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pulsefeed/moment-search/internal/analytics"
	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/cache"
	"github.com/pulsefeed/moment-search/internal/search/filter"
	"github.com/pulsefeed/moment-search/internal/search/ranking"
	"github.com/pulsefeed/moment-search/internal/search/strategy"
	"github.com/pulsefeed/moment-search/internal/store"
	"github.com/pulsefeed/moment-search/pkg/config"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
	"github.com/pulsefeed/moment-search/pkg/logger"
	"github.com/pulsefeed/moment-search/pkg/metrics"
	"github.com/pulsefeed/moment-search/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

// Engine is the moment search orchestrator. It is stateless per call; the
// only cross-request state is the cache and the cumulative stats, both
// concurrency-safe.
type Engine struct {
	cfg        config.SearchConfig
	strategies []strategy.Strategy
	filters    *filter.Engine
	ranker     *ranking.Engine
	cache      cache.Cache
	collector  *analytics.Collector
	metrics    *metrics.Metrics
	stats      *Stats
	group      singleflight.Group
	logger     *slog.Logger
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithCache enables result memoization.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCollector enables analytics event emission.
func WithCollector(c *analytics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over the given retrieval index. Strategies are
// registered in fixed order (text, location, hashtag) so merge behaviour is
// deterministic.
func New(index store.Index, cfg config.SearchConfig, opts ...Option) *Engine {
	ranker := ranking.New(cfg.RankingWeights)
	e := &Engine{
		cfg: cfg,
		strategies: []strategy.Strategy{
			strategy.NewTextSearcher(index, ranker, cfg.MinTermLength, cfg.MaxTermLength, cfg.MaxHashtags),
			strategy.NewLocationSearcher(index, ranker, cfg.MaxRadiusKm),
			strategy.NewHashtagSearcher(index, ranker, cfg.MaxHashtags),
		},
		filters: filter.New(),
		ranker:  ranker,
		stats:   NewStats(),
		logger:  slog.Default().With("component", "search-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the cumulative engine counters.
func (e *Engine) Stats() EngineStats {
	return e.stats.Snapshot()
}

// Search runs the full pipeline for one query. Validation failures and
// total fan-out failure are returned to the caller; a single failing
// strategy is dropped from the merge.
func (e *Engine) Search(ctx context.Context, query *moment.Query, sc *moment.SearchContext) (*moment.SearchResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	result, cacheHit, err := e.search(ctx, query, sc)
	latencyMs := time.Since(start).Milliseconds()
	e.stats.Record(query.Term, latencyMs, err != nil)

	if err != nil {
		log.Error("search failed", "term", query.Term, "error", err)
		e.observe("error", cacheHit, latencyMs, 0)
		e.track(analytics.SearchEvent{
			Type:      analytics.EventError,
			Term:      query.Term,
			LatencyMs: latencyMs,
			Error:     err.Error(),
			UserID:    userID(sc),
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestIDFromContext(ctx),
		})
		return nil, err
	}

	result.SearchTimeMs = latencyMs
	outcome := "ok"
	eventType := analytics.EventCacheMiss
	if cacheHit {
		eventType = analytics.EventCacheHit
	}
	if result.Total == 0 {
		outcome = "zero_result"
	}
	e.observe(outcome, cacheHit, latencyMs, len(result.Moments))
	e.track(analytics.SearchEvent{
		Type:      eventType,
		Term:      query.Term,
		Total:     result.Total,
		Returned:  len(result.Moments),
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		UserID:    userID(sc),
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestIDFromContext(ctx),
	})

	log.Info("search completed",
		"term", query.Term,
		"total", result.Total,
		"returned", len(result.Moments),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	return result, nil
}

func (e *Engine) search(ctx context.Context, query *moment.Query, sc *moment.SearchContext) (*moment.SearchResult, bool, error) {
	if err := e.validateQuery(query); err != nil {
		return nil, false, err
	}

	normalized := e.normalizeQuery(query)

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, normalized); ok {
			e.stats.RecordCache(true)
			return cached, true, nil
		}
		e.stats.RecordCache(false)

		key := cache.Key(normalized)
		val, err, _ := e.group.Do(key, func() (interface{}, error) {
			if cached, ok := e.cache.Get(ctx, normalized); ok {
				return cached, nil
			}
			result, err := e.execute(ctx, query, normalized, sc)
			if err != nil {
				return nil, err
			}
			e.cache.Set(ctx, normalized, result)
			return result, nil
		})
		if err != nil {
			return nil, false, err
		}
		return val.(*moment.SearchResult), false, nil
	}

	result, err := e.execute(ctx, query, normalized, sc)
	return result, false, err
}

// execute runs fan-out, merge, filter, rank, and pagination for a validated
// query. normalized carries the merged filters and clamped pagination.
func (e *Engine) execute(ctx context.Context, raw *moment.Query, normalized *moment.Query, sc *moment.SearchContext) (*moment.SearchResult, error) {
	selected := e.selectStrategies(normalized)
	settled, err := e.fanOut(ctx, selected, normalized, sc)
	if err != nil {
		return nil, err
	}

	combined := combineResults(settled)
	filtered := e.filters.Apply(combined, normalized.Filters, sc)
	ranked := e.ranker.Rank(filtered, sc)

	total := len(ranked)
	limit := normalized.Pagination.Limit
	offset := normalized.Pagination.Offset
	var page []*moment.Moment
	switch {
	case offset >= total:
	case offset+limit < total:
		page = ranked[offset : offset+limit]
	default:
		page = ranked[offset:]
	}

	return &moment.SearchResult{
		Moments:        page,
		Total:          total,
		Page:           offset/limit + 1,
		Limit:          limit,
		TotalPages:     int(math.Ceil(float64(total) / float64(limit))),
		Suggestions:    Suggestions(raw.Term, e.cfg.SuggestionCount),
		AppliedFilters: normalized.Filters.Clone(),
	}, nil
}

type settledResult struct {
	name    string
	results []*moment.Moment
	err     error
}

// fanOut launches every selected strategy, each under its own deadline, and
// settles all of them. Validation errors propagate; retrieval failures are
// dropped unless every launched strategy failed.
func (e *Engine) fanOut(ctx context.Context, selected []strategy.Strategy, query *moment.Query, sc *moment.SearchContext) ([]settledResult, error) {
	settled := make([]settledResult, len(selected))

	run := func(idx int, st strategy.Strategy) {
		start := time.Now()
		var results []*moment.Moment
		err := resilience.WithTimeout(ctx, e.cfg.Timeout, st.Name(), func(ctx context.Context) error {
			var innerErr error
			results, innerErr = st.Search(ctx, query, sc)
			return innerErr
		})
		settled[idx] = settledResult{name: st.Name(), results: results, err: err}
		if e.metrics != nil {
			e.metrics.StrategyLatency.WithLabelValues(st.Name()).Observe(time.Since(start).Seconds())
			if err != nil {
				e.metrics.StrategyFailures.WithLabelValues(st.Name()).Inc()
			}
		}
	}

	if e.cfg.EnableParallelSearch {
		var wg sync.WaitGroup
		for i, st := range selected {
			wg.Add(1)
			go func(idx int, st strategy.Strategy) {
				defer wg.Done()
				run(idx, st)
			}(i, st)
		}
		wg.Wait()
	} else {
		for i, st := range selected {
			run(i, st)
		}
	}

	failures := 0
	var lastErr error
	for _, sr := range settled {
		if sr.err == nil {
			continue
		}
		if isValidationError(sr.err) {
			return nil, sr.err
		}
		e.logger.Error("strategy failed, dropping from merge", "strategy", sr.name, "error", sr.err)
		failures++
		lastErr = sr.err
	}
	if failures == len(selected) && len(selected) > 0 {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrAllSearchesFailed, lastErr)
	}
	return settled, nil
}

// combineResults concatenates strategy outputs in strategy-declaration order
// and deduplicates by moment ID. Each strategy scores only its own breakdown
// dimension, so a later duplicate is folded into the kept instance instead of
// being discarded: a location copy contributes proximity and distance, a
// hashtag copy its textual score. Rank re-fuses afterwards.
func combineResults(settled []settledResult) []*moment.Moment {
	seen := make(map[string]*moment.Moment)
	var out []*moment.Moment
	for _, sr := range settled {
		if sr.err != nil {
			continue
		}
		for _, m := range sr.results {
			if kept, ok := seen[m.ID]; ok {
				mergeDimensions(kept, m)
				continue
			}
			seen[m.ID] = m
			out = append(out, m)
		}
	}
	return out
}

func mergeDimensions(kept, dup *moment.Moment) {
	if dup.Relevance.Breakdown.Textual > kept.Relevance.Breakdown.Textual {
		kept.Relevance.Breakdown.Textual = dup.Relevance.Breakdown.Textual
	}
	if dup.Relevance.Breakdown.Proximity > kept.Relevance.Breakdown.Proximity {
		kept.Relevance.Breakdown.Proximity = dup.Relevance.Breakdown.Proximity
	}
	if kept.DistanceKm == nil && dup.DistanceKm != nil {
		kept.DistanceKm = dup.DistanceKm
	}
}

func (e *Engine) validateQuery(query *moment.Query) error {
	term := strings.TrimSpace(query.Term)
	if term == "" {
		return pkgerrors.New(pkgerrors.ErrInvalidTerm, 400, "search term is empty")
	}
	if len(term) < e.cfg.MinTermLength || len(term) > e.cfg.MaxTermLength {
		return pkgerrors.Newf(pkgerrors.ErrInvalidTerm, 400,
			"term length %d outside bounds [%d, %d]", len(term), e.cfg.MinTermLength, e.cfg.MaxTermLength)
	}
	if query.Pagination.Limit > e.cfg.MaxResults {
		return pkgerrors.Newf(pkgerrors.ErrLimitExceeded, 400,
			"limit %d exceeds maximum %d", query.Pagination.Limit, e.cfg.MaxResults)
	}
	return nil
}

// normalizeQuery clamps pagination and merges caller filters over the
// configured defaults. The result is what cache keys are derived from.
func (e *Engine) normalizeQuery(query *moment.Query) *moment.Query {
	normalized := *query
	if normalized.Pagination.Limit <= 0 {
		normalized.Pagination.Limit = e.cfg.DefaultLimit
	}
	if normalized.Pagination.Offset < 0 {
		normalized.Pagination.Offset = 0
	}
	normalized.Filters = e.mergeFilters(query.Filters)
	return &normalized
}

// mergeFilters shallow-merges caller filters over platform defaults; the
// caller wins per field.
func (e *Engine) mergeFilters(f *moment.Filters) *moment.Filters {
	merged := e.defaultFilters()
	if f == nil {
		return merged
	}
	if len(f.Statuses) > 0 {
		merged.Statuses = f.Statuses
	}
	if len(f.Visibilities) > 0 {
		merged.Visibilities = f.Visibilities
	}
	if f.DateFrom != nil {
		merged.DateFrom = f.DateFrom
	}
	if f.DateTo != nil {
		merged.DateTo = f.DateTo
	}
	if f.Location != nil {
		merged.Location = f.Location
	}
	if f.OwnerID != "" {
		merged.OwnerID = f.OwnerID
	}
	if f.ExcludeOwnerID != "" {
		merged.ExcludeOwnerID = f.ExcludeOwnerID
	}
	if f.MinLikes != nil {
		merged.MinLikes = f.MinLikes
	}
	if f.MinViews != nil {
		merged.MinViews = f.MinViews
	}
	if f.MinComments != nil {
		merged.MinComments = f.MinComments
	}
	if len(f.Hashtags) > 0 {
		merged.Hashtags = f.Hashtags
	}
	if len(f.ExcludeHashtags) > 0 {
		merged.ExcludeHashtags = f.ExcludeHashtags
	}
	if f.MinDuration != nil {
		merged.MinDuration = f.MinDuration
	}
	if f.MaxDuration != nil {
		merged.MaxDuration = f.MaxDuration
	}
	return merged
}

// defaultFilters builds the platform default filters. The default date floor
// is truncated to a day boundary so cache keys stay stable within a day.
func (e *Engine) defaultFilters() *moment.Filters {
	df := e.cfg.DefaultFilters
	merged := &moment.Filters{}
	for _, s := range df.Statuses {
		merged.Statuses = append(merged.Statuses, moment.Status(s))
	}
	for _, v := range df.Visibilities {
		merged.Visibilities = append(merged.Visibilities, moment.Visibility(v))
	}
	if df.MaxAge > 0 {
		from := time.Now().UTC().Add(-df.MaxAge).Truncate(24 * time.Hour)
		merged.DateFrom = &from
	}
	return merged
}

// selectStrategies picks which strategies to launch: text always, location
// iff a geo filter is set, hashtag iff the term embeds a hashtag or filter
// hashtags are set.
func (e *Engine) selectStrategies(query *moment.Query) []strategy.Strategy {
	selected := make([]strategy.Strategy, 0, len(e.strategies))
	for _, st := range e.strategies {
		switch st.Name() {
		case "location":
			if query.Filters == nil || query.Filters.Location == nil {
				continue
			}
		case "hashtag":
			hasFilterTags := query.Filters != nil && len(query.Filters.Hashtags) > 0
			if !strategy.ContainsHashtag(query.Term) && !hasFilterTags {
				continue
			}
		}
		selected = append(selected, st)
	}
	return selected
}

func isValidationError(err error) bool {
	return errors.Is(err, pkgerrors.ErrInvalidTerm) ||
		errors.Is(err, pkgerrors.ErrInvalidHashtags) ||
		errors.Is(err, pkgerrors.ErrInvalidLocation) ||
		errors.Is(err, pkgerrors.ErrLimitExceeded)
}

func (e *Engine) observe(outcome string, cacheHit bool, latencyMs int64, returned int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	if outcome != "error" {
		if cacheHit {
			e.metrics.CacheHitsTotal.Inc()
		} else {
			e.metrics.CacheMissesTotal.Inc()
		}
	}
	e.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(float64(latencyMs) / 1000)
	e.metrics.SearchResultsCount.Observe(float64(returned))
}

func (e *Engine) track(event analytics.SearchEvent) {
	if e.collector == nil {
		return
	}
	e.collector.Track(event)
}

func userID(sc *moment.SearchContext) string {
	if sc == nil {
		return ""
	}
	return sc.UserID
}
