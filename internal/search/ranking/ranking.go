// Package ranking computes the engagement, recency, and quality relevance
// sub-scores and fuses all dimensions into the final ordering.
package ranking

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/pkg/config"
)

// Normalization caps for the engagement sub-score.
const (
	viewsCap    = 10000.0
	likesCap    = 1000.0
	commentsCap = 500.0
	sharesCap   = 200.0
)

// Engine scores and orders search results.
type Engine struct {
	weights config.RankingWeights
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a ranking Engine with the given fusion weights.
func New(weights config.RankingWeights) *Engine {
	return &Engine{
		weights: weights,
		logger:  slog.Default().With("component", "ranking-engine"),
		now:     time.Now,
	}
}

// Rank recomputes the engagement, recency, and quality sub-scores of every
// result, fuses the final score, and sorts descending. Equal scores break
// ties by moment ID ascending, keeping the order deterministic.
func (e *Engine) Rank(results []*moment.Moment, sc *moment.SearchContext) []*moment.Moment {
	now := e.now()
	for _, m := range results {
		m.Relevance.Breakdown.Engagement = EngagementScore(m.Metrics)
		m.Relevance.Breakdown.Recency = RecencyScore(m.CreatedAt, m.UpdatedAt, now)
		m.Relevance.Breakdown.Quality = QualityScore(m)
		m.Relevance.Score = e.Fuse(m.Relevance.Breakdown, m.DistanceKm != nil)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance.Score != results[j].Relevance.Score {
			return results[i].Relevance.Score > results[j].Relevance.Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// Fuse combines the sub-scores into one score via the configured weighted
// sum. The proximity dimension participates only for results the location
// strategy actually scored (hasDistance); for all others the proximity slot
// is dead weight and is left out of the sum.
func (e *Engine) Fuse(b moment.Breakdown, hasDistance bool) float64 {
	score := b.Textual*e.weights.Textual +
		b.Engagement*e.weights.Engagement +
		b.Recency*e.weights.Recency +
		b.Quality*e.weights.Quality
	if hasDistance {
		score += b.Proximity * e.weights.Proximity
	}
	return clip(score)
}

// EngagementScore is the min-max-normalized weighted engagement sub-score,
// boosted by the engagement rate and clipped to [0, 1].
func EngagementScore(m moment.EngagementMetrics) float64 {
	base := 0.3*math.Min(float64(m.Views)/viewsCap, 1) +
		0.4*math.Min(float64(m.Likes)/likesCap, 1) +
		0.2*math.Min(float64(m.Comments)/commentsCap, 1) +
		0.1*math.Min(float64(m.Shares)/sharesCap, 1)

	var rate float64
	if m.Views > 0 {
		rate = float64(m.Likes+m.Comments+m.Shares) / float64(m.Views)
	}
	return clip(base * (1 + 0.5*rate))
}

// RecencyScore buckets the result age, measured from the later of creation
// and last update. Bucket boundaries are inclusive.
func RecencyScore(createdAt, updatedAt time.Time, now time.Time) float64 {
	newest := createdAt
	if updatedAt.After(newest) {
		newest = updatedAt
	}
	age := now.Sub(newest).Hours()
	switch {
	case age <= 1:
		return 1.0
	case age <= 24:
		return 0.9
	case age <= 168:
		return 0.7
	case age <= 720:
		return 0.5
	case age <= 2160:
		return 0.3
	default:
		return 0.1
	}
}

// QualityScore is a heuristic content-quality sub-score built from metadata
// completeness, halved for unpublished moments.
func QualityScore(m *moment.Moment) float64 {
	score := 0.5
	if len(m.Title) > 10 {
		score += 0.1
	}
	if len(m.Description) > 50 {
		score += 0.1
	}
	score += math.Min(0.2, 0.05*float64(len(m.Hashtags)))
	if m.Location != nil {
		score += 0.1
	}
	if m.Media.DurationSeconds > 30 {
		score += 0.1
	}
	if m.Status != moment.StatusPublished {
		score *= 0.5
	}
	return clip(score)
}

// ContextBoost is a personalization multiplier in [0, 2] available to
// callers on top of the fused score. It is not part of score fusion.
func ContextBoost(m *moment.Moment, sc *moment.SearchContext) float64 {
	boost := 1.0
	if sc == nil {
		return boost
	}
	for _, interest := range sc.Interests {
		if m.HasHashtag(strings.TrimPrefix(interest, "#")) {
			boost += 0.1
		}
	}
	for _, blocked := range sc.Blocked {
		if m.OwnerID == blocked {
			boost *= 0.1
		}
	}
	for _, muted := range sc.Muted {
		if m.OwnerID == muted {
			boost *= 0.3
		}
	}
	if boost < 0 {
		boost = 0
	}
	if boost > 2.0 {
		boost = 2.0
	}
	return boost
}

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
