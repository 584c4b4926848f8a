// Package filter applies declarative, order-independent predicates to a
// merged result set. Each predicate activates only when its filter field is
// present.
package filter

import (
	"log/slog"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/pkg/geo"
)

// predicate reports whether a moment passes one filter dimension.
type predicate func(m *moment.Moment, f *moment.Filters, sc *moment.SearchContext) bool

// predicates is the fixed pipeline; composition is pure and order does not
// affect the outcome.
var predicates = []predicate{
	matchStatus,
	matchVisibility,
	matchDateRange,
	matchOwner,
	matchMetrics,
	matchHashtags,
	matchDuration,
	matchLocation,
}

// Engine filters result sets against query filters.
type Engine struct {
	logger *slog.Logger
}

// New creates a filter Engine.
func New() *Engine {
	return &Engine{logger: slog.Default().With("component", "filter-engine")}
}

// Apply returns the subset of results passing every active predicate.
func (e *Engine) Apply(results []*moment.Moment, f *moment.Filters, sc *moment.SearchContext) []*moment.Moment {
	if f == nil {
		return results
	}
	out := make([]*moment.Moment, 0, len(results))
	for _, m := range results {
		if passes(m, f, sc) {
			out = append(out, m)
		}
	}
	e.logger.Debug("filters applied", "in", len(results), "out", len(out))
	return out
}

func passes(m *moment.Moment, f *moment.Filters, sc *moment.SearchContext) bool {
	for _, p := range predicates {
		if !p(m, f, sc) {
			return false
		}
	}
	return true
}

func matchStatus(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if m.Status == s {
			return true
		}
	}
	return false
}

// matchVisibility keeps moments whose visibility is in the requested set,
// with an owner bypass: the requesting user always sees their own moments.
func matchVisibility(m *moment.Moment, f *moment.Filters, sc *moment.SearchContext) bool {
	if len(f.Visibilities) == 0 {
		return true
	}
	if sc != nil && sc.UserID != "" && m.OwnerID == sc.UserID {
		return true
	}
	for _, v := range f.Visibilities {
		if m.Visibility == v {
			return true
		}
	}
	return false
}

func matchDateRange(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if f.DateFrom != nil && m.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && m.CreatedAt.After(*f.DateTo) {
		return false
	}
	return true
}

func matchOwner(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if f.OwnerID != "" && m.OwnerID != f.OwnerID {
		return false
	}
	if f.ExcludeOwnerID != "" && m.OwnerID == f.ExcludeOwnerID {
		return false
	}
	return true
}

func matchMetrics(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if f.MinLikes != nil && m.Metrics.Likes < *f.MinLikes {
		return false
	}
	if f.MinViews != nil && m.Metrics.Views < *f.MinViews {
		return false
	}
	if f.MinComments != nil && m.Metrics.Comments < *f.MinComments {
		return false
	}
	return true
}

func matchHashtags(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if len(f.Hashtags) > 0 {
		found := false
		for _, tag := range f.Hashtags {
			if m.HasHashtag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range f.ExcludeHashtags {
		if m.HasHashtag(tag) {
			return false
		}
	}
	return true
}

func matchDuration(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if f.MinDuration != nil && m.Media.DurationSeconds < *f.MinDuration {
		return false
	}
	if f.MaxDuration != nil && m.Media.DurationSeconds > *f.MaxDuration {
		return false
	}
	return true
}

func matchLocation(m *moment.Moment, f *moment.Filters, _ *moment.SearchContext) bool {
	if f.Location == nil {
		return true
	}
	if m.Location == nil {
		return false
	}
	return geo.Distance(f.Location.Center(), m.Location.Point()) <= f.Location.RadiusKm
}
