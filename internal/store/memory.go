package store

import (
	"context"
	"strings"
	"sync"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/pkg/geo"
)

// MemoryIndex is an in-memory Index for development and tests. Matching is
// deliberately loose: strategies re-score and re-cut candidates themselves.
type MemoryIndex struct {
	mu      sync.RWMutex
	moments []*moment.Moment
}

// NewMemoryIndex creates a MemoryIndex seeded with the given moments.
func NewMemoryIndex(moments ...*moment.Moment) *MemoryIndex {
	idx := &MemoryIndex{}
	idx.Add(moments...)
	return idx
}

// Add inserts moments into the index.
func (idx *MemoryIndex) Add(moments ...*moment.Moment) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.moments = append(idx.moments, moments...)
}

// Len returns the number of indexed moments.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.moments)
}

// SearchText returns moments whose title, description, or hashtags contain
// any word of the term, or any of the given hashtags.
func (idx *MemoryIndex) SearchText(ctx context.Context, params TextParams) ([]*moment.Moment, error) {
	words := strings.Fields(strings.ToLower(params.Term))
	return idx.collect(ctx, func(m *moment.Moment) bool {
		for _, tag := range params.Hashtags {
			if m.HasHashtag(tag) {
				return true
			}
		}
		if len(words) == 0 {
			return len(params.Hashtags) == 0
		}
		haystack := strings.ToLower(m.Title + " " + m.Description)
		for _, w := range words {
			if strings.Contains(haystack, w) {
				return true
			}
		}
		return false
	})
}

// SearchHashtags returns moments carrying at least one requested hashtag and
// none of the excluded ones.
func (idx *MemoryIndex) SearchHashtags(ctx context.Context, params HashtagParams) ([]*moment.Moment, error) {
	return idx.collect(ctx, func(m *moment.Moment) bool {
		for _, tag := range params.ExcludeHashtags {
			if m.HasHashtag(tag) {
				return false
			}
		}
		for _, tag := range params.Hashtags {
			if m.HasHashtag(tag) {
				return true
			}
		}
		return false
	})
}

// SearchNear returns located moments within the search radius.
func (idx *MemoryIndex) SearchNear(ctx context.Context, params GeoParams) ([]*moment.Moment, error) {
	return idx.collect(ctx, func(m *moment.Moment) bool {
		if m.Location == nil {
			return false
		}
		return geo.Distance(params.Center, m.Location.Point()) <= params.RadiusKm
	})
}

func (idx *MemoryIndex) collect(ctx context.Context, match func(*moment.Moment) bool) ([]*moment.Moment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []*moment.Moment
	for _, m := range idx.moments {
		if match(m) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}
