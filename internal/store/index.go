// Package store defines the retrieval collaborator contract: per-strategy
// candidate lookups against a moment index, with in-memory and PostgreSQL
// implementations.
package store

import (
	"context"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/pkg/geo"
)

// TextParams are the inputs of a free-text candidate lookup.
type TextParams struct {
	Term     string
	Hashtags []string
}

// HashtagParams are the inputs of a hashtag candidate lookup.
type HashtagParams struct {
	Hashtags        []string
	ExcludeHashtags []string
}

// GeoParams are the inputs of a proximity candidate lookup.
type GeoParams struct {
	Center   geo.Point
	RadiusKm float64
}

// Index supplies candidate moments to the search strategies. Implementations
// must return fresh copies; callers mutate relevance fields per request.
type Index interface {
	SearchText(ctx context.Context, params TextParams) ([]*moment.Moment, error)
	SearchHashtags(ctx context.Context, params HashtagParams) ([]*moment.Moment, error)
	SearchNear(ctx context.Context, params GeoParams) ([]*moment.Moment, error)
}
