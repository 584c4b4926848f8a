// Package strategy implements the independent search strategies (free text,
// hashtag, geo proximity) fanned out by the moment search engine.
package strategy

import (
	"context"

	"github.com/pulsefeed/moment-search/internal/moment"
)

// Strategy is one independent retrieval-and-scoring path. Implementations
// receive an immutable query and context and return freshly constructed
// results; a strategy writes only its own dimension of the relevance
// breakdown.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query *moment.Query, sc *moment.SearchContext) ([]*moment.Moment, error)
}
