package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pulsefeed/moment-search/internal/moment"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
	"github.com/pulsefeed/moment-search/pkg/resilience"
)

// GuardedIndex wraps an Index with a circuit breaker so a struggling
// retrieval backend sheds load instead of stalling every search request.
type GuardedIndex struct {
	inner   Index
	breaker *resilience.CircuitBreaker
}

// NewGuardedIndex wraps idx with a circuit breaker using the given config.
func NewGuardedIndex(idx Index, cfg resilience.CircuitBreakerConfig) *GuardedIndex {
	return &GuardedIndex{
		inner:   idx,
		breaker: resilience.NewCircuitBreaker("moment-index", cfg),
	}
}

// State exposes the breaker state for health checks and metrics.
func (g *GuardedIndex) State() resilience.State {
	return g.breaker.GetState()
}

func (g *GuardedIndex) SearchText(ctx context.Context, params TextParams) ([]*moment.Moment, error) {
	return g.execute(ctx, func(ctx context.Context) ([]*moment.Moment, error) {
		return g.inner.SearchText(ctx, params)
	})
}

func (g *GuardedIndex) SearchHashtags(ctx context.Context, params HashtagParams) ([]*moment.Moment, error) {
	return g.execute(ctx, func(ctx context.Context) ([]*moment.Moment, error) {
		return g.inner.SearchHashtags(ctx, params)
	})
}

func (g *GuardedIndex) SearchNear(ctx context.Context, params GeoParams) ([]*moment.Moment, error) {
	return g.execute(ctx, func(ctx context.Context) ([]*moment.Moment, error) {
		return g.inner.SearchNear(ctx, params)
	})
}

func (g *GuardedIndex) execute(ctx context.Context, fn func(ctx context.Context) ([]*moment.Moment, error)) ([]*moment.Moment, error) {
	var results []*moment.Moment
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		results, innerErr = fn(ctx)
		return innerErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrIndexUnavailable, err)
	}
	return results, err
}
