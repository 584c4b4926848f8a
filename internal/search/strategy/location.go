package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/ranking"
	"github.com/pulsefeed/moment-search/internal/store"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
	"github.com/pulsefeed/moment-search/pkg/geo"
)

// LocationSearcher is the geo-proximity relevance strategy.
type LocationSearcher struct {
	index       store.Index
	ranker      *ranking.Engine
	maxRadiusKm float64
	logger      *slog.Logger
}

// NewLocationSearcher creates a LocationSearcher with the given maximum
// search radius.
func NewLocationSearcher(index store.Index, ranker *ranking.Engine, maxRadiusKm float64) *LocationSearcher {
	if maxRadiusKm <= 0 {
		maxRadiusKm = 100
	}
	return &LocationSearcher{
		index:       index,
		ranker:      ranker,
		maxRadiusKm: maxRadiusKm,
		logger:      slog.Default().With("component", "location-searcher"),
	}
}

// Name identifies the strategy in merge order and logs.
func (s *LocationSearcher) Name() string { return "location" }

// Search is a no-op without a geo filter. Otherwise it validates the filter,
// retrieves candidates near the center, scores proximity, and drops
// candidates beyond the radius after scoring.
func (s *LocationSearcher) Search(ctx context.Context, query *moment.Query, sc *moment.SearchContext) ([]*moment.Moment, error) {
	if query.Filters == nil || query.Filters.Location == nil {
		return nil, nil
	}
	gf := query.Filters.Location
	if err := s.ValidateLocation(*gf); err != nil {
		return nil, err
	}

	candidates, err := s.index.SearchNear(ctx, store.GeoParams{
		Center:   gf.Center(),
		RadiusKm: gf.RadiusKm,
	})
	if err != nil {
		return nil, fmt.Errorf("geo retrieval: %w", err)
	}

	within := candidates[:0]
	for _, m := range candidates {
		var distance float64
		if m.Location != nil {
			distance = geo.Distance(gf.Center(), m.Location.Point())
			d := distance
			m.DistanceKm = &d
		}
		m.Relevance.Breakdown.Proximity = ProximityScore(distance, gf.RadiusKm, m.Location != nil)
		m.Relevance.Score = s.ranker.Fuse(m.Relevance.Breakdown, m.DistanceKm != nil)
		// Hard cut after scoring so the same distance computation is reused.
		if m.Location == nil || distance > gf.RadiusKm {
			continue
		}
		within = append(within, m)
	}
	s.logger.Debug("location search done",
		"lat", gf.Latitude, "lon", gf.Longitude, "radius_km", gf.RadiusKm,
		"candidates", len(within),
	)
	return within, nil
}

// ValidateLocation rejects out-of-range coordinates and radii.
func (s *LocationSearcher) ValidateLocation(gf moment.GeoFilter) error {
	if !geo.ValidLatitude(gf.Latitude) || !geo.ValidLongitude(gf.Longitude) {
		return pkgerrors.Newf(pkgerrors.ErrInvalidLocation, 400,
			"coordinates (%.4f, %.4f) out of range", gf.Latitude, gf.Longitude)
	}
	if gf.RadiusKm <= 0 || gf.RadiusKm > s.maxRadiusKm {
		return pkgerrors.Newf(pkgerrors.ErrInvalidLocation, 400,
			"radius %.1f km outside bounds (0, %.1f]", gf.RadiusKm, s.maxRadiusKm)
	}
	return nil
}

// ProximityScore tiers the proximity sub-score by the fraction of the search
// radius the candidate sits at. A candidate with no location scores 0.
func ProximityScore(distanceKm, radiusKm float64, hasLocation bool) float64 {
	if !hasLocation || radiusKm <= 0 {
		return 0
	}
	fraction := distanceKm / radiusKm
	switch {
	case fraction <= 0.1:
		return 1.0
	case fraction <= 0.3:
		return 0.8
	case fraction <= 0.6:
		return 0.6
	case fraction <= 1.0:
		return 0.4
	default:
		return 0
	}
}
