package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/store"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
)

func TestValidateLocation(t *testing.T) {
	s := NewLocationSearcher(store.NewMemoryIndex(), newTestRanker(), 100)
	tests := []struct {
		name    string
		filter  moment.GeoFilter
		wantErr bool
	}{
		{"valid", moment.GeoFilter{Latitude: -23.55, Longitude: -46.63, RadiusKm: 10}, false},
		{"max radius", moment.GeoFilter{Latitude: 0, Longitude: 0, RadiusKm: 100}, false},
		{"latitude out of range", moment.GeoFilter{Latitude: 91, Longitude: 0, RadiusKm: 10}, true},
		{"longitude out of range", moment.GeoFilter{Latitude: 0, Longitude: -181, RadiusKm: 10}, true},
		{"zero radius", moment.GeoFilter{Latitude: 0, Longitude: 0, RadiusKm: 0}, true},
		{"radius over max", moment.GeoFilter{Latitude: 0, Longitude: 0, RadiusKm: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateLocation(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLocation(%+v) err = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, pkgerrors.ErrInvalidLocation) {
				t.Errorf("error %v does not wrap ErrInvalidLocation", err)
			}
		})
	}
}

func TestProximityScore(t *testing.T) {
	tests := []struct {
		name        string
		distanceKm  float64
		radiusKm    float64
		hasLocation bool
		want        float64
	}{
		{"at the center", 0, 10, true, 1.0},
		{"inner tier boundary", 1, 10, true, 1.0},
		{"second tier", 2, 10, true, 0.8},
		{"second tier boundary", 3, 10, true, 0.8},
		{"third tier", 5, 10, true, 0.6},
		{"outer tier", 8, 10, true, 0.4},
		{"at the radius", 10, 10, true, 0.4},
		{"beyond the radius", 12, 10, true, 0},
		{"no location", 0, 10, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProximityScore(tt.distanceKm, tt.radiusKm, tt.hasLocation)
			if got != tt.want {
				t.Errorf("ProximityScore(%.1f, %.1f, %v) = %.2f, want %.2f",
					tt.distanceKm, tt.radiusKm, tt.hasLocation, got, tt.want)
			}
		})
	}
}

func TestLocationSearcherSearch(t *testing.T) {
	// Distances from the origin along the equator: ~0.11 km per 0.001 degrees
	// of longitude.
	idx := store.NewMemoryIndex(
		&moment.Moment{ID: "near", Location: &moment.Location{Latitude: 0, Longitude: 0.001}, Status: moment.StatusPublished},
		&moment.Moment{ID: "edge", Location: &moment.Location{Latitude: 0, Longitude: 0.08}, Status: moment.StatusPublished},
		&moment.Moment{ID: "far", Location: &moment.Location{Latitude: 0, Longitude: 1}, Status: moment.StatusPublished},
		&moment.Moment{ID: "nowhere", Status: moment.StatusPublished},
	)
	s := NewLocationSearcher(idx, newTestRanker(), 100)

	t.Run("no geo filter is a quiet no-op", func(t *testing.T) {
		results, err := s.Search(context.Background(), &moment.Query{Term: "x"}, nil)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if results != nil {
			t.Errorf("Search() = %v, want nil", resultIDs(results))
		}
	})

	t.Run("scores and cuts by radius", func(t *testing.T) {
		query := &moment.Query{
			Term: "x",
			Filters: &moment.Filters{
				Location: &moment.GeoFilter{Latitude: 0, Longitude: 0, RadiusKm: 10},
			},
		}
		results, err := s.Search(context.Background(), query, nil)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got := resultIDs(results); len(got) != 2 || got[0] != "near" || got[1] != "edge" {
			t.Fatalf("Search() = %v, want [near edge]", got)
		}
		for _, m := range results {
			if m.DistanceKm == nil {
				t.Fatalf("moment %s missing distance", m.ID)
			}
		}
		if got := results[0].Relevance.Breakdown.Proximity; got != 1.0 {
			t.Errorf("near proximity = %.2f, want 1.0", got)
		}
		// ~8.9 km of a 10 km radius lands in the outermost scored tier.
		if got := results[1].Relevance.Breakdown.Proximity; got != 0.4 {
			t.Errorf("edge proximity = %.2f, want 0.4", got)
		}
	})

	t.Run("invalid filter propagates", func(t *testing.T) {
		query := &moment.Query{
			Term: "x",
			Filters: &moment.Filters{
				Location: &moment.GeoFilter{Latitude: 123, Longitude: 0, RadiusKm: 10},
			},
		}
		_, err := s.Search(context.Background(), query, nil)
		if !errors.Is(err, pkgerrors.ErrInvalidLocation) {
			t.Fatalf("Search() error = %v, want ErrInvalidLocation", err)
		}
	})
}
