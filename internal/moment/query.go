package moment

import (
	"time"

	"github.com/pulsefeed/moment-search/pkg/geo"
)

// Query is one immutable search request.
type Query struct {
	Term       string     `json:"term"`
	Filters    *Filters   `json:"filters,omitempty"`
	Pagination Pagination `json:"pagination"`
	Sorting    string     `json:"sorting,omitempty"`
}

// Pagination selects the result window.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// GeoFilter restricts results to a radius around a coordinate.
type GeoFilter struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radiusKm"`
}

// Center returns the filter's coordinate as a geo.Point.
func (g GeoFilter) Center() geo.Point {
	return geo.Point{Latitude: g.Latitude, Longitude: g.Longitude}
}

// Filters are the declarative constraints of a query. Every field is
// optional; absence means no constraint.
type Filters struct {
	Statuses        []Status     `json:"statuses,omitempty"`
	Visibilities    []Visibility `json:"visibilities,omitempty"`
	DateFrom        *time.Time   `json:"dateFrom,omitempty"`
	DateTo          *time.Time   `json:"dateTo,omitempty"`
	Location        *GeoFilter   `json:"location,omitempty"`
	OwnerID         string       `json:"ownerId,omitempty"`
	ExcludeOwnerID  string       `json:"excludeOwnerId,omitempty"`
	MinLikes        *int64       `json:"minLikes,omitempty"`
	MinViews        *int64       `json:"minViews,omitempty"`
	MinComments     *int64       `json:"minComments,omitempty"`
	Hashtags        []string     `json:"hashtags,omitempty"`
	ExcludeHashtags []string     `json:"excludeHashtags,omitempty"`
	MinDuration     *int         `json:"minDuration,omitempty"`
	MaxDuration     *int         `json:"maxDuration,omitempty"`
}

// Clone returns a shallow-safe copy of the filters; slice fields are copied,
// pointer fields are shared (they are never mutated after construction).
func (f *Filters) Clone() *Filters {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Statuses = append([]Status(nil), f.Statuses...)
	cp.Visibilities = append([]Visibility(nil), f.Visibilities...)
	cp.Hashtags = append([]string(nil), f.Hashtags...)
	cp.ExcludeHashtags = append([]string(nil), f.ExcludeHashtags...)
	return &cp
}

// SearchContext carries the acting user's identity and preferences. It feeds
// visibility exceptions and personalization boosts, never filtering
// correctness.
type SearchContext struct {
	UserID    string     `json:"userId"`
	Location  *geo.Point `json:"location,omitempty"`
	Interests []string   `json:"interests,omitempty"`
	Blocked   []string   `json:"blocked,omitempty"`
	Muted     []string   `json:"muted,omitempty"`
	DeviceID  string     `json:"deviceId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
}

// SearchResult is the response envelope: one page of ranked moments plus
// request metadata.
type SearchResult struct {
	Moments        []*Moment `json:"moments"`
	Total          int       `json:"total"`
	Page           int       `json:"page"`
	Limit          int       `json:"limit"`
	TotalPages     int       `json:"totalPages"`
	SearchTimeMs   int64     `json:"searchTimeMs"`
	Suggestions    []string  `json:"suggestions,omitempty"`
	AppliedFilters *Filters  `json:"appliedFilters,omitempty"`
}
