// Package moment defines the search-facing domain model: candidate moment
// documents, queries, filters, the acting-user context, and the result
// envelope returned to callers.
package moment

import (
	"strings"
	"time"

	"github.com/pulsefeed/moment-search/pkg/geo"
)

// Status is the moderation lifecycle state of a moment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusRemoved   Status = "removed"
)

// Visibility controls who may see a moment.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// Location is a named coordinate attached to a moment.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

// Point converts the location to a geo.Point.
func (l Location) Point() geo.Point {
	return geo.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// EngagementMetrics holds the interaction counters of a moment.
type EngagementMetrics struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// Media describes the moment's attached media.
type Media struct {
	Type            string `json:"type"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Breakdown holds the per-dimension relevance sub-scores, each in [0, 1].
// Each search strategy writes only its own dimension.
type Breakdown struct {
	Textual    float64 `json:"textual"`
	Engagement float64 `json:"engagement"`
	Recency    float64 `json:"recency"`
	Quality    float64 `json:"quality"`
	Proximity  float64 `json:"proximity"`
}

// Relevance is the fused score plus its per-dimension breakdown.
type Relevance struct {
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Moment is a candidate document returned by the retrieval index and flowed
// through filtering and ranking.
type Moment struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Hashtags    []string          `json:"hashtags"`
	OwnerID     string            `json:"ownerId"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Status      Status            `json:"status"`
	Visibility  Visibility        `json:"visibility"`
	Location    *Location         `json:"location,omitempty"`
	Metrics     EngagementMetrics `json:"metrics"`
	Media       Media             `json:"media"`
	Relevance   Relevance         `json:"relevance"`

	// DistanceKm is attached only by the location strategy.
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// Clone returns a deep copy so per-request scoring never mutates shared
// store data.
func (m *Moment) Clone() *Moment {
	cp := *m
	if m.Hashtags != nil {
		cp.Hashtags = make([]string, len(m.Hashtags))
		copy(cp.Hashtags, m.Hashtags)
	}
	if m.Location != nil {
		loc := *m.Location
		cp.Location = &loc
	}
	if m.DistanceKm != nil {
		d := *m.DistanceKm
		cp.DistanceKm = &d
	}
	return &cp
}

// HasHashtag reports whether the moment carries the given hashtag,
// case-insensitively.
func (m *Moment) HasHashtag(tag string) bool {
	for _, h := range m.Hashtags {
		if strings.EqualFold(h, tag) {
			return true
		}
	}
	return false
}
