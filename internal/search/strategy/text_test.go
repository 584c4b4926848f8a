package strategy

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/ranking"
	"github.com/pulsefeed/moment-search/internal/store"
	"github.com/pulsefeed/moment-search/pkg/config"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
)

func newTestRanker() *ranking.Engine {
	return ranking.New(config.RankingWeights{
		Textual:    0.4,
		Engagement: 0.25,
		Recency:    0.2,
		Quality:    0.1,
		Proximity:  0.05,
	})
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"lowercases and trims", "  Sunset Timelapse  ", "sunset timelapse"},
		{"collapses whitespace", "beach\t\n  day", "beach day"},
		{"strips punctuation", "what?! a (great) day...", "what a great day"},
		{"keeps hashtags and mentions", "clip #vlog @ana", "clip #vlog @ana"},
		{"strips non-ascii letters", "vídeo sobre praia", "vdeo sobre praia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTerm(tt.raw); got != tt.want {
				t.Errorf("NormalizeTerm(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTerm(t *testing.T) {
	s := NewTextSearcher(store.NewMemoryIndex(), newTestRanker(), 1, 100, 10)
	tests := []struct {
		name         string
		raw          string
		wantTerm     string
		wantHashtags []string
	}{
		{
			name:         "plain term",
			raw:          "sunset beach",
			wantTerm:     "sunset beach",
			wantHashtags: nil,
		},
		{
			name:         "embedded hashtags are split off",
			raw:          "vídeo sobre #vlog #lifestyle",
			wantTerm:     "vdeo sobre",
			wantHashtags: []string{"vlog", "lifestyle"},
		},
		{
			name:         "hashtags only",
			raw:          "#food #travel",
			wantTerm:     "",
			wantHashtags: []string{"food", "travel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, hashtags := s.ParseTerm(tt.raw)
			if term != tt.wantTerm {
				t.Errorf("term = %q, want %q", term, tt.wantTerm)
			}
			if !reflect.DeepEqual(hashtags, tt.wantHashtags) {
				t.Errorf("hashtags = %v, want %v", hashtags, tt.wantHashtags)
			}
		})
	}
}

func TestParseTermCapsHashtags(t *testing.T) {
	s := NewTextSearcher(store.NewMemoryIndex(), newTestRanker(), 1, 100, 3)
	_, hashtags := s.ParseTerm("#a #b #c #d #e")
	if len(hashtags) != 3 {
		t.Errorf("got %d hashtags, want capped at 3", len(hashtags))
	}
}

func TestValidateTerm(t *testing.T) {
	s := NewTextSearcher(store.NewMemoryIndex(), newTestRanker(), 3, 20, 10)
	tests := []struct {
		name    string
		term    string
		wantErr bool
	}{
		{"valid", "beach day", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("x", 21), true},
		{"at max length", strings.Repeat("x", 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateTerm(tt.term)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTerm(%q) err = %v, wantErr %v", tt.term, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, pkgerrors.ErrInvalidTerm) {
				t.Errorf("error %v does not wrap ErrInvalidTerm", err)
			}
		})
	}
}

func TestTextualScore(t *testing.T) {
	m := &moment.Moment{
		Title:       "sunset at the beach",
		Description: "calm evening by the sea",
		Hashtags:    []string{"sunset", "beach"},
	}
	tests := []struct {
		name     string
		term     string
		hashtags []string
		want     float64
	}{
		{
			name: "full title and description substring",
			term: "the",
			// title and description both contain "the" as a substring
			want: 0.7,
		},
		{
			name: "title-only substring",
			term: "sunset at",
			want: 0.4,
		},
		{
			name:     "hashtag match only",
			hashtags: []string{"sunset", "beach"},
			want:     0.3,
		},
		{
			name: "no match",
			term: "mountains",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TextualScore(tt.term, tt.hashtags, m)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("TextualScore(%q, %v) = %.4f, want %.4f", tt.term, tt.hashtags, got, tt.want)
			}
		})
	}
}

func TestContainsHashtag(t *testing.T) {
	if !ContainsHashtag("beach #sunset") {
		t.Error("expected hashtag to be detected")
	}
	if ContainsHashtag("beach sunset") {
		t.Error("expected no hashtag")
	}
}

func TestTextSearcherSearch(t *testing.T) {
	idx := store.NewMemoryIndex(
		&moment.Moment{ID: "m-1", Title: "sunset at the beach", Status: moment.StatusPublished},
		&moment.Moment{ID: "m-2", Title: "mountain hike", Status: moment.StatusPublished},
	)
	s := NewTextSearcher(idx, newTestRanker(), 1, 100, 10)

	results, err := s.Search(context.Background(), &moment.Query{Term: "sunset"}, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "m-1" {
		t.Fatalf("Search() = %v, want only m-1", resultIDs(results))
	}
	if got := results[0].Relevance.Breakdown.Textual; math.Abs(got-0.4) > 1e-9 {
		t.Errorf("textual score = %.4f, want 0.4 for a title-only match", got)
	}
}

func resultIDs(results []*moment.Moment) []string {
	ids := make([]string, len(results))
	for i, m := range results {
		ids[i] = m.ID
	}
	return ids
}
