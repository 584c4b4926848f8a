package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/ranking"
	"github.com/pulsefeed/moment-search/internal/store"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
)

var hashtagFormat = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// popularHashtags is the fixed popularity list used for the relevance bonus.
var popularHashtags = map[string]struct{}{
	"love":          {},
	"instagood":     {},
	"photooftheday": {},
	"beautiful":     {},
	"happy":         {},
	"travel":        {},
	"nature":        {},
	"music":         {},
	"food":          {},
	"vlog":          {},
}

// HashtagSearcher is the hashtag-set relevance strategy.
type HashtagSearcher struct {
	index       store.Index
	ranker      *ranking.Engine
	maxHashtags int
	logger      *slog.Logger
}

// NewHashtagSearcher creates a HashtagSearcher.
func NewHashtagSearcher(index store.Index, ranker *ranking.Engine, maxHashtags int) *HashtagSearcher {
	if maxHashtags <= 0 {
		maxHashtags = 10
	}
	return &HashtagSearcher{
		index:       index,
		ranker:      ranker,
		maxHashtags: maxHashtags,
		logger:      slog.Default().With("component", "hashtag-searcher"),
	}
}

// Name identifies the strategy in merge order and logs.
func (s *HashtagSearcher) Name() string { return "hashtag" }

// Search unions hashtags embedded in the term with filter hashtags,
// validates the set, retrieves candidates, and writes the textual relevance
// slot (hashtag relevance supersedes the text dimension when active).
func (s *HashtagSearcher) Search(ctx context.Context, query *moment.Query, sc *moment.SearchContext) ([]*moment.Moment, error) {
	hashtags := s.collectHashtags(query)
	if len(hashtags) == 0 {
		return nil, nil
	}
	if err := s.ValidateHashtags(hashtags); err != nil {
		return nil, err
	}

	var exclude []string
	if query.Filters != nil {
		exclude = query.Filters.ExcludeHashtags
	}
	candidates, err := s.index.SearchHashtags(ctx, store.HashtagParams{
		Hashtags:        hashtags,
		ExcludeHashtags: exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("hashtag retrieval: %w", err)
	}

	filtered := candidates[:0]
	for _, m := range candidates {
		if containsAnyHashtag(m, exclude) {
			continue
		}
		m.Relevance.Breakdown.Textual = HashtagScore(hashtags, m)
		m.Relevance.Score = s.ranker.Fuse(m.Relevance.Breakdown, m.DistanceKm != nil)
		filtered = append(filtered, m)
	}
	s.logger.Debug("hashtag search done", "hashtags", hashtags, "candidates", len(filtered))
	return filtered, nil
}

// ValidateHashtags rejects empty or oversized sets and malformed hashtags.
func (s *HashtagSearcher) ValidateHashtags(hashtags []string) error {
	if len(hashtags) == 0 || len(hashtags) > s.maxHashtags {
		return pkgerrors.Newf(pkgerrors.ErrInvalidHashtags, 400,
			"hashtag count %d outside bounds [1, %d]", len(hashtags), s.maxHashtags)
	}
	for _, tag := range hashtags {
		if !hashtagFormat.MatchString(tag) {
			return pkgerrors.Newf(pkgerrors.ErrInvalidHashtags, 400, "malformed hashtag %q", tag)
		}
	}
	return nil
}

// HashtagScore is the matched-fraction relevance plus a popularity bonus of
// 0.1 per queried hashtag found in the fixed popularity list, clipped to 1.0.
func HashtagScore(queried []string, m *moment.Moment) float64 {
	if len(queried) == 0 {
		return 0
	}
	matched := 0
	popular := 0
	for _, tag := range queried {
		if m.HasHashtag(tag) {
			matched++
		}
		if _, ok := popularHashtags[strings.ToLower(tag)]; ok {
			popular++
		}
	}
	score := float64(matched)/float64(len(queried)) + 0.1*float64(popular)
	if score > 1 {
		score = 1
	}
	return score
}

// collectHashtags unions the hashtags embedded in the term with the filter
// hashtag set, deduplicated case-insensitively.
func (s *HashtagSearcher) collectHashtags(query *moment.Query) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			return
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	for _, match := range hashtagPattern.FindAllStringSubmatch(strings.ToLower(query.Term), -1) {
		add(match[1])
	}
	if query.Filters != nil {
		for _, tag := range query.Filters.Hashtags {
			add(tag)
		}
	}
	return out
}

func containsAnyHashtag(m *moment.Moment, tags []string) bool {
	for _, tag := range tags {
		if m.HasHashtag(tag) {
			return true
		}
	}
	return false
}
