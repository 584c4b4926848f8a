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

var (
	hashtagPattern    = regexp.MustCompile(`#(\w+)`)
	disallowedRunes   = regexp.MustCompile(`[^\w\s#@]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// TextSearcher is the term-based relevance strategy.
type TextSearcher struct {
	index         store.Index
	ranker        *ranking.Engine
	minTermLength int
	maxTermLength int
	maxHashtags   int
	logger        *slog.Logger
}

// NewTextSearcher creates a TextSearcher with the given term bounds.
func NewTextSearcher(index store.Index, ranker *ranking.Engine, minTermLength, maxTermLength, maxHashtags int) *TextSearcher {
	if minTermLength <= 0 {
		minTermLength = 1
	}
	if maxTermLength <= 0 {
		maxTermLength = 100
	}
	if maxHashtags <= 0 {
		maxHashtags = 10
	}
	return &TextSearcher{
		index:         index,
		ranker:        ranker,
		minTermLength: minTermLength,
		maxTermLength: maxTermLength,
		maxHashtags:   maxHashtags,
		logger:        slog.Default().With("component", "text-searcher"),
	}
}

// Name identifies the strategy in merge order and logs.
func (s *TextSearcher) Name() string { return "text" }

// Search validates and normalizes the term, splits off embedded hashtags,
// retrieves candidates, and writes the textual relevance dimension.
func (s *TextSearcher) Search(ctx context.Context, query *moment.Query, sc *moment.SearchContext) ([]*moment.Moment, error) {
	if err := s.ValidateTerm(query.Term); err != nil {
		return nil, err
	}
	term, hashtags := s.ParseTerm(query.Term)

	candidates, err := s.index.SearchText(ctx, store.TextParams{Term: term, Hashtags: hashtags})
	if err != nil {
		return nil, fmt.Errorf("text retrieval: %w", err)
	}

	for _, m := range candidates {
		m.Relevance.Breakdown.Textual = TextualScore(term, hashtags, m)
		m.Relevance.Score = s.ranker.Fuse(m.Relevance.Breakdown, m.DistanceKm != nil)
	}
	s.logger.Debug("text search done", "term", term, "hashtags", hashtags, "candidates", len(candidates))
	return candidates, nil
}

// ValidateTerm rejects empty terms and terms outside the configured length
// bounds.
func (s *TextSearcher) ValidateTerm(term string) error {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.ErrInvalidTerm, 400, "search term is empty")
	}
	if len(trimmed) < s.minTermLength || len(trimmed) > s.maxTermLength {
		return pkgerrors.Newf(pkgerrors.ErrInvalidTerm, 400,
			"term length %d outside bounds [%d, %d]", len(trimmed), s.minTermLength, s.maxTermLength)
	}
	return nil
}

// ParseTerm normalizes the raw term and extracts up to maxHashtags embedded
// hashtags, stripping them from the residual text term.
func (s *TextSearcher) ParseTerm(raw string) (term string, hashtags []string) {
	normalized := NormalizeTerm(raw)
	for _, match := range hashtagPattern.FindAllStringSubmatch(normalized, -1) {
		if len(hashtags) >= s.maxHashtags {
			break
		}
		hashtags = append(hashtags, match[1])
	}
	term = hashtagPattern.ReplaceAllString(normalized, "")
	term = strings.TrimSpace(whitespacePattern.ReplaceAllString(term, " "))
	return term, hashtags
}

// ContainsHashtag reports whether the raw term embeds at least one hashtag.
func ContainsHashtag(raw string) bool {
	return hashtagPattern.MatchString(raw)
}

// NormalizeTerm trims, lowercases, collapses internal whitespace, and strips
// every character except word characters, whitespace, '#', and '@'.
func NormalizeTerm(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = disallowedRunes.ReplaceAllString(t, "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(t, " "))
}

// TextualScore is the weighted field-match relevance of a candidate against
// the residual term and queried hashtags, clipped to 1.0.
func TextualScore(term string, hashtags []string, m *moment.Moment) float64 {
	score := 0.4*matchText(term, m.Title) +
		0.3*matchText(term, m.Description) +
		0.3*matchHashtags(hashtags, m)
	if score > 1 {
		score = 1
	}
	return score
}

// matchText returns 1.0 for a full substring match, otherwise the fraction
// of term words that appear (as substring, either direction) among the
// field's words.
func matchText(term, field string) float64 {
	if term == "" || field == "" {
		return 0
	}
	fieldLower := strings.ToLower(field)
	if strings.Contains(fieldLower, term) {
		return 1.0
	}
	termWords := strings.Fields(term)
	if len(termWords) == 0 {
		return 0
	}
	fieldWords := strings.Fields(fieldLower)
	matched := 0
	for _, tw := range termWords {
		for _, fw := range fieldWords {
			if strings.Contains(fw, tw) || strings.Contains(tw, fw) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(termWords))
}

// matchHashtags returns the fraction of queried hashtags present in the
// candidate's hashtag set, or 0 when none were queried.
func matchHashtags(hashtags []string, m *moment.Moment) float64 {
	if len(hashtags) == 0 {
		return 0
	}
	matched := 0
	for _, tag := range hashtags {
		if m.HasHashtag(tag) {
			matched++
		}
	}
	return float64(matched) / float64(len(hashtags))
}
