// Package handler exposes the search engine over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsefeed/moment-search/internal/analytics"
	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/internal/search/cache"
	"github.com/pulsefeed/moment-search/internal/search/engine"
	pkgerrors "github.com/pulsefeed/moment-search/pkg/errors"
	"github.com/pulsefeed/moment-search/pkg/geo"
	"github.com/pulsefeed/moment-search/pkg/logger"
)

// Handler serves the search API.
type Handler struct {
	engine     *engine.Engine
	cache      cache.Cache
	aggregator *analytics.Aggregator
	logger     *slog.Logger
}

// New creates a Handler; cache and aggregator may be nil when those
// subsystems are disabled.
func New(eng *engine.Engine, c cache.Cache, agg *analytics.Aggregator) *Handler {
	return &Handler{
		engine:     eng,
		cache:      c,
		aggregator: agg,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Register wires the handler's routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.handleSearch)
	mux.HandleFunc("GET /api/v1/search/stats", h.handleStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.handleCacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.handleCacheInvalidate)
	if h.aggregator != nil {
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(h.aggregator).Stats)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sc := parseSearchContext(r, query)

	result, err := h.engine.Search(r.Context(), query, sc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

func (h *Handler) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	if err := h.cache.Clear(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("cache invalidated", "request_id", logger.RequestIDFromContext(r.Context()))
	h.writeJSON(w, http.StatusOK, map[string]any{"invalidated": true})
}

// parseQuery builds a search query from URL parameters. Unknown parameters
// are ignored; malformed numeric or date parameters are a 400.
func parseQuery(r *http.Request) (*moment.Query, error) {
	q := r.URL.Query()
	query := &moment.Query{
		Term: q.Get("q"),
	}

	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		return nil, badParam("limit")
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		return nil, badParam("offset")
	}
	query.Pagination = moment.Pagination{Limit: limit, Offset: offset}

	filters := &moment.Filters{
		OwnerID:        q.Get("owner_id"),
		ExcludeOwnerID: q.Get("exclude_owner_id"),
	}
	for _, s := range csvParam(q.Get("status")) {
		filters.Statuses = append(filters.Statuses, moment.Status(s))
	}
	for _, v := range csvParam(q.Get("visibility")) {
		filters.Visibilities = append(filters.Visibilities, moment.Visibility(v))
	}
	filters.Hashtags = csvParam(q.Get("hashtags"))
	filters.ExcludeHashtags = csvParam(q.Get("exclude_hashtags"))

	if filters.MinLikes, err = int64Param(q.Get("min_likes")); err != nil {
		return nil, badParam("min_likes")
	}
	if filters.MinViews, err = int64Param(q.Get("min_views")); err != nil {
		return nil, badParam("min_views")
	}
	if filters.MinComments, err = int64Param(q.Get("min_comments")); err != nil {
		return nil, badParam("min_comments")
	}
	if filters.MinDuration, err = intPtrParam(q.Get("min_duration")); err != nil {
		return nil, badParam("min_duration")
	}
	if filters.MaxDuration, err = intPtrParam(q.Get("max_duration")); err != nil {
		return nil, badParam("max_duration")
	}
	if filters.DateFrom, err = timeParam(q.Get("date_from")); err != nil {
		return nil, badParam("date_from")
	}
	if filters.DateTo, err = timeParam(q.Get("date_to")); err != nil {
		return nil, badParam("date_to")
	}

	if q.Get("lat") != "" || q.Get("lon") != "" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			return nil, pkgerrors.New(pkgerrors.ErrInvalidLocation, 400, "lat and lon must both be valid numbers")
		}
		radius := 10.0
		if raw := q.Get("radius"); raw != "" {
			if radius, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, badParam("radius")
			}
		}
		filters.Location = &moment.GeoFilter{Latitude: lat, Longitude: lon, RadiusKm: radius}
	}

	query.Filters = filters
	return query, nil
}

// parseSearchContext derives the acting user's context from request headers.
// The geo filter's center doubles as the user position when one is set.
func parseSearchContext(r *http.Request, query *moment.Query) *moment.SearchContext {
	sc := &moment.SearchContext{
		UserID:    r.Header.Get("X-User-ID"),
		DeviceID:  r.Header.Get("X-Device-ID"),
		SessionID: r.Header.Get("X-Session-ID"),
		Interests: csvParam(r.Header.Get("X-User-Interests")),
	}
	if query.Filters != nil && query.Filters.Location != nil {
		p := geo.Point{
			Latitude:  query.Filters.Location.Latitude,
			Longitude: query.Filters.Location.Longitude,
		}
		sc.Location = &p
	}
	return sc
}

func csvParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func intPtrParam(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func int64Param(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func badParam(name string) error {
	return pkgerrors.Newf(pkgerrors.ErrInvalidTerm, 400, "invalid %s parameter", name)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := pkgerrors.HTTPStatusCode(err)
	if status >= 500 {
		h.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		RequestID: logger.RequestIDFromContext(r.Context()),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}
