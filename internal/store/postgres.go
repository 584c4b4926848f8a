package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/pulsefeed/moment-search/internal/moment"
	"github.com/pulsefeed/moment-search/pkg/postgres"
)

// candidateLimit caps how many candidates a single lookup pulls from the
// database; scoring and pagination happen in the engine.
const candidateLimit = 500

// PostgresIndex is the production Index backed by a moments table:
//
//	CREATE TABLE moments (
//	    id             TEXT PRIMARY KEY,
//	    title          TEXT NOT NULL,
//	    description    TEXT NOT NULL DEFAULT '',
//	    hashtags       TEXT[] NOT NULL DEFAULT '{}',
//	    owner_id       TEXT NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL,
//	    status         TEXT NOT NULL,
//	    visibility     TEXT NOT NULL,
//	    latitude       DOUBLE PRECISION,
//	    longitude      DOUBLE PRECISION,
//	    location_name  TEXT,
//	    views          BIGINT NOT NULL DEFAULT 0,
//	    likes          BIGINT NOT NULL DEFAULT 0,
//	    comments       BIGINT NOT NULL DEFAULT 0,
//	    shares         BIGINT NOT NULL DEFAULT 0,
//	    media_type     TEXT NOT NULL DEFAULT 'video',
//	    media_duration INTEGER NOT NULL DEFAULT 0
//	);
type PostgresIndex struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresIndex creates a PostgresIndex on an open client.
func NewPostgresIndex(db *postgres.Client) *PostgresIndex {
	return &PostgresIndex{
		db:     db,
		logger: slog.Default().With("component", "postgres-index"),
	}
}

const momentColumns = `id, title, description, hashtags, owner_id, created_at,
	updated_at, status, visibility, latitude, longitude, location_name,
	views, likes, comments, shares, media_type, media_duration`

// SearchText pulls candidates whose title or description contain any term
// word, or whose hashtag array overlaps the queried hashtags.
func (idx *PostgresIndex) SearchText(ctx context.Context, params TextParams) ([]*moment.Moment, error) {
	words := strings.Fields(strings.ToLower(params.Term))
	patterns := make([]string, 0, len(words))
	for _, w := range words {
		patterns = append(patterns, "%"+w+"%")
	}
	rows, err := idx.db.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM moments
		WHERE lower(title) LIKE ANY($1)
		   OR lower(description) LIKE ANY($1)
		   OR hashtags && $2
		LIMIT $3`, momentColumns),
		pq.Array(patterns), pq.Array(lowerAll(params.Hashtags)), candidateLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying text candidates: %w", err)
	}
	return idx.scanAll(rows)
}

// SearchHashtags pulls candidates overlapping the requested hashtag set and
// excludes any carrying an excluded hashtag.
func (idx *PostgresIndex) SearchHashtags(ctx context.Context, params HashtagParams) ([]*moment.Moment, error) {
	rows, err := idx.db.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM moments
		WHERE hashtags && $1
		  AND NOT (hashtags && $2)
		LIMIT $3`, momentColumns),
		pq.Array(lowerAll(params.Hashtags)), pq.Array(lowerAll(params.ExcludeHashtags)), candidateLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying hashtag candidates: %w", err)
	}
	return idx.scanAll(rows)
}

// SearchNear pulls located candidates within the radius using a haversine
// expression evaluated in the database.
func (idx *PostgresIndex) SearchNear(ctx context.Context, params GeoParams) ([]*moment.Moment, error) {
	rows, err := idx.db.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM moments
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		  AND 2 * 6371 * asin(sqrt(
		        pow(sin(radians(latitude - $1) / 2), 2) +
		        cos(radians($1)) * cos(radians(latitude)) *
		        pow(sin(radians(longitude - $2) / 2), 2)
		      )) <= $3
		LIMIT $4`, momentColumns),
		params.Center.Latitude, params.Center.Longitude, params.RadiusKm, candidateLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying geo candidates: %w", err)
	}
	return idx.scanAll(rows)
}

func (idx *PostgresIndex) scanAll(rows *sql.Rows) ([]*moment.Moment, error) {
	defer rows.Close()
	var out []*moment.Moment
	for rows.Next() {
		var (
			m            moment.Moment
			lat, lon     sql.NullFloat64
			locationName sql.NullString
		)
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Description, pq.Array(&m.Hashtags), &m.OwnerID,
			&m.CreatedAt, &m.UpdatedAt, &m.Status, &m.Visibility,
			&lat, &lon, &locationName,
			&m.Metrics.Views, &m.Metrics.Likes, &m.Metrics.Comments, &m.Metrics.Shares,
			&m.Media.Type, &m.Media.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("scanning moment row: %w", err)
		}
		if lat.Valid && lon.Valid {
			m.Location = &moment.Location{
				Latitude:  lat.Float64,
				Longitude: lon.Float64,
				Name:      locationName.String,
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func lowerAll(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	return out
}
