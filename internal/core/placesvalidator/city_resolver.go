package placesvalidator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CityDetail is the normalized destination record persisted alongside POI
// data, adapted from the teacher's city package for the planner's
// destination-resolution needs.
type CityDetail struct {
	ID              uuid.UUID
	Name            string
	Country         string
	StateProvince   string
	CenterLatitude  float64
	CenterLongitude float64
}

// CityResolver resolves a free-text destination to a canonical city,
// persisting new ones so repeated plans for the same city reuse one row.
type CityResolver interface {
	Resolve(ctx context.Context, name, country string) (*CityDetail, error)
}

// PGCityResolver is grounded on the teacher's internal/api/city repository.
type PGCityResolver struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGCityResolver(pool *pgxpool.Pool, logger *slog.Logger) *PGCityResolver {
	return &PGCityResolver{pool: pool, logger: logger}
}

var _ CityResolver = (*PGCityResolver)(nil)

const citySchemaSQL = `
CREATE TABLE IF NOT EXISTS resolved_cities (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT '',
	state_province TEXT NOT NULL DEFAULT '',
	center_lat DOUBLE PRECISION,
	center_lon DOUBLE PRECISION,
	UNIQUE (name, country)
);
`

// Resolve looks up an existing row by name case-insensitively (and by exact
// country when country is non-empty; any country matches when it is empty),
// inserting one on a miss. Nothing sets center_lat/center_lon, so they read
// back as 0.
func (r *PGCityResolver) Resolve(ctx context.Context, name, country string) (*CityDetail, error) {
	if _, err := r.pool.Exec(ctx, citySchemaSQL); err != nil {
		return nil, fmt.Errorf("placesvalidator: city schema init: %w", err)
	}

	var existing CityDetail
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, country, state_province, COALESCE(center_lat, 0), COALESCE(center_lon, 0)
		FROM resolved_cities WHERE LOWER(name) = LOWER($1) AND ($2 = '' OR country = $2)
	`, name, country).Scan(&existing.ID, &existing.Name, &existing.Country, &existing.StateProvince,
		&existing.CenterLatitude, &existing.CenterLongitude)
	if err == nil {
		return &existing, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("placesvalidator: city lookup failed: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
		INSERT INTO resolved_cities (name, country) VALUES ($1, $2) RETURNING id
	`, name, country).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("placesvalidator: city insert failed: %w", err)
	}
	r.logger.InfoContext(ctx, "resolved new destination city", slog.String("name", name), slog.String("country", country))
	return &CityDetail{ID: id, Name: name, Country: country}, nil
}
