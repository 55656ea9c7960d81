package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// pgExecutor is the narrow slice of *pgxpool.Pool this package needs,
// pulled out so tests can swap in pgxmock rather than a live database.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGIndex is the Postgres/pgvector-backed VectorIndex, grounded on the
// teacher's app/db.go pgxpool bootstrap and poi_repository.go raw-SQL idiom.
// Initialization is lazy: ensureSchema runs on first use, not construction.
type PGIndex struct {
	pool     pgExecutor
	embedder Embedder
	logger   *slog.Logger

	once    sync.Once
	initErr error
}

// NewPGIndex wraps an existing pool. The schema is created by the first
// operation that touches the database (Add/AddBatch/Search/Size).
func NewPGIndex(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) *PGIndex {
	return &PGIndex{pool: pool, embedder: embedder, logger: logger}
}

var _ VectorIndex = (*PGIndex)(nil)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS poi_records (
	poi_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	address TEXT,
	city TEXT,
	lat DOUBLE PRECISION,
	lon DOUBLE PRECISION,
	google_place_id TEXT,
	rating DOUBLE PRECISION,
	rating_count INT,
	price_level INT,
	opening_hours JSONB,
	raw_text TEXT NOT NULL,
	types JSONB,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	embedding vector(768)
);
CREATE INDEX IF NOT EXISTS poi_records_city_idx ON poi_records (city);
`

func (p *PGIndex) ensureSchema(ctx context.Context) error {
	p.once.Do(func() {
		_, err := p.pool.Exec(ctx, schemaSQL)
		p.initErr = err
	})
	return p.initErr
}

func (p *PGIndex) Add(ctx context.Context, record travelmodel.PoiRecord) error {
	_, err := p.AddBatch(ctx, []travelmodel.PoiRecord{record})
	return err
}

// AddBatch is idempotent per spec.md §4.2: in-batch duplicates keep the
// first occurrence, IDs already present are filtered out before insertion.
func (p *PGIndex) AddBatch(ctx context.Context, records []travelmodel.PoiRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := p.ensureSchema(ctx); err != nil {
		return 0, &VectorIndexError{Op: "add_batch", Err: err}
	}

	seen := make(map[string]travelmodel.PoiRecord, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.PoiID]; !ok {
			seen[r.PoiID] = r
			order = append(order, r.PoiID)
		}
	}

	existing, err := p.existingIDs(ctx, order)
	if err != nil {
		return 0, &VectorIndexError{Op: "add_batch", Err: err}
	}

	inserted := 0
	for _, id := range order {
		if existing[id] {
			continue
		}
		rec := seen[id]
		if err := p.insertOne(ctx, rec); err != nil {
			p.logger.WarnContext(ctx, "vector index insert failed, skipping", slog.String("poi_id", id), slog.Any("error", err))
			continue
		}
		inserted++
	}
	return inserted, nil
}

func (p *PGIndex) existingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sq.Select("poi_id").From("poi_records").Where(sq.Eq{"poi_id": ids}).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (p *PGIndex) insertOne(ctx context.Context, rec travelmodel.PoiRecord) error {
	var embedding []float32
	if p.embedder != nil {
		vec, err := p.embedder.Embed(ctx, rec.RawText)
		if err != nil {
			p.logger.WarnContext(ctx, "embedding failed, storing without vector", slog.Any("error", err))
		} else {
			embedding = vec
		}
	}

	openingHoursJSON, typesJSON, err := encodeMetadata(rec)
	if err != nil {
		return err
	}

	cols := []string{"poi_id", "name", "category", "description", "address", "city", "lat", "lon",
		"google_place_id", "rating", "rating_count", "price_level", "opening_hours", "raw_text",
		"types", "source", "created_at"}
	vals := []interface{}{rec.PoiID, rec.Name, string(rec.Category), rec.Description, rec.Address, rec.City,
		coordOrNil(rec, true), coordOrNil(rec, false), rec.GooglePlaceID, rec.Rating, rec.RatingCount,
		rec.PriceLevel, openingHoursJSON, rec.RawText, typesJSON, string(rec.Source), timeOrNow(rec.CreatedAt)}

	if embedding != nil {
		cols = append(cols, "embedding")
		vals = append(vals, pgvector.NewVector(embedding))
	}

	builder := sq.Insert("poi_records").Columns(cols...).Values(vals...).
		Suffix("ON CONFLICT (poi_id) DO NOTHING").PlaceholderFormat(sq.Dollar)
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, query, args...)
	return err
}

func (p *PGIndex) SearchByText(ctx context.Context, query string, k int, cityFilter string) ([]Candidate, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, &VectorIndexError{Op: "search_by_text", Err: err}
	}
	if p.embedder == nil {
		return nil, &VectorIndexError{Op: "search_by_text", Err: fmt.Errorf("no embedder configured")}
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		p.logger.WarnContext(ctx, "search_by_text embedding failed, degrading to empty", slog.Any("error", err))
		return nil, nil
	}
	return p.SearchByVector(ctx, vec, k, cityFilter)
}

func (p *PGIndex) SearchByVector(ctx context.Context, vec []float32, k int, cityFilter string) ([]Candidate, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, &VectorIndexError{Op: "search_by_vector", Err: err}
	}

	// Cosine-distance ordering and the "<=>" operator are not expressible
	// through squirrel's column/predicate builders, so the vector leg of
	// the query is raw SQL; squirrel still owns the dynamic city filter.
	v := pgvector.NewVector(vec)
	query := `SELECT poi_id, name, category, description, address, city, lat, lon,
		google_place_id, rating, rating_count, price_level, opening_hours, raw_text,
		types, source, created_at, embedding <=> $1 AS distance
		FROM poi_records WHERE embedding IS NOT NULL`
	args := []interface{}{v}
	if cityFilter != "" {
		query += " AND city = $2"
		args = append(args, cityFilter)
	}
	query += fmt.Sprintf(" ORDER BY distance ASC LIMIT %d", maxInt(k, 0))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		p.logger.WarnContext(ctx, "vector search failed, degrading to empty", slog.Any("error", err))
		return nil, nil
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		rec, dist, err := scanRecord(rows)
		if err != nil {
			return nil, &VectorIndexError{Op: "search_by_vector", Err: err}
		}
		out = append(out, Candidate{Record: rec, Relevance: clampRelevance(1 - dist)})
	}
	return out, rows.Err()
}

func (p *PGIndex) Size(ctx context.Context) (int, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return 0, &VectorIndexError{Op: "size", Err: err}
	}
	var n int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM poi_records").Scan(&n)
	if err != nil {
		return 0, &VectorIndexError{Op: "size", Err: err}
	}
	return n, nil
}

func scanRecord(rows pgx.Rows) (travelmodel.PoiRecord, float64, error) {
	var (
		rec                        travelmodel.PoiRecord
		category, source           string
		lat, lon                   *float64
		rating                     *float64
		ratingCount, priceLevel    *int
		openingHoursJSON, typesRaw []byte
		createdAt                  time.Time
		dist                       float64
	)
	err := rows.Scan(&rec.PoiID, &rec.Name, &category, &rec.Description, &rec.Address, &rec.City,
		&lat, &lon, &rec.GooglePlaceID, &rating, &ratingCount, &priceLevel, &openingHoursJSON,
		&rec.RawText, &typesRaw, &source, &createdAt, &dist)
	if err != nil {
		return rec, 0, err
	}
	rec.Category = travelmodel.Category(category)
	rec.Source = travelmodel.Source(source)
	rec.Rating = rating
	rec.RatingCount = ratingCount
	rec.PriceLevel = priceLevel
	rec.CreatedAt = createdAt
	if lat != nil && lon != nil {
		rec.Coordinates = &travelmodel.Coordinates{Lat: *lat, Lon: *lon}
	}
	if len(typesRaw) > 0 {
		_ = json.Unmarshal(typesRaw, &rec.Types)
	}
	if len(openingHoursJSON) > 0 {
		var oh travelmodel.OpeningHours
		if err := json.Unmarshal(openingHoursJSON, &oh); err == nil {
			rec.OpeningHours = &oh
		}
	}
	return rec, dist, nil
}

func encodeMetadata(rec travelmodel.PoiRecord) (openingHoursJSON, typesJSON []byte, err error) {
	if rec.OpeningHours != nil {
		openingHoursJSON, err = json.Marshal(rec.OpeningHours)
		if err != nil {
			return nil, nil, err
		}
	}
	if rec.Types != nil {
		typesJSON, err = json.Marshal(rec.Types)
		if err != nil {
			return nil, nil, err
		}
	}
	return openingHoursJSON, typesJSON, nil
}

func coordOrNil(rec travelmodel.PoiRecord, lat bool) interface{} {
	if rec.Coordinates == nil {
		return nil
	}
	if lat {
		return rec.Coordinates.Lat
	}
	return rec.Coordinates.Lon
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
