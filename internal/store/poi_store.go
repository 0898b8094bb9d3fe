package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// POI is a point of interest in a city, ranked by popularity.
type POI struct {
	ID          string  `json:"id"`
	Name        string  `json:"poiName"`
	City        string  `json:"cityName"`
	Description string  `json:"poiDescription"`
	Longitude   float64 `json:"poiLongitude"`
	Latitude    float64 `json:"poiLatitude"`
	RankInCity  int     `json:"poiRankInCity"`
	RankInChina int     `json:"poiRankInChina"`
}

// POIStore manages points of interest with full-text search via SQLite FTS5.
type POIStore struct {
	db *DB
}

// NewPOIStore creates a POI store using the given database.
func NewPOIStore(db *DB) *POIStore {
	return &POIStore{db: db}
}

// Upsert inserts or updates a POI. An empty ID is assigned.
func (p *POIStore) Upsert(ctx context.Context, poi POI) (*POI, error) {
	if poi.ID == "" {
		poi.ID = uuid.New().String()
	}
	_, err := p.db.sql.ExecContext(ctx,
		`INSERT INTO pois (id, name, city, description, longitude, latitude, rank_in_city, rank_in_china)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   city = excluded.city,
		   description = excluded.description,
		   longitude = excluded.longitude,
		   latitude = excluded.latitude,
		   rank_in_city = excluded.rank_in_city,
		   rank_in_china = excluded.rank_in_china`,
		poi.ID, poi.Name, poi.City, poi.Description,
		poi.Longitude, poi.Latitude, poi.RankInCity, poi.RankInChina,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting poi %s: %w", poi.Name, err)
	}
	return &poi, nil
}

// ByCity returns a city's POIs ordered by in-city rank. Limit of 0 defaults to 10.
func (p *POIStore) ByCity(ctx context.Context, city string, limit int) ([]POI, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.sql.QueryContext(ctx,
		`SELECT id, name, city, description, longitude, latitude, rank_in_city, rank_in_china
		 FROM pois WHERE city = ?
		 ORDER BY rank_in_city
		 LIMIT ?`,
		strings.TrimSpace(city), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pois for %s: %w", city, err)
	}
	defer rows.Close()
	return scanPOIs(rows)
}

// Search finds POIs whose name or description match the FTS5 query,
// optionally restricted to a city. Limit of 0 defaults to 20.
func (p *POIStore) Search(ctx context.Context, city, query string, limit int) ([]POI, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.sql.QueryContext(ctx,
		`SELECT p.id, p.name, p.city, p.description, p.longitude, p.latitude, p.rank_in_city, p.rank_in_china
		 FROM pois_fts
		 JOIN pois p ON p.rowid = pois_fts.rowid
		 WHERE pois_fts MATCH ?
		   AND (? = '' OR p.city = ?)
		 ORDER BY rank
		 LIMIT ?`,
		query, city, city, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching pois: %w", err)
	}
	defer rows.Close()
	return scanPOIs(rows)
}

// Count returns the number of stored POIs.
func (p *POIStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM pois`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPOIs(rows rowsScanner) ([]POI, error) {
	var out []POI
	for rows.Next() {
		var poi POI
		if err := rows.Scan(
			&poi.ID, &poi.Name, &poi.City, &poi.Description,
			&poi.Longitude, &poi.Latitude, &poi.RankInCity, &poi.RankInChina,
		); err != nil {
			continue
		}
		out = append(out, poi)
	}
	return out, rows.Err()
}
