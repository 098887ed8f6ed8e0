package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/cagp/internal/property"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS properties (
	opa_id     VARCHAR PRIMARY KEY,
	min_x      DOUBLE NOT NULL,
	min_y      DOUBLE NOT NULL,
	max_x      DOUBLE NOT NULL,
	max_y      DOUBLE NOT NULL,
	priority   VARCHAR,
	geometry   VARCHAR NOT NULL,
	attributes VARCHAR NOT NULL
);
`

const selectSQL = `SELECT opa_id, geometry, attributes FROM properties`

// DuckDB is a Store backed by a DuckDB table.
type DuckDB struct {
	db *sql.DB
}

var _ Store = (*DuckDB)(nil)

// NewDuckDB creates the properties table on db if needed.
func NewDuckDB(ctx context.Context, db *sql.DB) (*DuckDB, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create properties table: %w", err)
	}
	return &DuckDB{db: db}, nil
}

func (s *DuckDB) InBounds(ctx context.Context, b orb.Bound) ([]property.Feature, error) {
	return s.query(ctx, selectSQL+`
		WHERE max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?
		ORDER BY opa_id`,
		b.Min[0], b.Max[0], b.Min[1], b.Max[1])
}

func (s *DuckDB) Get(ctx context.Context, opaID string) (property.Feature, error) {
	fs, err := s.query(ctx, selectSQL+` WHERE opa_id = ?`, opaID)
	if err != nil {
		return property.Feature{}, err
	}
	if len(fs) == 0 {
		return property.Feature{}, ErrNotFound
	}
	return fs[0], nil
}

func (s *DuckDB) All(ctx context.Context) ([]property.Feature, error) {
	return s.query(ctx, selectSQL+` ORDER BY opa_id`)
}

func (s *DuckDB) query(ctx context.Context, q string, args ...any) ([]property.Feature, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	var out []property.Feature
	for rows.Next() {
		var id, geom, attrs string
		if err := rows.Scan(&id, &geom, &attrs); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		f, err := decodeRow(id, geom, attrs)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func decodeRow(id, geom, attrs string) (property.Feature, error) {
	g, err := geojson.UnmarshalGeometry([]byte(geom))
	if err != nil {
		return property.Feature{}, fmt.Errorf("property %s geometry: %w", id, err)
	}
	f := property.Feature{ID: id, Geometry: g.Geometry()}
	if err := json.Unmarshal([]byte(attrs), &f.Attributes); err != nil {
		return property.Feature{}, fmt.Errorf("property %s attributes: %w", id, err)
	}
	return f, nil
}

func (s *DuckDB) Put(ctx context.Context, features ...property.Feature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO properties
		(opa_id, min_x, min_y, max_x, max_y, priority, geometry, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		if f.Geometry == nil {
			return fmt.Errorf("property %s has no geometry", f.ID)
		}
		geom, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			return fmt.Errorf("property %s geometry: %w", f.ID, err)
		}
		attrs, err := json.Marshal(f.Attributes)
		if err != nil {
			return fmt.Errorf("property %s attributes: %w", f.ID, err)
		}
		b := f.Geometry.Bound()
		if _, err := stmt.ExecContext(ctx, f.ID, b.Min[0], b.Min[1], b.Max[0], b.Max[1],
			f.Priority(), string(geom), string(attrs)); err != nil {
			return fmt.Errorf("insert property %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func (s *DuckDB) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{ByPriority: map[string]int{}}
	rows, err := s.db.QueryContext(ctx, `SELECT coalesce(priority, ''), count(*) FROM properties GROUP BY 1`)
	if err != nil {
		return sum, fmt.Errorf("summarize properties: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return sum, err
		}
		sum.Total += n
		if p != "" {
			sum.ByPriority[p] += n
		}
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}
	if sum.Total == 0 {
		return sum, nil
	}

	var minX, minY, maxX, maxY sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `SELECT min(min_x), min(min_y), max(max_x), max(max_y) FROM properties`).
		Scan(&minX, &minY, &maxX, &maxY)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("properties extent: %w", err)
	}
	sum.Bound = orb.Bound{Min: orb.Point{minX.Float64, minY.Float64}, Max: orb.Point{maxX.Float64, maxY.Float64}}
	return sum, nil
}

func (s *DuckDB) Close() error { return s.db.Close() }
