package geospatial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// pgxIface is the slice of pgxpool.Pool this store needs. Keeping it as an
// interface, rather than taking *pgxpool.Pool directly, is what lets tests
// swap in pgxmock.
type pgxIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore queries PostGIS territory tables with ST_Contains, the same
// point-in-polygon idiom used throughout this codebase's other spatial
// lookups. Table names come from an internal allowlist, never from caller
// input, so there is no SQL-injection surface despite the dynamic query.
type PostgresStore struct {
	pool pgxIface
}

// NewPostgresStore wraps an established pgx connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) QueryPoint(ctx context.Context, lng, lat float64, utilityType lookup.UtilityType) ([]lookup.TerritoryPolygon, error) {
	table, ok := tableForUtilityType(utilityType)
	if !ok {
		return nil, eris.Errorf("geospatial: unsupported utility type %q", utilityType)
	}

	sql := fmt.Sprintf(`
		SELECT name, state, shape_type, area_km2, customer_count,
		       COALESCE(eia_id, 0), COALESCE(pwsid, ''), COALESCE(holding_company, ''),
		       COALESCE(control_area, ''), source
		FROM %s
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY area_km2 ASC
	`, table)

	rows, err := s.pool.Query(ctx, sql, lng, lat)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "geospatial: query point against %s", table)
	}
	defer rows.Close()

	var polygons []lookup.TerritoryPolygon
	for rows.Next() {
		var p lookup.TerritoryPolygon
		var shapeType string
		if err := rows.Scan(
			&p.Name, &p.State, &shapeType, &p.AreaKM2, &p.CustomerCount,
			&p.EIAID, &p.PWSID, &p.HoldingCo, &p.ControlArea, &p.Source,
		); err != nil {
			return nil, eris.Wrapf(err, "geospatial: scan row from %s", table)
		}
		p.Type = lookup.ShapeType(shapeType)
		p.UtilityType = utilityType
		polygons = append(polygons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "geospatial: iterate rows from %s", table)
	}
	return polygons, nil
}

// Truncate empties one utility type's PostGIS territory table, for a clean
// reload before BulkInsert.
func (s *PostgresStore) Truncate(ctx context.Context, utilityType lookup.UtilityType) error {
	table, ok := tableForUtilityType(utilityType)
	if !ok {
		return eris.Errorf("geospatial: unsupported utility type %q", utilityType)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
		return eris.Wrapf(err, "geospatial: truncate %s", table)
	}
	return nil
}

// BulkInsert loads one utility type's territory polygons into its PostGIS
// table, used by the offline import command. It does not truncate the
// table first — callers that want a clean reload issue that separately.
func (s *PostgresStore) BulkInsert(ctx context.Context, utilityType lookup.UtilityType, polygons []lookup.TerritoryPolygon, geoms []*geom.MultiPolygon) error {
	table, ok := tableForUtilityType(utilityType)
	if !ok {
		return eris.Errorf("geospatial: unsupported utility type %q", utilityType)
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO %s (name, state, shape_type, area_km2, customer_count, eia_id, pwsid, holding_company, control_area, source, geom)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, ST_SetSRID($11::geometry, 4326))
	`, table)

	for i, p := range polygons {
		if i >= len(geoms) || geoms[i] == nil {
			continue
		}
		wkb, err := ewkb.Marshal(geoms[i], ewkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "geospatial: marshal geometry for %s", p.Name)
		}
		if _, err := s.pool.Exec(ctx, insertSQL,
			p.Name, p.State, string(p.Type), p.AreaKM2, p.CustomerCount,
			p.EIAID, p.PWSID, p.HoldingCo, p.ControlArea, p.Source, wkb,
		); err != nil {
			return eris.Wrapf(err, "geospatial: insert into %s", table)
		}
	}
	return nil
}
