// Package geospatial answers point-in-polygon questions for utility
// territory boundaries: given a coordinate and a utility type, which
// electric/gas/water service-area polygons contain that point.
package geospatial

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// ErrNoContainingPolygon names the case of a point falling outside every
// polygon on file for the requested utility type. Neither Store
// implementation returns it: QueryPoint reports that case as an empty,
// nil-error result.
var ErrNoContainingPolygon = eris.New("geospatial: no containing polygon")

// Store answers point-in-polygon queries against utility territory data.
// Two implementations exist: a PostGIS-backed one for production and an
// in-memory one for tests and small deployments that don't run a database.
type Store interface {
	// QueryPoint returns every polygon of the given utility type that
	// contains (lng, lat), sorted by area ascending — the smallest, most
	// specific polygon first. An empty, nil-error result means the point is
	// outside all known coverage for that utility type.
	QueryPoint(ctx context.Context, lng, lat float64, utilityType lookup.UtilityType) ([]lookup.TerritoryPolygon, error)
}

// tableForUtilityType maps a utility type to its backing table/dataset name.
// Water is folded into the electric/gas/water three-table model; sewer,
// trash, and internet never query this store directly (sewer inherits from
// water, the other two come from tabular adapters only).
func tableForUtilityType(ut lookup.UtilityType) (string, bool) {
	switch ut {
	case lookup.UtilityElectric:
		return "territory.electric", true
	case lookup.UtilityGas:
		return "territory.gas", true
	case lookup.UtilityWater:
		return "territory.water", true
	default:
		return "", false
	}
}
