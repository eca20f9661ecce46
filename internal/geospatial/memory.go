package geospatial

import (
	"context"
	"math"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// record pairs a territory polygon's attributes with the geometry and
// precomputed bounding box used to prefilter candidates before the exact
// point-in-polygon test.
type record struct {
	polygon lookup.TerritoryPolygon
	geom    *geom.MultiPolygon
	minX, minY, maxX, maxY float64
}

// MemoryStore is the non-PostGIS backend: an in-process bounding-box
// prefilter followed by an exact ray-casting point-in-polygon test. It
// trades query latency at large polygon counts for zero external
// dependencies, which is the right tradeoff for a single-process deployment
// or for tests. No pack library provides a true R-tree, so the bbox
// prefilter substitutes for one — a linear scan of bounding boxes, which in
// practice prunes all but a handful of candidates before the expensive ring
// walk runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[lookup.UtilityType][]record
}

// NewMemoryStore returns an empty store ready to be populated by Load.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[lookup.UtilityType][]record)}
}

// Load replaces all polygons for a utility type. Callers populate this at
// startup from territory shapefiles.
func (s *MemoryStore) Load(utilityType lookup.UtilityType, polygons []lookup.TerritoryPolygon, geoms []*geom.MultiPolygon) {
	recs := make([]record, 0, len(polygons))
	for i, p := range polygons {
		var g *geom.MultiPolygon
		if i < len(geoms) {
			g = geoms[i]
		}
		if g == nil {
			continue
		}
		minX, minY, maxX, maxY := bounds(g)
		recs = append(recs, record{polygon: p, geom: g, minX: minX, minY: minY, maxX: maxX, maxY: maxY})
	}
	s.mu.Lock()
	s.records[utilityType] = recs
	s.mu.Unlock()
}

func (s *MemoryStore) QueryPoint(_ context.Context, lng, lat float64, utilityType lookup.UtilityType) ([]lookup.TerritoryPolygon, error) {
	s.mu.RLock()
	recs := s.records[utilityType]
	s.mu.RUnlock()

	var hits []lookup.TerritoryPolygon
	for _, r := range recs {
		if lng < r.minX || lng > r.maxX || lat < r.minY || lat > r.maxY {
			continue
		}
		if containsPoint(r.geom, lng, lat) {
			p := r.polygon
			p.UtilityType = utilityType
			hits = append(hits, p)
		}
	}
	sortByAreaAscending(hits)
	return hits, nil
}

func bounds(mp *geom.MultiPolygon) (minX, minY, maxX, maxY float64) {
	flat := mp.FlatCoords()
	if len(flat) < 2 {
		return 0, 0, 0, 0
	}
	minX, minY = flat[0], flat[1]
	maxX, maxY = flat[0], flat[1]
	for i := 0; i+1 < len(flat); i += 2 {
		x, y := flat[i], flat[i+1]
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return minX, minY, maxX, maxY
}

// containsPoint runs the standard ray-casting test against every polygon
// ring in the multipolygon, treating interior rings as holes.
func containsPoint(mp *geom.MultiPolygon, lng, lat float64) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if polyContains(poly, lng, lat) {
			return true
		}
	}
	return false
}

func polyContains(poly *geom.Polygon, lng, lat float64) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	// Outer ring must contain the point; any inner ring (hole) containing
	// it excludes the point.
	if !ringContains(poly.LinearRing(0), lng, lat) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if ringContains(poly.LinearRing(i), lng, lat) {
			return false
		}
	}
	return true
}

func ringContains(ring *geom.LinearRing, lng, lat float64) bool {
	flat := ring.FlatCoords()
	n := len(flat) / 2
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// sortByAreaAscending is a plain insertion sort — result sets are a handful
// of overlapping polygons at most, never worth pulling in sort.Slice's
// interface overhead for.
func sortByAreaAscending(polys []lookup.TerritoryPolygon) {
	for i := 1; i < len(polys); i++ {
		for j := i; j > 0 && polys[j-1].AreaKM2 > polys[j].AreaKM2; j-- {
			polys[j-1], polys[j] = polys[j], polys[j-1]
		}
	}
}

// areaKM2 computes a rough planar area in km² for a geometry already in
// unprojected lon/lat degrees, using the equirectangular approximation
// go-geom's xy helpers provide — adequate for ranking overlapping
// territories by size, not for survey-grade area.
func areaKM2(mp *geom.MultiPolygon) float64 {
	const degKmLat = 111.32
	total := 0.0
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		ring := poly.LinearRing(0)
		_, _, _, maxY := bounds(mp)
		lonKm := degKmLat * math.Cos(maxY*math.Pi/180)
		total += xy.Area(ring.FlatCoords()) * degKmLat * lonKm
	}
	if total < 0 {
		total = -total
	}
	return total
}
