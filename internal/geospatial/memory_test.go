package geospatial

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

func square(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	ring := []float64{minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY}
	poly := geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(poly)
	return mp
}

func TestMemoryStore_QueryPoint_FindsContainingPolygon(t *testing.T) {
	s := NewMemoryStore()
	big := lookup.TerritoryPolygon{Name: "Big Co-op", AreaKM2: 9000, UtilityType: lookup.UtilityElectric}
	small := lookup.TerritoryPolygon{Name: "Small Muni", AreaKM2: 12, UtilityType: lookup.UtilityElectric}
	s.Load(lookup.UtilityElectric,
		[]lookup.TerritoryPolygon{big, small},
		[]*geom.MultiPolygon{square(-10, -10, 10, 10), square(-1, -1, 1, 1)},
	)

	hits, err := s.QueryPoint(context.Background(), 0, 0, lookup.UtilityElectric)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Small Muni", hits[0].Name, "smaller polygon must sort first")
	assert.Equal(t, "Big Co-op", hits[1].Name)
}

func TestMemoryStore_QueryPoint_OutsideAllPolygonsReturnsEmpty(t *testing.T) {
	s := NewMemoryStore()
	s.Load(lookup.UtilityElectric,
		[]lookup.TerritoryPolygon{{Name: "Somewhere Else"}},
		[]*geom.MultiPolygon{square(100, 100, 101, 101)},
	)

	hits, err := s.QueryPoint(context.Background(), 0, 0, lookup.UtilityElectric)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStore_QueryPoint_UnknownUtilityTypeReturnsEmpty(t *testing.T) {
	s := NewMemoryStore()
	hits, err := s.QueryPoint(context.Background(), 0, 0, lookup.UtilityTrash)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRingContains_HoleExcludesPoint(t *testing.T) {
	outer := []float64{-10, -10, 10, -10, 10, 10, -10, 10, -10, -10}
	hole := []float64{-1, -1, 1, -1, 1, 1, -1, 1, -1, -1}
	poly := geom.NewPolygonFlat(geom.XY, append(outer, hole...), []int{len(outer), len(outer) + len(hole)})
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(poly))

	assert.True(t, containsPoint(mp, 5, 5))
	assert.False(t, containsPoint(mp, 0, 0))
}
