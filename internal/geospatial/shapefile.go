package geospatial

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// FieldMap names the DBF attribute columns a HIFLD territory shapefile
// carries the polygon metadata under. Field names vary by dataset (electric
// vs gas vs water), so the caller supplies the mapping rather than this
// package hardcoding one set of names.
type FieldMap struct {
	Name          string
	State         string
	Type          string
	CustomerCount string
	EIAID         string
	PWSID         string
	HoldingCo     string
	ControlArea   string
}

// LoadShapefile reads a HIFLD territory shapefile and returns one
// TerritoryPolygon plus one geom.MultiPolygon per record, in the same
// order, ready for MemoryStore.Load or a PostGIS bulk insert. Records whose
// geometry fails to parse are skipped and counted, not fatal.
func LoadShapefile(path string, ut lookup.UtilityType, fields FieldMap, source string) ([]lookup.TerritoryPolygon, []*geom.MultiPolygon, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geospatial: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		fieldIdx[name] = i
	}
	var polys []lookup.TerritoryPolygon
	var geoms []*geom.MultiPolygon
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		get := func(col string) string {
			idx, ok := fieldIdx[strings.ToLower(col)]
			if !ok {
				return ""
			}
			return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		}

		tp := lookup.TerritoryPolygon{
			Name:        get(fields.Name),
			State:       get(fields.State),
			Type:        lookup.ShapeType(strings.ToUpper(get(fields.Type))),
			PWSID:       get(fields.PWSID),
			HoldingCo:   get(fields.HoldingCo),
			ControlArea: get(fields.ControlArea),
			Source:      source,
			UtilityType: ut,
			AreaKM2:     areaKM2(mp),
		}
		if v := get(fields.CustomerCount); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				tp.CustomerCount = n
			}
		}
		if v := get(fields.EIAID); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				tp.EIAID = n
			}
		}

		polys = append(polys, tp)
		geoms = append(geoms, mp)
	}

	if skipped > 0 {
		zap.L().Warn("geospatial: skipped shapefile records with unparseable geometry",
			zap.String("path", path), zap.Int("skipped", skipped))
	}

	return polys, geoms, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon,
// one ring per part.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
