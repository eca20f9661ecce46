package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/catalog"
	"github.com/sells-group/utility-lookup/internal/geospatial"
	"github.com/sells-group/utility-lookup/internal/lookup"
)

// shapefileJobs pairs each spatial utility type with its HIFLD field layout.
// Only electric, gas, and water have territory shapefiles; sewer inherits
// from water and internet/trash never query the spatial index. pathFn is
// tried first; if it's empty (or the file isn't there yet) and urlFn names
// a source, the archive is fetched and extracted into the shapefile cache
// directory before loading.
var shapefileJobs = []struct {
	utilityType lookup.UtilityType
	pathFn      func() string
	urlFn       func() string
	source      string
	fields      geospatial.FieldMap
}{
	{
		utilityType: lookup.UtilityElectric,
		pathFn:      func() string { return cfg.Data.ElectricShapefilePath },
		urlFn:       func() string { return cfg.Data.ElectricShapefileURL },
		source:      "hifld_electric_retail_service_territories",
		fields: geospatial.FieldMap{
			Name: "NAME", State: "STATE", Type: "TYPE",
			CustomerCount: "CUSTOMERS", EIAID: "ID", HoldingCo: "HOLDING_CO", ControlArea: "CNTRL_AREA",
		},
	},
	{
		utilityType: lookup.UtilityGas,
		pathFn:      func() string { return cfg.Data.GasShapefilePath },
		urlFn:       func() string { return cfg.Data.GasShapefileURL },
		source:      "hifld_natural_gas_service_territories",
		fields: geospatial.FieldMap{
			Name: "NAME", State: "STATE", Type: "TYPE", EIAID: "ID",
		},
	},
	{
		utilityType: lookup.UtilityWater,
		pathFn:      func() string { return cfg.Data.WaterShapefilePath },
		urlFn:       func() string { return cfg.Data.WaterShapefileURL },
		source:      "hifld_community_water_system_service_areas",
		fields: geospatial.FieldMap{
			Name: "PWS_NAME", State: "STATE", PWSID: "PWSID",
		},
	},
}

// resolveShapefilePath returns a local .shp path ready for LoadShapefile,
// downloading and extracting the configured URL's archive first when the
// local path is unset.
func resolveShapefilePath(ctx context.Context, path, url string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if url == "" {
		return path, nil
	}
	return geospatial.DownloadShapefile(ctx, url, cfg.Data.ShapefileCacheDir)
}

var importTruncate bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load territory shapefiles and the provider catalog into the configured backends",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		spatial, geoPool, err := initGeospatial(ctx)
		if err != nil {
			return eris.Wrap(err, "import: init spatial backend")
		}
		if geoPool != nil {
			defer geoPool.Close()
		}

		for _, job := range shapefileJobs {
			path, err := resolveShapefilePath(ctx, job.pathFn(), job.urlFn())
			if err != nil {
				return eris.Wrapf(err, "import: resolve %s shapefile", job.utilityType)
			}
			if path == "" {
				zap.L().Info("import: skipping utility type, no shapefile path or url configured", zap.String("utility_type", string(job.utilityType)))
				continue
			}
			polygons, geoms, err := geospatial.LoadShapefile(path, job.utilityType, job.fields, job.source)
			if err != nil {
				return eris.Wrapf(err, "import: load %s shapefile", job.utilityType)
			}
			if err := loadIntoBackend(ctx, spatial, geoPool, importTruncate, job.utilityType, polygons, geoms); err != nil {
				return eris.Wrapf(err, "import: load %s into backend", job.utilityType)
			}
			zap.L().Info("import: loaded territory polygons",
				zap.String("utility_type", string(job.utilityType)),
				zap.Int("count", len(polygons)),
				zap.String("path", path),
			)
		}

		if cfg.Data.CatalogPath != "" {
			rows, err := catalog.LoadRowsFromCSV(cfg.Data.CatalogPath)
			if err != nil {
				return eris.Wrap(err, "import: load catalog rows")
			}
			zap.L().Info("import: catalog rows parsed", zap.Int("count", len(rows)), zap.String("path", cfg.Data.CatalogPath))
		}

		return nil
	},
}

// loadIntoBackend populates the in-memory store directly, or truncates (if
// requested) and bulk-inserts into PostGIS. geoPool is nil when the
// in-memory backend is selected.
func loadIntoBackend(ctx context.Context, spatial geospatial.Store, geoPool *pgxpool.Pool, truncate bool, ut lookup.UtilityType, polygons []lookup.TerritoryPolygon, geoms []*geom.MultiPolygon) error {
	if pg, ok := spatial.(*geospatial.PostgresStore); ok {
		if truncate {
			if err := pg.Truncate(ctx, ut); err != nil {
				return err
			}
		}
		return pg.BulkInsert(ctx, ut, polygons, geoms)
	}
	if mem, ok := spatial.(*geospatial.MemoryStore); ok {
		mem.Load(ut, polygons, geoms)
		return nil
	}
	return eris.New("import: unrecognized spatial backend")
}

func init() {
	importCmd.Flags().BoolVar(&importTruncate, "truncate", false, "truncate the PostGIS territory table before loading (no-op for the in-memory backend)")
	rootCmd.AddCommand(importCmd)
}
