package main

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/catalog"
	"github.com/sells-group/utility-lookup/internal/geospatial"
	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/normalize"
	"github.com/sells-group/utility-lookup/internal/pipeline"
	"github.com/sells-group/utility-lookup/internal/resilience"
	"github.com/sells-group/utility-lookup/internal/scorer"
	"github.com/sells-group/utility-lookup/internal/sources"
	"github.com/sells-group/utility-lookup/internal/stategis"
	"github.com/sells-group/utility-lookup/internal/store"
	"github.com/sells-group/utility-lookup/pkg/geocode"
)

// engineEnv holds every initialized collaborator the serve/lookup/batch
// commands need. Callers must defer env.Close().
type engineEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Geocoder   geocode.Client
	Normalizer *normalize.Normalizer
	geoPool    *pgxpool.Pool
}

func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.geoPool != nil {
		e.geoPool.Close()
	}
}

// canonicalIndex adapts the loaded canonical provider table to the small
// lookup interfaces the Ensemble Scorer needs. The canonical provider table
// carries no per-entry state, so StateOf always reports unknown — the
// cross-state fuzzy-match guard the scorer supports has no data to key off
// in this deployment, a limitation carried from the source table rather
// than this adapter.
type canonicalIndex struct {
	byEIAID map[int]string
}

func newCanonicalIndex(providers map[string]lookup.CanonicalProvider) *canonicalIndex {
	idx := &canonicalIndex{byEIAID: map[int]string{}}
	for key, cp := range providers {
		if cp.EIAID != 0 {
			idx.byEIAID[cp.EIAID] = key
		}
	}
	return idx
}

func (c *canonicalIndex) ByEIAID(eiaID int) (string, bool) {
	id, ok := c.byEIAID[eiaID]
	return id, ok
}

func (c *canonicalIndex) StateOf(string) (string, bool) {
	return "", false
}

// Contact is always empty: phone/website are attached later, from the
// provider catalog match, not from the canonical provider table.
func (c *canonicalIndex) Contact(string, lookup.UtilityType) (string, string) {
	return "", ""
}

func readLowercaseSet(path string) (map[string]bool, error) {
	if path == "" {
		return map[string]bool{}, nil
	}
	names, err := sources.ReadStringList(path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return set, nil
}

// storeDSN prefers the legacy DATABASE_URL override over the
// structured store.sqlite_path config value, matching how POSTGIS_URL
// overrides the spatial backend below.
func storeDSN() string {
	if cfg.Store.DatabaseURL != "" {
		return cfg.Store.DatabaseURL
	}
	if cfg.Store.SQLitePath != "" {
		return cfg.Store.SQLitePath
	}
	return "data/store.db"
}

// initStore opens the embedded SQLite database backing the result cache,
// batch checkpoints, the dead-letter queue, address corrections, and the
// catalog override table — one file, several schemas.
func initStore(_ context.Context) (*store.SQLiteStore, error) {
	return store.NewSQLite(storeDSN())
}

// initGeospatial selects the PostGIS-backed territory store when
// cfg.Store.PostgisURL is set, otherwise an empty in-memory bounding-box
// store (not an R-tree) that the caller fills from shapefiles.
func initGeospatial(ctx context.Context) (geospatial.Store, *pgxpool.Pool, error) {
	if cfg.Store.PostgisURL == "" {
		zap.L().Info("geospatial: postgis_url not set, using in-memory spatial store")
		return geospatial.NewMemoryStore(), nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.Store.PostgisURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "geospatial: connect postgis")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, eris.Wrap(err, "geospatial: ping postgis")
	}
	return geospatial.NewPostgresStore(pool), pool, nil
}

// initEngine wires the store, normalizer, scorer, every tabular source
// adapter, state GIS client, catalog matcher, and geocoder into one
// Pipeline, following a shared engine/pipelineEnv shape.
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	spatial, geoPool, err := initGeospatial(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	// Fill the in-memory backend; a shapefile that cannot be read leaves its utility type empty.
	if mem, ok := spatial.(*geospatial.MemoryStore); ok {
		for _, job := range shapefileJobs {
			path, err := resolveShapefilePath(ctx, job.pathFn(), job.urlFn())
			if err == nil && path != "" {
				polygons, geoms, loadErr := geospatial.LoadShapefile(path, job.utilityType, job.fields, job.source)
				if err = loadErr; err == nil {
					mem.Load(job.utilityType, polygons, geoms)
				}
			}
			if err != nil {
				zap.L().Warn("geospatial: territory shapefile not loaded", zap.String("utility_type", string(job.utilityType)), zap.Error(err))
			}
		}
	}

	var canonicalProviders map[string]lookup.CanonicalProvider
	if err := sources.ReadJSONInto(cfg.Data.CanonicalProvidersPath, &canonicalProviders); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load canonical providers")
	}
	holdingCompanies, err := readLowercaseSet(cfg.Data.HoldingCompaniesPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load holding companies")
	}
	repNames, err := readLowercaseSet(cfg.Data.RepNamesPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load rep names")
	}
	normalizer, err := normalize.New(canonicalProviders, holdingCompanies, repNames)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build normalizer")
	}

	largeIOU, err := readLowercaseSet(cfg.Data.LargeIOUNamesPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load large IOU names")
	}
	localWhitelist, err := readLowercaseSet(cfg.Data.LocalUtilityWhitelistPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load local utility whitelist")
	}

	idx := newCanonicalIndex(canonicalProviders)
	sc := scorer.New(normalizer, idx, idx, idx, largeIOU, cfg.Cache.MaxConfidence)

	corrections, err := sources.NewCorrections(st.DB())
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init corrections")
	}

	stateGISEndpoints, err := stategis.LoadRegistry(cfg.Data.StateGISRegistryPath, cfg.StateGIS.TimeoutSeconds, cfg.StateGIS.RateLimitPerSecond)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load state gis registry")
	}
	breakerCfg := resilience.FromCircuitConfig(cfg.StateGIS.FailureThreshold, cfg.StateGIS.ResetTimeoutSeconds)
	stateGIS := stategis.New(stateGISEndpoints, breakerCfg)

	gasZip, err := sources.LoadGasZip(cfg.Data.GasZipPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	georgiaEMC, err := sources.LoadGeorgiaEMC(cfg.Data.GeorgiaEMCPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	countyGas, err := sources.LoadCountyGas(cfg.Data.CountyGasPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	remainingStates, err := sources.LoadRemainingStatesZip(cfg.Data.RemainingStatesZipPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	specialDistricts, err := sources.LoadSpecialDistricts(cfg.Data.SpecialDistrictsPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	eiaZip, err := sources.LoadEIAZip(cfg.Data.EIAZipPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	findEnergy, err := sources.LoadFindEnergyCity(cfg.Data.FindEnergyCityPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	stateGasDefault, err := sources.LoadStateGasDefault(cfg.Data.StateGasDefaultPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var catalogMatcher *catalog.Matcher
	if cfg.Data.CatalogPath != "" {
		rows, err := catalog.LoadRowsFromCSV(cfg.Data.CatalogPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load catalog")
		}
		catalogMatcher, err = catalog.New(st.DB(), rows)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "init catalog matcher")
		}
		zap.L().Info("catalog loaded", zap.Int("rows", len(rows)))
	}

	p := pipeline.New(pipeline.Pipeline{
		Corrections:           corrections,
		StateGIS:              stateGIS,
		GasZip:                gasZip,
		GeorgiaEMC:            georgiaEMC,
		CountyGas:             countyGas,
		Spatial:               spatial,
		RemainingStatesZip:    remainingStates,
		SpecialDistricts:      specialDistricts,
		EIAZip:                eiaZip,
		FindEnergy:            findEnergy,
		StateGasDefault:       stateGasDefault,
		Scorer:                sc,
		Catalog:               catalogMatcher,
		LargeIOUNames:         largeIOU,
		LocalUtilityWhitelist: localWhitelist,
	})

	geocoderOpts := []geocode.Option{geocode.WithRateLimit(50)}
	if cfg.Geocoder.GoogleAPIKey != "" {
		geocoderOpts = append(geocoderOpts, geocode.WithGoogleAPIKey(cfg.Geocoder.GoogleAPIKey))
	}
	geocoder := geocode.NewClient(geocoderOpts...)

	return &engineEnv{
		Store:      st,
		Pipeline:   p,
		Geocoder:   geocoder,
		Normalizer: normalizer,
		geoPool:    geoPool,
	}, nil
}
