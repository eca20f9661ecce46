package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Geocoder   GeocoderConfig   `yaml:"geocoder" mapstructure:"geocoder"`
	StateGIS   StateGISConfig   `yaml:"state_gis" mapstructure:"state_gis"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig points at the versioned reference-data files loaded once at
// startup: the canonical provider map, the provider-ID catalog, the state
// GIS endpoint registry, and per-adapter tabular sources.
type DataConfig struct {
	CanonicalProvidersPath string `yaml:"canonical_providers_path" mapstructure:"canonical_providers_path"`
	HoldingCompaniesPath   string `yaml:"holding_companies_path" mapstructure:"holding_companies_path"`
	RepNamesPath           string `yaml:"rep_names_path" mapstructure:"rep_names_path"`
	CatalogPath            string `yaml:"catalog_path" mapstructure:"catalog_path"`
	CatalogAliasesPath     string `yaml:"catalog_aliases_path" mapstructure:"catalog_aliases_path"`
	CatalogRebrandsPath    string `yaml:"catalog_rebrands_path" mapstructure:"catalog_rebrands_path"`
	StateGISRegistryPath   string `yaml:"state_gis_registry_path" mapstructure:"state_gis_registry_path"`
	GasZipPath             string `yaml:"gas_zip_path" mapstructure:"gas_zip_path"`
	GeorgiaEMCPath         string `yaml:"georgia_emc_path" mapstructure:"georgia_emc_path"`
	CountyGasPath          string `yaml:"county_gas_path" mapstructure:"county_gas_path"`
	RemainingStatesZipPath string `yaml:"remaining_states_zip_path" mapstructure:"remaining_states_zip_path"`
	SpecialDistrictsPath   string `yaml:"special_districts_path" mapstructure:"special_districts_path"`
	EIAZipPath             string `yaml:"eia_zip_path" mapstructure:"eia_zip_path"`
	FindEnergyCityPath     string `yaml:"findenergy_city_path" mapstructure:"findenergy_city_path"`
	StateGasDefaultPath    string `yaml:"state_gas_default_path" mapstructure:"state_gas_default_path"`
	LargeIOUNamesPath      string `yaml:"large_iou_names_path" mapstructure:"large_iou_names_path"`
	LocalUtilityWhitelistPath string `yaml:"local_utility_whitelist_path" mapstructure:"local_utility_whitelist_path"`
	ParentGroupsPath       string `yaml:"parent_groups_path" mapstructure:"parent_groups_path"`
	ElectricShapefilePath  string `yaml:"electric_shapefile_path" mapstructure:"electric_shapefile_path"`
	GasShapefilePath       string `yaml:"gas_shapefile_path" mapstructure:"gas_shapefile_path"`
	WaterShapefilePath     string `yaml:"water_shapefile_path" mapstructure:"water_shapefile_path"`
	ElectricShapefileURL   string `yaml:"electric_shapefile_url" mapstructure:"electric_shapefile_url"`
	GasShapefileURL        string `yaml:"gas_shapefile_url" mapstructure:"gas_shapefile_url"`
	WaterShapefileURL      string `yaml:"water_shapefile_url" mapstructure:"water_shapefile_url"`
	ShapefileCacheDir      string `yaml:"shapefile_cache_dir" mapstructure:"shapefile_cache_dir"`
}

// StoreConfig configures the spatial index and result-cache backends.
// An empty PostgisURL selects the in-memory spatial backend. The result
// cache is always embedded SQLite: DatabaseURL, when set, is used as its
// DSN in place of SQLitePath.
type StoreConfig struct {
	PostgisURL  string `yaml:"postgis_url" mapstructure:"postgis_url"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	SkipWater   bool   `yaml:"skip_water" mapstructure:"skip_water"`
}

// GeocoderConfig selects and tunes the external geocoding collaborator.
type GeocoderConfig struct {
	Type             string `yaml:"type" mapstructure:"type"` // "census", "google", "cascade"
	GoogleAPIKey     string `yaml:"google_api_key" mapstructure:"google_api_key"`
	BatchConcurrency int    `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	CacheEnabled     bool   `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTLDays     int    `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// StateGISConfig tunes the per-endpoint circuit breaker and timeout guarding
// the state-government ArcGIS/REST lookups.
type StateGISConfig struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSeconds int   `yaml:"reset_timeout_seconds" mapstructure:"reset_timeout_seconds"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second" mapstructure:"rate_limit_per_second"`
}

// CacheConfig tunes the result cache's TTL and confidence ceiling.
type CacheConfig struct {
	TTLDays       int     `yaml:"ttl_days" mapstructure:"ttl_days"`
	MaxConfidence float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
}

// AuthConfig holds the static API keys accepted by the HTTP server. An
// empty list disables auth entirely (with a startup warning).
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// BatchConfig configures the batch validator's geocode and lookup fan-out.
type BatchConfig struct {
	GeocodeWorkers int `yaml:"geocode_workers" mapstructure:"geocode_workers"`
	LookupWorkers  int `yaml:"lookup_workers" mapstructure:"lookup_workers"`
	MaxAddresses   int `yaml:"max_addresses" mapstructure:"max_addresses"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks required configuration fields based on run mode.
// Supported modes: "serve", "batch", "import", "lookup".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if len(c.Auth.APIKeys) == 0 {
			zap.L().Warn("auth disabled: no api keys configured")
		}
	case "batch":
		if c.Data.CanonicalProvidersPath == "" {
			errs = append(errs, "data.canonical_providers_path is required")
		}
	case "import":
		if c.Data.CatalogPath == "" {
			errs = append(errs, "data.catalog_path is required")
		}
	case "lookup":
		// single-address CLI lookup needs nothing beyond the data files,
		// which are validated at load time by the component that reads them.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.GeocodeWorkers < 1 {
		errs = append(errs, "batch.geocode_workers must be >= 1")
	}
	if c.Batch.LookupWorkers < 1 {
		errs = append(errs, "batch.lookup_workers must be >= 1")
	}
	if c.Cache.MaxConfidence <= 0 || c.Cache.MaxConfidence > 1 {
		errs = append(errs, "cache.max_confidence must be between 0.0 and 1.0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from file and environment. Precedence is
// flag > env > file > default, following viper's own layering once cobra
// binds its persistent flags into the same viper instance.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("UTILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data.canonical_providers_path", "configs/canonical_providers.json")
	v.SetDefault("data.holding_companies_path", "configs/holding_companies.json")
	v.SetDefault("data.rep_names_path", "configs/rep_names.json")
	v.SetDefault("data.catalog_path", "configs/catalog.csv")
	v.SetDefault("data.catalog_aliases_path", "configs/catalog_aliases.json")
	v.SetDefault("data.catalog_rebrands_path", "configs/catalog_rebrands.json")
	v.SetDefault("data.state_gis_registry_path", "configs/state_gis_registry.json")
	v.SetDefault("data.gas_zip_path", "configs/gas_zip.json")
	v.SetDefault("data.georgia_emc_path", "configs/georgia_emc.json")
	v.SetDefault("data.county_gas_path", "configs/county_gas.json")
	v.SetDefault("data.remaining_states_zip_path", "configs/remaining_states_zip.json")
	v.SetDefault("data.special_districts_path", "configs/special_districts.json")
	v.SetDefault("data.eia_zip_path", "configs/eia_zip.json")
	v.SetDefault("data.findenergy_city_path", "configs/findenergy_city.json")
	v.SetDefault("data.state_gas_default_path", "configs/state_gas_default.json")
	v.SetDefault("data.large_iou_names_path", "configs/large_iou_names.json")
	v.SetDefault("data.local_utility_whitelist_path", "configs/local_utility_whitelist.json")
	v.SetDefault("data.electric_shapefile_path", "data/shapefiles/electric_retail_service_territories.shp")
	v.SetDefault("data.gas_shapefile_path", "data/shapefiles/natural_gas_service_territories.shp")
	v.SetDefault("data.water_shapefile_path", "data/shapefiles/community_water_system_service_areas.shp")
	v.SetDefault("data.shapefile_cache_dir", "data/shapefiles/downloads")

	v.SetDefault("store.sqlite_path", "data/store.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.skip_water", false)

	v.SetDefault("geocoder.type", "census")
	v.SetDefault("geocoder.batch_concurrency", 5)
	v.SetDefault("geocoder.cache_enabled", true)
	v.SetDefault("geocoder.cache_ttl_days", 90)

	v.SetDefault("state_gis.timeout_seconds", 5)
	v.SetDefault("state_gis.failure_threshold", 5)
	v.SetDefault("state_gis.reset_timeout_seconds", 60)
	v.SetDefault("state_gis.rate_limit_per_second", 10.0)

	v.SetDefault("cache.ttl_days", 90)
	v.SetDefault("cache.max_confidence", 0.99)

	v.SetDefault("batch.geocode_workers", 5)
	v.SetDefault("batch.lookup_workers", 32)
	v.SetDefault("batch.max_addresses", 100)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	applyLegacyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyLegacyEnvOverrides honors the fixed environment variable names the
// CLI contract documents (UTILITY_API_KEYS, GOOGLE_API_KEY, SKIP_WATER,
// POSTGIS_URL, DATABASE_URL) independent of viper's UTILITY_-prefixed
// automatic env binding, since these names predate that prefix convention.
func applyLegacyEnvOverrides(cfg *Config) {
	if keys := os.Getenv("UTILITY_API_KEYS"); keys != "" {
		cfg.Auth.APIKeys = strings.Split(keys, ",")
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.Geocoder.GoogleAPIKey = key
	}
	if skip := os.Getenv("SKIP_WATER"); skip != "" {
		cfg.Store.SkipWater = skip == "1" || strings.EqualFold(skip, "true")
	}
	if url := os.Getenv("POSTGIS_URL"); url != "" {
		cfg.Store.PostgisURL = url
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Store.DatabaseURL = url
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
