// Package service orchestrates one address through geocoding, the
// resolution pipeline, and the result cache, producing the full
// multi-utility LookupResult the HTTP and CLI surfaces serve.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	internalgeocode "github.com/sells-group/utility-lookup/internal/geocode"
	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/pipeline"
	"github.com/sells-group/utility-lookup/internal/store"
	"github.com/sells-group/utility-lookup/pkg/geocode"
)

// Cache is the subset of store.Store the lookup service needs.
type Cache interface {
	Get(ctx context.Context, addressKey string) (payload []byte, hit bool, err error)
	Put(ctx context.Context, addressKey string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, addressKey string) error
	ClearAll(ctx context.Context) (int, error)
}

// Resolver is the per-utility-type spatial/tabular resolution engine.
// *pipeline.Pipeline satisfies this.
type Resolver interface {
	Resolve(ctx context.Context, in pipeline.Input) (*lookup.ProviderResult, error)
	ResolveSewer(ctx context.Context, waterPrimary *lookup.ProviderResult, city, county string) (*lookup.ProviderResult, error)
}

// Service ties the geocoder, resolution pipeline, and result cache into the
// single-address lookup operation the HTTP and CLI layers both call.
type Service struct {
	Geocoder  geocode.Client
	Resolver  Resolver
	Cache     Cache
	CacheTTL  time.Duration
	SkipWater bool
}

// New builds a Service, defaulting CacheTTL to the 90-day figure the result
// cache is specified around when the caller doesn't set one.
func New(geocoder geocode.Client, resolver Resolver, cache Cache, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 90 * 24 * time.Hour
	}
	return &Service{Geocoder: geocoder, Resolver: resolver, Cache: cache, CacheTTL: cacheTTL}
}

// Lookup resolves every utility type for a raw address string. A geocode
// failure (no match) yields a LookupResult with lat=0, lon=0, and every
// provider field nil rather than an error — the caller distinguishes
// "unresolvable" by inspecting lat/lon. The result is never cached in that
// case since geocode misses are often transient.
func (s *Service) Lookup(ctx context.Context, rawAddress string, noCache bool) (*lookup.LookupResult, error) {
	start := time.Now()
	addressKey := store.AddressKey(rawAddress)

	if !noCache && s.Cache != nil {
		if payload, hit, err := s.Cache.Get(ctx, addressKey); err == nil && hit {
			var cached lookup.LookupResult
			if err := json.Unmarshal(payload, &cached); err == nil {
				return &cached, nil
			}
			// deserialize error: fall through and treat as a miss
		}
	}

	geocoded, err := s.Geocoder.Geocode(ctx, geocode.AddressInput{Street: rawAddress})
	if err != nil {
		zap.L().Debug("lookup: geocode failed", zap.Error(err))
		geocoded = &geocode.Result{}
	}
	if geocoded == nil {
		geocoded = &geocode.Result{}
	}

	addr := internalgeocode.FillFromRaw(lookup.GeocodedAddress{
		Lat: geocoded.Latitude,
		Lon: geocoded.Longitude,
	}, rawAddress)

	result := &lookup.LookupResult{
		Address:      rawAddress,
		Lat:          addr.Lat,
		Lon:          addr.Lon,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		LookupTimeMs: 0,
	}

	if !addr.Matched() {
		result.LookupTimeMs = time.Since(start).Milliseconds()
		return result, nil
	}

	base := pipeline.Input{
		Lat:        addr.Lat,
		Lon:        addr.Lon,
		State:      addr.State,
		Zip:        addr.Zip,
		City:       addr.City,
		County:     addr.County,
		RawAddress: rawAddress,
	}

	result.Electric, err = s.resolveOne(ctx, base, lookup.UtilityElectric)
	if err != nil {
		return nil, err
	}
	result.Gas, err = s.resolveOne(ctx, base, lookup.UtilityGas)
	if err != nil {
		return nil, err
	}
	if !s.SkipWater {
		result.Water, err = s.resolveOne(ctx, base, lookup.UtilityWater)
		if err != nil {
			return nil, err
		}
		result.Sewer, err = s.Resolver.ResolveSewer(ctx, result.Water, addr.City, addr.County)
		if err != nil {
			return nil, eris.Wrap(err, "service: resolve sewer")
		}
	}
	result.Internet, err = s.resolveOne(ctx, base, lookup.UtilityInternet)
	if err != nil {
		return nil, err
	}
	// Trash has no data source in this deployment (no trash
	// adapter); the field stays nil rather than fabricating a guess.

	result.LookupTimeMs = time.Since(start).Milliseconds()
	rounded := result.Rounded()

	if !noCache && s.Cache != nil {
		if payload, err := json.Marshal(rounded); err == nil {
			if err := s.Cache.Put(ctx, addressKey, payload, s.CacheTTL); err != nil {
				zap.L().Warn("lookup: cache put failed", zap.Error(err))
			}
		}
	}

	return &rounded, nil
}

func (s *Service) resolveOne(ctx context.Context, base pipeline.Input, ut lookup.UtilityType) (*lookup.ProviderResult, error) {
	in := base
	in.UtilityType = ut
	pr, err := s.Resolver.Resolve(ctx, in)
	if err != nil {
		return nil, eris.Wrapf(err, "service: resolve %s", ut)
	}
	return pr, nil
}

// Invalidate clears the cached result for one address, used by the batch
// validator and the manual re-lookup flow.
func (s *Service) Invalidate(ctx context.Context, rawAddress string) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Invalidate(ctx, store.AddressKey(rawAddress))
}

// ClearCache wipes the entire result cache and reports how many rows it
// removed, backing the `DELETE /cache` endpoint.
func (s *Service) ClearCache(ctx context.Context) (int, error) {
	if s.Cache == nil {
		return 0, nil
	}
	return s.Cache.ClearAll(ctx)
}
