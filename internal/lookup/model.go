// Package lookup defines the data model shared by every stage of the
// provider resolution pipeline: geocoded addresses, canonical provider
// identity, candidate providers collected from data sources, and the final
// per-address result.
package lookup

import (
	"math"
	"time"
)

// Address is a raw input string plus whatever components the caller or the
// geocoder managed to extract from it.
type Address struct {
	Raw    string `json:"raw"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
	City   string `json:"city,omitempty"`
	County string `json:"county,omitempty"`
	Street string `json:"street,omitempty"`
}

// GeocodedAddress is produced by the external geocoder collaborator.
// BlockGEOID is the 15-character Census block identifier used by the
// internet lookup source.
type GeocodedAddress struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	Confidence       float64 `json:"confidence"`
	FormattedAddress string  `json:"formatted_address"`
	City             string  `json:"city"`
	State            string  `json:"state"`
	Zip              string  `json:"zip"`
	County           string  `json:"county"`
	BlockGEOID       string  `json:"block_geoid,omitempty"`
}

// Matched reports whether the geocoder found a usable location. A zero
// lat/lon pair is the sentinel for "unresolvable" throughout the pipeline.
func (g GeocodedAddress) Matched() bool {
	return g.Lat != 0 || g.Lon != 0
}

// CanonicalProvider maps a canonical key to its display identity. Aliases
// are case-insensitive match targets; ParentCompany is label-only metadata
// and must never be used as a matching token.
type CanonicalProvider struct {
	Key           string   `json:"key"`
	DisplayName   string   `json:"display_name"`
	Aliases       []string `json:"aliases"`
	ParentCompany string   `json:"parent_company,omitempty"`
	EIAID         int      `json:"eia_id,omitempty"`
	IsWater       bool     `json:"is_water,omitempty"`
}

// UtilityType enumerates the service categories the system resolves.
type UtilityType string

const (
	UtilityElectric UtilityType = "electric"
	UtilityGas      UtilityType = "gas"
	UtilityWater    UtilityType = "water"
	UtilitySewer    UtilityType = "sewer"
	UtilityTrash    UtilityType = "trash"
	UtilityInternet UtilityType = "internet"
)

// ShapeType classifies a territory polygon's ownership structure.
type ShapeType string

const (
	ShapeInvestorOwned ShapeType = "INVESTOR OWNED"
	ShapeCooperative   ShapeType = "COOPERATIVE"
	ShapeMunicipal     ShapeType = "MUNICIPAL"
	ShapePolitical     ShapeType = "POLITICAL"
	ShapeWater         ShapeType = "WATER"
)

// TerritoryPolygon is one row of a spatial table (electric, gas, or water).
// Geometry is carried as WKT/EWKB by the spatial backend and is not
// represented here; this struct is the attribute payload returned to the
// pipeline after a point-in-polygon hit.
type TerritoryPolygon struct {
	Name          string      `json:"name"`
	State         string      `json:"state"`
	Type          ShapeType   `json:"type"`
	AreaKM2       float64     `json:"area_km2"`
	CustomerCount int64       `json:"customer_count,omitempty"`
	EIAID         int         `json:"eia_id,omitempty"`
	PWSID         string      `json:"pwsid,omitempty"`
	HoldingCo     string      `json:"holding_company,omitempty"`
	ControlArea   string      `json:"control_area,omitempty"`
	Source        string      `json:"source"`
	UtilityType   UtilityType `json:"utility_type"`
}

// MatchMethod records how a candidate's name was resolved.
type MatchMethod string

const (
	MatchTenantVerified MatchMethod = "tenant_verified"
	MatchEIAID          MatchMethod = "eia_id"
	MatchExact          MatchMethod = "exact"
	MatchFuzzy          MatchMethod = "fuzzy"
	MatchSubstring      MatchMethod = "substring"
	MatchPassthrough    MatchMethod = "passthrough"
	MatchNone           MatchMethod = "none"
)

// CandidateProvider is the pipeline's internal unit of work: one named
// provider proposed by one data source for one utility type.
type CandidateProvider struct {
	RawName          string      `json:"raw_name"`
	CanonicalID      string      `json:"canonical_id,omitempty"`
	DisplayName      string      `json:"display_name"`
	EIAID            int         `json:"eia_id,omitempty"`
	UtilityType      UtilityType `json:"utility_type"`
	Confidence       float64     `json:"confidence"`
	MatchMethod      MatchMethod `json:"match_method"`
	PolygonSource    string      `json:"polygon_source"`
	State            string      `json:"state,omitempty"`
	AreaKM2          float64     `json:"area_km2,omitempty"`
	IsDeregulated    bool        `json:"is_deregulated,omitempty"`
	DeregulatedNote  string      `json:"deregulated_note,omitempty"`
	Phone            string      `json:"phone,omitempty"`
	Website          string      `json:"website,omitempty"`
	sourceCount      int         // number of distinct sources that agreed, set by dedup
}

// SourceCount returns how many distinct sources contributed to this
// candidate after deduplication. Zero means dedup has not run yet.
func (c CandidateProvider) SourceCount() int { return c.sourceCount }

// WithSourceCount returns a copy of c with the source-agreement count set.
func (c CandidateProvider) WithSourceCount(n int) CandidateProvider {
	c.sourceCount = n
	return c
}

// Alternative is a demoted candidate surfaced alongside the primary result.
type Alternative struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	EIAID      int     `json:"eia_id,omitempty"`
	CatalogID  int     `json:"catalog_id,omitempty"`
}

// ProviderResult is the pipeline's per-utility-type output.
type ProviderResult struct {
	CandidateProvider
	NeedsReview   bool          `json:"needs_review"`
	Alternatives  []Alternative `json:"alternatives,omitempty"`
	CatalogID     int           `json:"catalog_id,omitempty"`
	CatalogTitle  string        `json:"catalog_title,omitempty"`
	IDMatchScore  int           `json:"id_match_score"`
	IDConfident   bool          `json:"id_confident"`
}

// NeedsReviewThreshold is the exact confidence cutoff below which a result
// is flagged for human review.
const NeedsReviewThreshold = 0.70

// LookupResult is the full answer for one address.
type LookupResult struct {
	Address          string          `json:"address"`
	Lat              float64         `json:"lat"`
	Lon              float64         `json:"lon"`
	GeocodeConfidence float64        `json:"geocode_confidence"`
	Electric         *ProviderResult `json:"electric,omitempty"`
	Gas              *ProviderResult `json:"gas,omitempty"`
	Water            *ProviderResult `json:"water,omitempty"`
	Sewer            *ProviderResult `json:"sewer,omitempty"`
	Trash            *ProviderResult `json:"trash,omitempty"`
	Internet         *ProviderResult `json:"internet,omitempty"`
	LookupTimeMs     int64           `json:"lookup_time_ms"`
	Timestamp        string          `json:"timestamp"`
}

// Rounded returns a copy with confidence rounded to 3 decimals and lat/lon
// rounded to 6, matching the serialization contract external consumers of
// this API already rely on.
func (r LookupResult) Rounded() LookupResult {
	round := func(v float64, places int) float64 {
		p := 1.0
		for range places {
			p *= 10
		}
		return math.Round(v*p) / p
	}
	r.Lat = round(r.Lat, 6)
	r.Lon = round(r.Lon, 6)
	for _, pr := range []*ProviderResult{r.Electric, r.Gas, r.Water, r.Sewer, r.Trash, r.Internet} {
		if pr != nil {
			pr.Confidence = round(pr.Confidence, 3)
		}
	}
	return r
}

// Correction is an append-only ground-truth override.
type Correction struct {
	ID                int       `json:"id"`
	Address           string    `json:"address,omitempty"`
	Lat               float64   `json:"lat,omitempty"`
	Lon               float64   `json:"lon,omitempty"`
	Zip               string    `json:"zip,omitempty"`
	State             string    `json:"state"`
	UtilityType       UtilityType `json:"utility_type"`
	CorrectedProvider string    `json:"corrected_provider"`
	CorrectedCatalogID int      `json:"corrected_catalog_id,omitempty"`
	OriginalProvider  string    `json:"original_provider,omitempty"`
	CorrectedBy       string    `json:"corrected_by"`
	CorrectedAt       time.Time `json:"corrected_at"`
	Notes             string    `json:"notes,omitempty"`
}
