// Package pipeline orchestrates the per-utility-type provider resolution:
// collect candidates from every applicable data source, deduplicate,
// arbitrate overlapping polygons, select a primary, cross-verify, and
// assemble the final result with alternatives and a catalog match.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/catalog"
	"github.com/sells-group/utility-lookup/internal/geospatial"
	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/scorer"
	"github.com/sells-group/utility-lookup/internal/sources"
	"github.com/sells-group/utility-lookup/internal/stategis"
)

// Input bundles the geocoded location and address components the pipeline
// needs to run every source for one utility type.
type Input struct {
	Lat         float64
	Lon         float64
	State       string
	Zip         string
	City        string
	County      string
	RawAddress  string
	UtilityType lookup.UtilityType
}

// Pipeline wires every collaborator C7 orchestrates. Nil collaborator
// fields are treated as "this source is not configured" and skipped —
// not every deployment wires every adapter (e.g. a water-only install has
// no Georgia EMC table).
type Pipeline struct {
	Corrections        *sources.Corrections
	StateGIS           *stategis.Client
	GasZip             *sources.GasZipMap
	GeorgiaEMC         *sources.GeorgiaEMC
	CountyGas          *sources.CountyGas
	Spatial            geospatial.Store
	RemainingStatesZip *sources.RemainingStatesZip
	SpecialDistricts   *sources.SpecialDistricts
	EIAZip             *sources.EIAZip
	FindEnergy         *sources.FindEnergyCity
	StateGasDefault    *sources.StateGasDefault

	Scorer  *scorer.Scorer
	Catalog *catalog.Matcher

	WaterKeywords      []string
	LargeIOUNames      map[string]bool // lowercase display name -> true
	LocalUtilityWhitelist map[string]bool
	LowQualitySources  map[string]bool
}

func defaultWaterKeywords() []string {
	return []string{"water", "utility", "utilities", "municipal", "district", "mud", "wsc", "authority",
		"commission", "board", "department", "dept", "works", "system", "sud"}
}

// New builds a Pipeline, filling in conservative defaults for the keyword
// sets a caller didn't supply.
func New(p Pipeline) *Pipeline {
	if len(p.WaterKeywords) == 0 {
		p.WaterKeywords = defaultWaterKeywords()
	}
	if p.LargeIOUNames == nil {
		p.LargeIOUNames = map[string]bool{}
	}
	if p.LocalUtilityWhitelist == nil {
		p.LocalUtilityWhitelist = map[string]bool{}
	}
	if p.LowQualitySources == nil {
		p.LowQualitySources = map[string]bool{"findenergy_city": true, "state_gas_default": true}
	}
	return &p
}

// rawCandidate is the pre-scoring shape every source collapses to before
// the Ensemble Scorer assigns a canonical identity and confidence.
type rawCandidate struct {
	name        string
	source      string
	confidence  float64
	floor       float64
	eiaID       int
	areaKM2     float64
	controlArea string
	shapeType   lookup.ShapeType
	state       string
}

// score invokes the Ensemble Scorer for name normalization and deregulation
// detection, then reconciles the scorer's match-quality confidence with the
// source adapter's own declared authority: the higher of the two wins, and
// an explicit floor (state GIS's 0.90) is applied last. A weak adapter
// backing an exact canonical-name match should not be penalized down to the
// adapter's authority number, and a highly authoritative adapter (a human
// correction) should not be capped by the scorer's name-quality table.
func (p *Pipeline) score(in Input, raw rawCandidate) lookup.CandidateProvider {
	cp := p.Scorer.Resolve(scorer.Input{
		RawName:       raw.name,
		EIAID:         raw.eiaID,
		State:         firstNonEmpty(raw.state, in.State),
		UtilityType:   in.UtilityType,
		PolygonSource: raw.source,
		AreaKM2:       raw.areaKM2,
		ControlArea:   raw.controlArea,
		ShapeType:     raw.shapeType,
	})
	if raw.confidence > cp.Confidence {
		cp.Confidence = raw.confidence
	}
	if raw.floor > 0 && cp.Confidence < raw.floor {
		cp.Confidence = raw.floor
	}
	return cp
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Resolve runs the full C7 pipeline for one utility type and returns the
// assembled result, or nil if no source produced a candidate.
func (p *Pipeline) Resolve(ctx context.Context, in Input) (*lookup.ProviderResult, error) {
	candidates, forcedPrimary := p.collect(ctx, in)
	if len(candidates) == 0 {
		return nil, nil
	}

	deduped := dedup(candidates)

	var primary lookup.CandidateProvider
	var rest []lookup.CandidateProvider
	if forcedPrimary != nil {
		primary = *forcedPrimary
		for _, c := range deduped {
			if c.DisplayName != primary.DisplayName {
				rest = append(rest, c)
			}
		}
	} else {
		primary, rest = p.selectPrimary(deduped, in.UtilityType)
	}

	primary = p.crossVerify(primary, in)

	result := &lookup.ProviderResult{
		CandidateProvider: primary,
		NeedsReview:       primary.Confidence < lookup.NeedsReviewThreshold,
	}
	result.Alternatives = buildAlternatives(primary, rest)

	if p.Catalog != nil {
		match, err := p.Catalog.Match(ctx, primary.DisplayName, in.UtilityType, in.State)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: catalog match")
		}
		result.CatalogID = match.ID
		result.CatalogTitle = match.Title
		result.IDMatchScore = match.MatchScore
		result.IDConfident = match.Confident
		if result.Phone == "" {
			result.Phone = match.Phone
		}
		attachAltCatalogIDs(ctx, p.Catalog, result.Alternatives, in.UtilityType, in.State)
	}

	return result, nil
}

func attachAltCatalogIDs(ctx context.Context, m *catalog.Matcher, alts []lookup.Alternative, ut lookup.UtilityType, state string) {
	for i := range alts {
		match, err := m.Match(ctx, alts[i].Provider, ut, state)
		if err != nil || !match.Confident {
			continue
		}
		alts[i].CatalogID = match.ID
	}
}

func buildAlternatives(primary lookup.CandidateProvider, rest []lookup.CandidateProvider) []lookup.Alternative {
	var alts []lookup.Alternative
	for _, c := range rest {
		if c.DisplayName == primary.DisplayName {
			continue
		}
		alts = append(alts, lookup.Alternative{
			Provider:   c.DisplayName,
			Confidence: c.Confidence,
			Source:     c.PolygonSource,
			EIAID:      c.EIAID,
		})
		if len(alts) == 4 {
			break
		}
	}
	return alts
}

// collect runs every applicable source in priority order and
// scores each raw hit. Corrections short-circuit the primary slot but the
// remaining sources still run so their candidates can surface as
// alternatives.
func (p *Pipeline) collect(ctx context.Context, in Input) (cands []lookup.CandidateProvider, forcedPrimary *lookup.CandidateProvider) {
	add := func(raw rawCandidate) lookup.CandidateProvider {
		cp := p.score(in, raw)
		cands = append(cands, cp)
		return cp
	}

	// P0: corrections by address, then by ZIP.
	if p.Corrections != nil {
		if c, err := p.Corrections.ByAddress(ctx, in.RawAddress, in.UtilityType); err == nil && c != nil {
			cp := add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
			forcedPrimary = &cp
		} else if in.Zip != "" {
			if c, err := p.Corrections.ByZip(ctx, in.Zip, in.UtilityType); err == nil && c != nil {
				cp := add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
				forcedPrimary = &cp
			}
		}
	}

	// P1: state GIS, with the water-keyword filter and confidence floor.
	if p.StateGIS != nil && p.StateGIS.HasEndpoint(in.State, in.UtilityType) {
		if res, err := p.StateGIS.Query(ctx, in.Lon, in.Lat, in.State, in.UtilityType); err == nil && res != nil {
			name := res.ProviderName
			if in.UtilityType == lookup.UtilityWater && !containsAny(strings.ToLower(name), p.WaterKeywords) {
				if in.City != "" {
					name = "City of " + in.City
				} else {
					name = ""
				}
			}
			if name != "" {
				add(rawCandidate{name: name, source: "state_gis", state: in.State, floor: 0.90})
			}
		}
	}

	// P2: gas ZIP mapping.
	if in.UtilityType == lookup.UtilityGas && p.GasZip != nil {
		if c := p.GasZip.Lookup(in.Zip); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P2.5: Georgia EMC, may emit multiple candidates.
	if in.UtilityType == lookup.UtilityElectric && strings.EqualFold(in.State, "GA") && p.GeorgiaEMC != nil {
		for _, c := range p.GeorgiaEMC.Lookup(in.County) {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P2.7: county gas.
	if in.UtilityType == lookup.UtilityGas && p.CountyGas != nil {
		if c := p.CountyGas.Lookup(in.State, in.County, in.City); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P3: spatial index, with overlap arbitration folded into one candidate.
	if p.Spatial != nil {
		if cp, ok := p.spatialCandidate(ctx, in); ok {
			cands = append(cands, cp)
		}
	}

	// P3.5: remaining-states ZIP table.
	if p.RemainingStatesZip != nil {
		if c := p.RemainingStatesZip.Lookup(in.State, in.Zip, string(in.UtilityType)); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P3.7: special districts, water only.
	if in.UtilityType == lookup.UtilityWater && p.SpecialDistricts != nil {
		if c := p.SpecialDistricts.Lookup(in.Zip); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P4: EIA ZIP, electric only.
	if in.UtilityType == lookup.UtilityElectric && p.EIAZip != nil {
		if c := p.EIAZip.Lookup(in.Zip); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P5: FindEnergy city, electric and gas.
	if (in.UtilityType == lookup.UtilityElectric || in.UtilityType == lookup.UtilityGas) && p.FindEnergy != nil {
		if c := p.FindEnergy.Lookup(in.State, in.City, string(in.UtilityType)); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	// P6: state gas default, gas only.
	if in.UtilityType == lookup.UtilityGas && p.StateGasDefault != nil {
		if c := p.StateGasDefault.Lookup(in.State); c != nil {
			add(rawCandidate{name: c.Name, source: c.PolygonSource, confidence: c.Confidence, state: c.State})
		}
	}

	return cands, forcedPrimary
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// spatialCandidate queries the spatial index and, when more than one
// polygon contains the point, arbitrates down to a single winner before
// scoring — arbitration happens inside this source's slot, not
// across the whole candidate pool.
func (p *Pipeline) spatialCandidate(ctx context.Context, in Input) (lookup.CandidateProvider, bool) {
	polys, err := p.Spatial.QueryPoint(ctx, in.Lon, in.Lat, in.UtilityType)
	if err != nil || len(polys) == 0 {
		return lookup.CandidateProvider{}, false
	}
	winner := p.arbitrate(polys, in.UtilityType, in.State)
	cp := p.score(in, rawCandidate{
		name:        winner.Name,
		source:      "spatial_index",
		eiaID:       winner.EIAID,
		areaKM2:     winner.AreaKM2,
		controlArea: winner.ControlArea,
		shapeType:   winner.Type,
		state:       winner.State,
	})
	return cp, true
}

// arbitrate resolves overlapping polygons. Polygons arrive sorted by area ascending
// (the spatial index's contract), which several branches rely on directly.
func (p *Pipeline) arbitrate(polys []lookup.TerritoryPolygon, ut lookup.UtilityType, state string) lookup.TerritoryPolygon {
	if len(polys) == 1 {
		return polys[0]
	}
	switch ut {
	case lookup.UtilityWater:
		return polys[0] // smallest containing polygon wins
	case lookup.UtilityGas:
		return arbitrateGas(polys, state)
	case lookup.UtilityElectric:
		if strings.EqualFold(state, "TX") {
			return p.arbitrateTexasElectric(polys)
		}
		return p.arbitrateElectric(polys)
	default:
		return polys[0]
	}
}

func arbitrateGas(polys []lookup.TerritoryPolygon, state string) lookup.TerritoryPolygon {
	for _, poly := range polys {
		if strings.EqualFold(poly.State, state) {
			return poly
		}
	}
	return polys[0]
}

// electricScore weights a candidate polygon by customer count, then applies
// the three adjustments for non-Texas electric arbitration.
func (p *Pipeline) electricScore(poly lookup.TerritoryPolygon) float64 {
	score := float64(poly.CustomerCount)
	if score <= 0 {
		score = 1
	}
	if (poly.Type == lookup.ShapeCooperative || poly.Type == lookup.ShapeMunicipal) && poly.AreaKM2 < 5000 {
		return score * 1e9 // beats any investor-owned polygon outright
	}
	if p.LargeIOUNames[strings.ToLower(poly.Name)] {
		score *= 0.5
	}
	if poly.AreaKM2 > 50000 {
		score *= 0.05 // federal/regional wholesale entity
	}
	return score
}

func (p *Pipeline) arbitrateElectric(polys []lookup.TerritoryPolygon) lookup.TerritoryPolygon {
	best := polys[0]
	bestScore := p.electricScore(best)
	for _, poly := range polys[1:] {
		if s := p.electricScore(poly); s > bestScore {
			bestScore = s
			best = poly
		}
	}
	return best
}

// texasTDUPriority reflects observed HIFLD polygon quality, not market
// share: TNMP's polygon significantly overlaps Oncor's, so without a fixed
// order Oncor addresses get mis-attributed to TNMP.
var texasTDUPriority = []string{
	"centerpoint energy", "aep texas central", "aep texas north", "oncor", "tnmp", "lubbock power & light",
}

func (p *Pipeline) arbitrateTexasElectric(polys []lookup.TerritoryPolygon) lookup.TerritoryPolygon {
	for _, poly := range polys {
		if (poly.Type == lookup.ShapeCooperative || poly.Type == lookup.ShapeMunicipal) && poly.AreaKM2 < 5000 {
			return poly
		}
	}
	for _, tdu := range texasTDUPriority {
		for _, poly := range polys {
			if strings.Contains(strings.ToLower(poly.Name), tdu) {
				return poly
			}
		}
	}
	return polys[0]
}

// dedup groups by canonical id (or uppercased display
// name when absent), keep the highest-confidence member of each group, and
// boost groups that drew agreement from more than one source.
func dedup(cands []lookup.CandidateProvider) []lookup.CandidateProvider {
	type group struct {
		best    lookup.CandidateProvider
		sources map[string]bool
	}
	groups := make(map[string]*group)
	var order []string

	keyOf := func(c lookup.CandidateProvider) string {
		if c.CanonicalID != "" {
			return "id:" + c.CanonicalID
		}
		return "name:" + strings.ToUpper(c.DisplayName)
	}

	for _, c := range cands {
		k := keyOf(c)
		g, ok := groups[k]
		if !ok {
			g = &group{best: c, sources: map[string]bool{}}
			groups[k] = g
			order = append(order, k)
		}
		g.sources[baseSource(c.PolygonSource)] = true
		if c.Confidence > g.best.Confidence {
			g.best = c
		}
	}

	out := make([]lookup.CandidateProvider, 0, len(order))
	for _, k := range order {
		g := groups[k]
		n := len(g.sources)
		cp := g.best
		if n > 1 {
			boost := 0.05 * float64(n-1)
			if boost > 0.10 {
				boost = 0.10
			}
			cp.Confidence += boost
			if cp.Confidence > 1 {
				cp.Confidence = 1
			}
			cp.PolygonSource = fmt.Sprintf("%s +%d agree", cp.PolygonSource, n-1)
		}
		out = append(out, cp.WithSourceCount(n))
	}
	return out
}

func baseSource(tag string) string {
	if i := strings.Index(tag, " +"); i >= 0 {
		return tag[:i]
	}
	return tag
}

var localUtilityKeywords = []string{"cooperative", "co-op", "municipal", "city of", "emc", "pud"}

func looksLocalUtility(name string, whitelist map[string]bool) bool {
	lower := strings.ToLower(name)
	if whitelist[lower] {
		return true
	}
	return containsAny(lower, localUtilityKeywords)
}

// selectPrimary sorts by confidence descending, then
// demote a large-IOU provisional primary in favor of a qualifying local
// utility already present among the remaining candidates.
func (p *Pipeline) selectPrimary(deduped []lookup.CandidateProvider, ut lookup.UtilityType) (primary lookup.CandidateProvider, rest []lookup.CandidateProvider) {
	sorted := append([]lookup.CandidateProvider(nil), deduped...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) == 0 {
		return lookup.CandidateProvider{}, nil
	}
	primary = sorted[0]
	rest = sorted[1:]

	if ut != lookup.UtilityElectric || !p.LargeIOUNames[strings.ToLower(primary.DisplayName)] {
		return primary, rest
	}

	for i, cand := range rest {
		if !looksLocalUtility(cand.DisplayName, p.LocalUtilityWhitelist) {
			continue
		}
		if cand.Confidence < 0.70 {
			continue
		}
		if p.LowQualitySources[baseSource(cand.PolygonSource)] {
			continue
		}
		newRest := make([]lookup.CandidateProvider, 0, len(rest))
		newRest = append(newRest, rest[:i]...)
		newRest = append(newRest, primary)
		newRest = append(newRest, rest[i+1:]...)
		return cand, newRest
	}
	return primary, rest
}

// ResolveSewer handles sewer, which has no polygon source of its own,
// so it inherits from the water result through a four-step catalog-match
// cascade, falling back to the water provider's bare name if nothing in
// the sewer catalog matches well enough.
func (p *Pipeline) ResolveSewer(ctx context.Context, waterPrimary *lookup.ProviderResult, city, county string) (*lookup.ProviderResult, error) {
	if p.Catalog == nil {
		return nil, nil
	}

	if waterPrimary != nil {
		match, err := p.Catalog.Match(ctx, waterPrimary.DisplayName, lookup.UtilitySewer, waterPrimary.State)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: sewer catalog match against water name")
		}
		if match.MatchScore >= 80 {
			conf := waterPrimary.Confidence + 0.05
			if conf > 0.88 {
				conf = 0.88
			}
			return sewerResult(match, conf, "water_inheritance"), nil
		}
	}

	if city != "" {
		for _, candidate := range []string{"City of " + city, city + " Sewer", city + " Utilities"} {
			match, err := p.Catalog.Match(ctx, candidate, lookup.UtilitySewer, "")
			if err != nil {
				return nil, eris.Wrap(err, "pipeline: sewer catalog match against city name")
			}
			if match.MatchScore >= 75 {
				return sewerResult(match, 0.82, "sewer_city_catalog"), nil
			}
		}
	}

	if county != "" {
		match, err := p.Catalog.Match(ctx, county+" County Sanitary", lookup.UtilitySewer, "")
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: sewer catalog match against county name")
		}
		if match.MatchScore >= 70 {
			return sewerResult(match, 0.75, "sewer_county_catalog"), nil
		}
	}

	if waterPrimary != nil {
		cp := lookup.CandidateProvider{
			DisplayName: waterPrimary.DisplayName,
			UtilityType: lookup.UtilitySewer,
			Confidence:  0.50,
			MatchMethod: lookup.MatchPassthrough,
			PolygonSource: "water_inheritance_fallback",
		}
		return &lookup.ProviderResult{CandidateProvider: cp, NeedsReview: true}, nil
	}

	return nil, nil
}

func sewerResult(match catalog.MatchResult, confidence float64, source string) *lookup.ProviderResult {
	cp := lookup.CandidateProvider{
		DisplayName:   match.Title,
		UtilityType:   lookup.UtilitySewer,
		Confidence:    confidence,
		MatchMethod:   lookup.MatchExact,
		PolygonSource: source,
		Phone:         match.Phone,
	}
	return &lookup.ProviderResult{
		CandidateProvider: cp,
		NeedsReview:       confidence < lookup.NeedsReviewThreshold,
		CatalogID:         match.ID,
		CatalogTitle:      match.Title,
		IDMatchScore:      match.MatchScore,
		IDConfident:       match.Confident,
	}
}

// crossVerify adjusts the primary's confidence against
// the EIA ZIP verifier, skipped when the primary already came from a
// correction or from the EIA ZIP source itself.
func (p *Pipeline) crossVerify(primary lookup.CandidateProvider, in Input) lookup.CandidateProvider {
	if in.UtilityType != lookup.UtilityElectric || p.EIAZip == nil {
		return primary
	}
	switch baseSource(primary.PolygonSource) {
	case "correction_address", "correction_zip", "eia_zip":
		return primary
	}
	adj := p.EIAZip.Verify(primary.DisplayName, in.Zip)
	conf := primary.Confidence + adj
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	primary.Confidence = conf
	return primary
}
