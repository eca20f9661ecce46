// Package scorer turns a raw candidate name plus its source context into a
// scored CandidateProvider: normalized identity, confidence, deregulation
// flag, and attached contact metadata.
package scorer

import (
	"strings"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

// Input bundles everything resolve_provider needs about one raw candidate.
type Input struct {
	RawName       string
	EIAID         int
	State         string
	UtilityType   lookup.UtilityType
	PolygonSource string
	AreaKM2       float64
	ControlArea   string
	ShapeType     lookup.ShapeType
}

// ContactLookup resolves phone/website for a canonical id, scoped to a
// utility type so an electric lookup never attaches a water contact for a
// similarly named entity.
type ContactLookup interface {
	Contact(canonicalID string, utilityType lookup.UtilityType) (phone, website string)
}

// eiaIDIndex maps an EIA utility ID to its canonical provider key.
type eiaIDIndex interface {
	ByEIAID(eiaID int) (canonicalID string, ok bool)
}

// stateIndex exposes the canonical state tag for a provider, when one is
// known. Used to reject a fuzzy match across state lines — e.g. a
// "Central Electric" in one state fuzzy-matching a like-named provider
// registered for a different state.
type stateIndex interface {
	StateOf(canonicalID string) (state string, ok bool)
}

// Scorer assigns confidence by match method and detects deregulated
// electric markets.
type Scorer struct {
	normalizer *normalize.Normalizer
	eiaIndex   eiaIDIndex
	states     stateIndex
	contacts   ContactLookup
	maxConfidence float64
	tduNames   map[string]bool // curated large-IOU/TDU names eligible for dereg detection
}

// baseConfidence is the per-match-method confidence table from the scoring
// spec. Water passthrough (0.82) and EIA-id match (0.90) are handled as
// special cases ahead of this table.
var baseConfidence = map[normalize.MatchType]float64{
	normalize.MatchTypeExact:     0.85,
	normalize.MatchTypeFuzzy:     0.75,
	normalize.MatchTypeSubstring: 0.75,
	normalize.MatchTypeNone:      0.60,
}

// New builds a Scorer. maxConfidence clips the final score (typically 0.98).
func New(normalizer *normalize.Normalizer, eiaIndex eiaIDIndex, states stateIndex, contacts ContactLookup, tduNames map[string]bool, maxConfidence float64) *Scorer {
	if maxConfidence <= 0 {
		maxConfidence = 0.98
	}
	return &Scorer{normalizer: normalizer, eiaIndex: eiaIndex, states: states, contacts: contacts, tduNames: tduNames, maxConfidence: maxConfidence}
}

// Resolve implements resolve_provider: raw candidate in, scored
// CandidateProvider out.
func (s *Scorer) Resolve(in Input) lookup.CandidateProvider {
	// Step 1: water short-circuits. The canonical table only covers
	// electric and gas, so water names pass through untouched.
	if in.UtilityType == lookup.UtilityWater {
		cp := lookup.CandidateProvider{
			RawName:       in.RawName,
			DisplayName:   in.RawName,
			UtilityType:   in.UtilityType,
			Confidence:    s.clip(0.82),
			MatchMethod:   lookup.MatchPassthrough,
			PolygonSource: in.PolygonSource,
			State:         in.State,
			AreaKM2:       in.AreaKM2,
		}
		s.attachContact(&cp, "")
		return cp
	}

	// Step 2: EIA ID is authoritative when present and mapped.
	if in.EIAID != 0 && s.eiaIndex != nil {
		if canonicalID, ok := s.eiaIndex.ByEIAID(in.EIAID); ok {
			cp := lookup.CandidateProvider{
				RawName:       in.RawName,
				CanonicalID:   canonicalID,
				DisplayName:   in.RawName,
				EIAID:         in.EIAID,
				UtilityType:   in.UtilityType,
				Confidence:    s.clip(0.90),
				MatchMethod:   lookup.MatchEIAID,
				PolygonSource: in.PolygonSource,
				State:         in.State,
				AreaKM2:       in.AreaKM2,
			}
			s.applyDeregulation(&cp, in)
			s.attachContact(&cp, canonicalID)
			return cp
		}
	}

	// Step 3: normalize and apply state-consistency guards on fuzzy hits.
	// Below 95 similarity a fuzzy match against a provider tagged for a
	// different state is rejected and falls through to passthrough, both
	// below 90 and in [90, 95); at 95 and above the match is kept.
	res := s.normalizer.Normalize(in.RawName)
	if res.MatchType == normalize.MatchTypeFuzzy && res.CanonicalID != "" && s.states != nil {
		if canonicalState, ok := s.states.StateOf(res.CanonicalID); ok && canonicalState != "" && !strings.EqualFold(canonicalState, in.State) {
			if res.Similarity < 90 {
				res = normalize.Result{MatchType: normalize.MatchTypeNone, DisplayName: in.RawName}
			} else if res.Similarity < 95 {
				// [90, 95) requires state agreement, which just failed.
				res = normalize.Result{MatchType: normalize.MatchTypeNone, DisplayName: in.RawName}
			}
		}
	}

	method, confidence := matchResultToMethod(res)
	cp := lookup.CandidateProvider{
		RawName:       in.RawName,
		CanonicalID:   res.CanonicalID,
		DisplayName:   displayName(res),
		UtilityType:   in.UtilityType,
		Confidence:    s.clip(confidence),
		MatchMethod:   method,
		PolygonSource: in.PolygonSource,
		State:         in.State,
		AreaKM2:       in.AreaKM2,
	}
	s.applyDeregulation(&cp, in)
	s.attachContact(&cp, res.CanonicalID)
	return cp
}

func matchResultToMethod(res normalize.Result) (lookup.MatchMethod, float64) {
	switch res.MatchType {
	case normalize.MatchTypeExact:
		return lookup.MatchExact, baseConfidence[normalize.MatchTypeExact]
	case normalize.MatchTypeFuzzy:
		return lookup.MatchFuzzy, baseConfidence[normalize.MatchTypeFuzzy]
	case normalize.MatchTypeSubstring:
		return lookup.MatchSubstring, baseConfidence[normalize.MatchTypeSubstring]
	default:
		return lookup.MatchPassthrough, baseConfidence[normalize.MatchTypeNone]
	}
}

func displayName(res normalize.Result) string {
	if res.DisplayName != "" {
		return res.DisplayName
	}
	return res.MatchedOn
}

func (s *Scorer) clip(confidence float64) float64 {
	if confidence > s.maxConfidence {
		return s.maxConfidence
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}

// lubbockPowerAndLight is the one municipal exception explicitly called
// out as deregulated despite being government-owned.
const lubbockPowerAndLight = "lubbock power & light"

// applyDeregulation marks is_deregulated for electric candidates that sit
// in ERCOT, are investor-owned, and match a known TDU name — with Lubbock
// P&L carved out as an explicit exception.
func (s *Scorer) applyDeregulation(cp *lookup.CandidateProvider, in Input) {
	if in.UtilityType != lookup.UtilityElectric {
		return
	}
	nameKey := strings.ToLower(strings.TrimSpace(cp.DisplayName))
	if nameKey == lubbockPowerAndLight {
		cp.IsDeregulated = true
		cp.DeregulatedNote = "Lubbock P&L opted into ERCOT retail choice"
		return
	}
	if !strings.EqualFold(in.ControlArea, "ERCOT") {
		return
	}
	if in.ShapeType != lookup.ShapeInvestorOwned {
		return
	}
	if !s.tduNames[nameKey] {
		return
	}
	cp.IsDeregulated = true
	cp.DeregulatedNote = "ERCOT deregulated market: delivery by TDU, retail choice applies"
}

func (s *Scorer) attachContact(cp *lookup.CandidateProvider, canonicalID string) {
	if s.contacts == nil || canonicalID == "" {
		return
	}
	phone, website := s.contacts.Contact(canonicalID, cp.UtilityType)
	cp.Phone = phone
	cp.Website = website
}
