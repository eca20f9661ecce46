package sources

import "strings"

// RemainingStatesEntry is a dominance-weighted ZIP-level gas or electric
// provider assignment for states not covered by a more specific adapter.
type RemainingStatesEntry struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // pre-weighted by the loader, 0.65-0.85
}

// RemainingStatesZip is the catch-all ZIP table for states that have
// neither a dedicated adapter (Georgia, county-gas states) nor reliable
// HIFLD coverage.
type RemainingStatesZip struct {
	byStateZipUtility map[string]RemainingStatesEntry
}

// NewRemainingStatesZip builds the adapter, keyed "STATE|zip5|utility_type".
// Keys are lowercased here, so the state may be given in either case.
func NewRemainingStatesZip(table map[string]RemainingStatesEntry) *RemainingStatesZip {
	lowered := make(map[string]RemainingStatesEntry, len(table))
	for k, v := range table {
		lowered[strings.ToLower(k)] = v
	}
	return &RemainingStatesZip{byStateZipUtility: lowered}
}

func (r *RemainingStatesZip) Lookup(state, zip, utilityType string) *Candidate {
	key := normalizeCounty(state) + "|" + normalizeZip5(zip) + "|" + utilityType
	entry, ok := r.byStateZipUtility[key]
	if !ok {
		return nil
	}
	return &Candidate{Name: entry.Name, PolygonSource: "remaining_states_zip", Confidence: entry.Confidence, State: state}
}
