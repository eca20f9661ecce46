package sources

import "strings"

// StateGasDefault is the last-resort gas adapter: one provider name per
// state, used only when every more specific gas source came up empty.
// Confidence varies because some states genuinely have one dominant
// incumbent (high confidence) while others are a guess among several
// regional players (low confidence).
type StateGasDefault struct {
	byState map[string]StateGasEntry
}

// StateGasEntry is one state's default gas provider assignment.
type StateGasEntry struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// NewStateGasDefault builds the adapter from the decoded state table.
// Keys are lowercased here, so the state may be given in either case.
func NewStateGasDefault(byState map[string]StateGasEntry) *StateGasDefault {
	table := make(map[string]StateGasEntry, len(byState))
	for k, v := range byState {
		table[strings.ToLower(k)] = v
	}
	return &StateGasDefault{byState: table}
}

func (s *StateGasDefault) Lookup(state string) *Candidate {
	entry, ok := s.byState[normalizeCounty(state)]
	if !ok {
		return nil
	}
	return &Candidate{Name: entry.Name, PolygonSource: "state_gas_default", Confidence: entry.Confidence, State: state}
}
