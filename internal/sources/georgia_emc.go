package sources

import "strings"

// GeorgiaEMC resolves Georgia electric membership cooperatives by county —
// HIFLD's polygons for Georgia's EMC territories are unreliable along
// county lines, so this adapter ships a direct county→EMC table instead.
// A county served by exactly one EMC scores higher than one split between
// several, where the table records every candidate but confidence reflects
// the ambiguity.
type GeorgiaEMC struct {
	byCounty map[string][]GeorgiaEMCEntry
}

// GeorgiaEMCEntry is one EMC serving (part of) a Georgia county.
type GeorgiaEMCEntry struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// NewGeorgiaEMC builds the adapter from the decoded county table.
func NewGeorgiaEMC(byCounty map[string][]GeorgiaEMCEntry) *GeorgiaEMC {
	return &GeorgiaEMC{byCounty: byCounty}
}

// Lookup returns every EMC candidate for a Georgia county; the pipeline may
// emit more than one candidate when a county is split among EMCs.
func (g *GeorgiaEMC) Lookup(county string) []Candidate {
	entries, ok := g.byCounty[normalizeCounty(county)]
	if !ok {
		return nil
	}
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, Candidate{Name: e.Name, PolygonSource: "georgia_emc", Confidence: e.Confidence, State: "GA"})
	}
	return out
}

func normalizeCounty(county string) string {
	c := strings.ToLower(strings.TrimSpace(county))
	c = strings.TrimSuffix(c, " county")
	return c
}
