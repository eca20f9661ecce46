package sources

import "strings"

// CountyGasEntry is a gas provider assigned to a state+county, optionally
// overridden for specific cities within that county.
type CountyGasEntry struct {
	Name          string             `json:"name"`
	Confidence    float64            `json:"confidence"`
	CityOverrides map[string]string  `json:"city_overrides,omitempty"`
}

// CountyGas resolves natural-gas distributors by state+county for the
// handful of states where that granularity is accurate and HIFLD/ZIP data
// isn't. A city-level override beats the county default when present.
type CountyGas struct {
	byStateCounty map[string]CountyGasEntry
}

// NewCountyGas builds the adapter from the decoded state+county table,
// keyed "STATE|county". Keys are lowercased here, so the state may be
// given in either case.
func NewCountyGas(byStateCounty map[string]CountyGasEntry) *CountyGas {
	table := make(map[string]CountyGasEntry, len(byStateCounty))
	for k, v := range byStateCounty {
		table[strings.ToLower(k)] = v
	}
	return &CountyGas{byStateCounty: table}
}

func (c *CountyGas) Lookup(state, county, city string) *Candidate {
	key := stateCountyKey(state, county)
	entry, ok := c.byStateCounty[key]
	if !ok {
		return nil
	}
	name := entry.Name
	source := "county_gas"
	confidence := entry.Confidence
	if city != "" {
		if override, ok := entry.CityOverrides[normalizeCounty(city)]; ok {
			name = override
			source = "county_gas_city"
			if confidence < 0.88 {
				confidence = 0.88
			}
		}
	}
	return &Candidate{Name: name, PolygonSource: source, Confidence: confidence, State: state}
}

func stateCountyKey(state, county string) string {
	return normalizeCounty(state) + "|" + normalizeCounty(county)
}
