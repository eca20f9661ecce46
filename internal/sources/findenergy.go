package sources

import "strings"

// FindEnergyCity resolves electric or gas providers by state+city, scraped
// from FindEnergy.com's city-level utility directory — the lowest-priority
// source ahead of only the state gas default, used mainly for small
// municipalities neither HIFLD nor any ZIP table covers.
type FindEnergyCity struct {
	byStateCityUtility map[string]string
}

// NewFindEnergyCity builds the adapter, keyed "STATE|city|utility_type".
// Keys are lowercased here, so the state may be given in either case.
func NewFindEnergyCity(table map[string]string) *FindEnergyCity {
	lowered := make(map[string]string, len(table))
	for k, v := range table {
		lowered[strings.ToLower(k)] = v
	}
	return &FindEnergyCity{byStateCityUtility: lowered}
}

func (f *FindEnergyCity) Lookup(state, city, utilityType string) *Candidate {
	key := normalizeCounty(state) + "|" + normalizeCounty(city) + "|" + utilityType
	name, ok := f.byStateCityUtility[key]
	if !ok {
		return nil
	}
	return &Candidate{Name: name, PolygonSource: "findenergy_city", Confidence: 0.65, State: state}
}
