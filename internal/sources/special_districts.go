package sources

// SpecialDistricts resolves water-only special districts (municipal
// utility districts, water control and improvement districts) by ZIP,
// for areas too small or too new for a HIFLD water shapefile entry.
type SpecialDistricts struct {
	byZip map[string]string
}

// NewSpecialDistricts builds the adapter from the decoded ZIP table.
func NewSpecialDistricts(byZip map[string]string) *SpecialDistricts {
	return &SpecialDistricts{byZip: byZip}
}

// Lookup returns the water special district assigned to zip, or nil.
// Confidence is fixed at 0.82 — this adapter only applies to water.
func (s *SpecialDistricts) Lookup(zip string) *Candidate {
	name, ok := s.byZip[normalizeZip5(zip)]
	if !ok {
		return nil
	}
	return &Candidate{Name: name, PolygonSource: "special_district", Confidence: 0.82}
}
