package sources

// GasZipEntry is one row of the gas ZIP-prefix table: a provider assigned
// to either a full 5-digit ZIP or a 3-digit prefix covering a wider area.
// A 5-digit match always outranks a 3-digit one for the same lookup.
type GasZipEntry struct {
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Confidence float64 `json:"confidence"`
}

// GasZipMap resolves natural-gas distributors by postal code, used in
// states where HIFLD has no usable gas-utility shapefile.
type GasZipMap struct {
	byZip5 map[string]GasZipEntry
	byZip3 map[string]GasZipEntry
}

// NewGasZipMap builds the map from the decoded reference tables.
func NewGasZipMap(zip5, zip3 map[string]GasZipEntry) *GasZipMap {
	return &GasZipMap{byZip5: zip5, byZip3: zip3}
}

// Lookup returns the gas provider assigned to zip, preferring a 5-digit
// match over any 3-digit prefix match, or nil if the table has no entry.
func (m *GasZipMap) Lookup(zip string) *Candidate {
	zip5 := normalizeZip5(zip)
	if e, ok := m.byZip5[zip5]; ok {
		return &Candidate{Name: e.Name, PolygonSource: "gas_zip5", Confidence: e.Confidence, State: e.State}
	}
	zip3 := normalizeZip3(zip)
	if e, ok := m.byZip3[zip3]; ok {
		return &Candidate{Name: e.Name, PolygonSource: "gas_zip3", Confidence: e.Confidence, State: e.State}
	}
	return nil
}
