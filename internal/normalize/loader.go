package normalize

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "normalize: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "normalize: unmarshal %s", path)
	}
	return nil
}

// readStringSet loads a JSON array of strings into a lowercase membership
// set, the shape the holding-company and REP reference files ship in.
func readStringSet(path string) (map[string]bool, error) {
	if path == "" {
		return map[string]bool{}, nil
	}
	var names []string
	if err := readJSONFile(path, &names); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[normalizeKey(n)] = true
	}
	return set, nil
}

// LoadParentGroups reads the curated canonical-id-to-parent-group map the
// batch validator uses to classify cross-subsidiary agreement as
// MATCH_PARENT rather than MISMATCH. An empty path yields a nil map, which
// validate.Validator treats as "no parent-group data configured".
func LoadParentGroups(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	var groups map[string]string
	if err := readJSONFile(path, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// LoadFromFiles builds a Normalizer from the canonical-provider table plus
// the holding-company and retail-energy-provider name lists, each a JSON
// array of strings. canonicalPath is required; the other two may be empty.
func LoadFromFiles(canonicalPath, holdingCompaniesPath, repNamesPath string) (*Normalizer, error) {
	var providers map[string]lookup.CanonicalProvider
	if err := readJSONFile(canonicalPath, &providers); err != nil {
		return nil, err
	}
	holdingCompanies, err := readStringSet(holdingCompaniesPath)
	if err != nil {
		return nil, err
	}
	repNames, err := readStringSet(repNamesPath)
	if err != nil {
		return nil, err
	}
	return New(providers, holdingCompanies, repNames)
}
