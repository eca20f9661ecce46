package stategis

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// endpointFile is the on-disk shape of one state GIS registry entry. The
// registry JSON is a flat array rather than Endpoint directly since Endpoint
// carries a time.Duration, which doesn't round-trip through JSON as seconds.
type endpointFile struct {
	State           string            `json:"state"`
	UtilityType     string            `json:"utility_type"`
	Kind            string            `json:"kind"`
	URL             string            `json:"url"`
	Layers          []int             `json:"layers,omitempty"`
	NameField       string            `json:"name_field,omitempty"`
	ValueMap        map[string]string `json:"value_map,omitempty"`
	FixedName       string            `json:"fixed_name,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds,omitempty"`
	RateLimitPerSec float64           `json:"rate_limit_per_second,omitempty"`
}

// LoadRegistry reads the state-GIS endpoint registry as a flat JSON array
// (one entry per state+utility_type pair; a map nested by utility type and
// state is not accepted) and the default timeout/rate-limit tuning applied
// when an entry doesn't override them.
func LoadRegistry(path string, defaultTimeoutSeconds int, defaultRateLimitPerSec float64) ([]Endpoint, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stategis: read %s", path)
	}
	var files []endpointFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, eris.Wrapf(err, "stategis: unmarshal %s", path)
	}

	endpoints := make([]Endpoint, 0, len(files))
	for _, f := range files {
		timeout := time.Duration(f.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = time.Duration(defaultTimeoutSeconds) * time.Second
		}
		rateLimit := f.RateLimitPerSec
		if rateLimit <= 0 {
			rateLimit = defaultRateLimitPerSec
		}
		endpoints = append(endpoints, Endpoint{
			State:           f.State,
			UtilityType:     lookup.UtilityType(f.UtilityType),
			Kind:            EndpointKind(f.Kind),
			URL:             f.URL,
			Layers:          f.Layers,
			NameField:       f.NameField,
			ValueMap:        f.ValueMap,
			FixedName:       f.FixedName,
			Timeout:         timeout,
			RateLimitPerSec: rateLimit,
		})
	}
	return endpoints, nil
}
