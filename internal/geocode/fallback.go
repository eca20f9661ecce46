// Package geocode fills in address components the external geocoder
// collaborator left blank, and normalizes its raw response into the shape
// the resolution pipeline expects.
package geocode

import (
	"regexp"
	"strings"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

var (
	stateZipRe   = regexp.MustCompile(`,\s*([A-Z]{2})\s+(\d{5})`)
	stateOnlyRe  = regexp.MustCompile(`,\s*([A-Z]{2})\s*$`)
	zipOnlyRe    = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\s*$`)
	cityBeforeStateRe = regexp.MustCompile(`,\s*([^,]+?)\s*,\s*[A-Z]{2}`)
)

// FillFromRaw populates any of addr's State/Zip/City fields the geocoder
// left empty by extracting them from the raw address string with a small,
// deliberately non-exhaustive regex set. This is not a general address
// parser — it only recovers the components the resolution pipeline needs
// when the geocoder's structured response is incomplete.
func FillFromRaw(addr lookup.GeocodedAddress, raw string) lookup.GeocodedAddress {
	if addr.State == "" || addr.Zip == "" {
		if m := stateZipRe.FindStringSubmatch(raw); m != nil {
			if addr.State == "" {
				addr.State = m[1]
			}
			if addr.Zip == "" {
				addr.Zip = m[2]
			}
		}
	}
	if addr.State == "" {
		if m := stateOnlyRe.FindStringSubmatch(raw); m != nil {
			addr.State = m[1]
		}
	}
	if addr.Zip == "" {
		if m := zipOnlyRe.FindStringSubmatch(raw); m != nil {
			addr.Zip = m[1]
		}
	}
	if addr.City == "" {
		if m := cityBeforeStateRe.FindStringSubmatch(raw); m != nil {
			addr.City = strings.TrimSpace(m[1])
		}
	}
	return addr
}
