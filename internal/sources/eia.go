package sources

import "strings"

// EIAZip is the electric-only EIA Form 861 ZIP-to-utility table. It serves
// two roles: a low-confidence fallback source (P4 in the collection order)
// and, independently, the cross-verification check the electric pipeline
// runs against whatever candidate won primary selection.
type EIAZip struct {
	byZip map[string][]string // zip -> EIA-reported utility names serving it
}

// NewEIAZip builds the adapter from the decoded ZIP table.
func NewEIAZip(byZip map[string][]string) *EIAZip {
	return &EIAZip{byZip: byZip}
}

// Lookup returns the first EIA-reported name for zip as a fallback
// candidate at fixed confidence 0.70. Among electric sources only the
// FindEnergy city table runs after it.
func (e *EIAZip) Lookup(zip string) *Candidate {
	names := e.byZip[normalizeZip5(zip)]
	if len(names) == 0 {
		return nil
	}
	return &Candidate{Name: names[0], PolygonSource: "eia_zip", Confidence: 0.70}
}

// verificationStopWords are generic utility terms stripped before the
// token-overlap comparison, so two different companies that both happen to
// say "Electric Company" don't spuriously verify each other.
var verificationStopWords = map[string]bool{
	"electric": true, "power": true, "energy": true, "company": true,
	"corp": true, "corporation": true, "utilities": true, "utility": true,
	"cooperative": true, "coop": true, "co": true, "inc": true, "llc": true,
	"the": true, "of": true, "and": true, "district": true,
}

// Verify cross-checks primaryName against the EIA ZIP table using its
// adjustment schedule, returning a delta in [-0.05, 0.05] to apply to the
// primary's confidence, clipped by the caller to [0, 1].
func (e *EIAZip) Verify(primaryName, zip string) float64 {
	names := e.byZip[normalizeZip5(zip)]
	if len(names) == 0 {
		return -0.05
	}

	primaryKey := strings.ToLower(strings.TrimSpace(primaryName))
	for _, n := range names {
		if strings.ToLower(strings.TrimSpace(n)) == primaryKey {
			return 0.05
		}
	}

	primaryTokens := significantTokens(primaryName)
	if len(primaryTokens) == 0 {
		return -0.05
	}
	for _, n := range names {
		nKey := strings.ToLower(n)
		if strings.Contains(nKey, primaryKey) || strings.Contains(primaryKey, nKey) {
			return 0.02
		}
		eiaTokens := significantTokens(n)
		if tokenOverlapRatio(primaryTokens, eiaTokens) >= 0.5 {
			return 0.03
		}
	}
	return -0.05
}

func significantTokens(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,&")
		if f == "" || verificationStopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenOverlapRatio(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	bs := make(map[string]bool, len(b))
	for _, t := range b {
		bs[t] = true
	}
	matches := 0
	for _, t := range a {
		if bs[t] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}
