// Package normalize resolves raw, free-text utility provider strings to a
// canonical identity. It never fails: callers that feed it garbage get a
// passthrough classification rather than an error.
package normalize

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// MatchType classifies how a name was resolved.
type MatchType string

const (
	MatchTypeExact     MatchType = "exact"
	MatchTypeFuzzy     MatchType = "fuzzy"
	MatchTypeSubstring MatchType = "substring"
	MatchTypeNull      MatchType = "null_value"
	MatchTypePropane   MatchType = "propane"
	MatchTypeNone      MatchType = "none"
)

// Result is the outcome of a single normalize() call.
type Result struct {
	CanonicalID string
	DisplayName string
	MatchType   MatchType
	Similarity  int // 0-100
	IsREP       bool
	MatchedOn   string
}

// nullPlaceholders are tenant-entered values that mean "no data", not "no
// provider". They short-circuit before any fuzzy comparison runs.
var nullPlaceholders = map[string]bool{
	"n/a": true, "na": true, "none": true, "unknown": true, "unk": true,
	"landlord": true, "included": true, "varies": true, "tbd": true,
	"-": true, "": true, "null": true, "n/a - included": true,
}

// propaneKeywords flag bottled/tank gas providers, which are not utilities
// in the canonical table and must not attempt fuzzy matching against it.
var propaneKeywords = []string{"amerigas", "ferrellgas", "propane", "suburban propane", "blossman"}

// crossMatchGuard lists high-frequency short names that must match exactly;
// fuzzy matching against these produces false positives too often.
var crossMatchGuard = map[string]bool{
	"peco": true, "aep": true, "duke": true, "pse": true, "pg&e": true,
}

// legalSuffixes are stripped from a passthrough display name, longest first
// so "corporation" is removed before the bare "corp" would partially match.
var legalSuffixes = []string{
	", inc.", " inc.", ", inc", " inc", ", corp.", " corp.", ", corporation",
	" corporation", " corp", " llc", " l.l.c.", " l.p.", ", company", " company",
	", co.", " co.", " co",
}

// Normalizer resolves names against an immutable alias index built once at
// startup from the canonical provider file.
type Normalizer struct {
	aliasIndex    map[string]string // normalized alias -> canonical key
	canonical     map[string]lookup.CanonicalProvider
	fuzzyThreshold int
	repNames      map[string]bool
}

// New builds a Normalizer from the loaded canonical provider table. It
// returns an error if any alias appears under two canonical keys, or if any
// alias collides with a known holding-company name — both are caller-data
// integrity violations the loader must reject at startup.
func New(providers map[string]lookup.CanonicalProvider, holdingCompanies map[string]bool, repNames map[string]bool) (*Normalizer, error) {
	n := &Normalizer{
		aliasIndex:     make(map[string]string),
		canonical:      providers,
		fuzzyThreshold: 85,
		repNames:       repNames,
	}
	for key, cp := range providers {
		for _, alias := range append([]string{cp.DisplayName}, cp.Aliases...) {
			norm := normalizeKey(alias)
			if norm == "" {
				continue
			}
			if holdingCompanies[norm] {
				return nil, eris.Errorf("normalize: alias %q under %q is a holding-company name", alias, key)
			}
			if existing, ok := n.aliasIndex[norm]; ok && existing != key {
				return nil, eris.Errorf("normalize: alias %q appears under both %q and %q", alias, existing, key)
			}
			n.aliasIndex[norm] = key
		}
	}
	return n, nil
}

// normalizeKey lowercases, strips diacritics, and trims trailing
// punctuation so aliases compare independent of case/accents/typos in
// trailing commas.
func normalizeKey(s string) string {
	s = norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue // drop combining diacritical marks
		}
		b.WriteRune(r)
	}
	s = strings.ToLower(strings.TrimSpace(b.String()))
	s = strings.TrimRight(s, ".,;: ")
	return s
}

// Normalize resolves a single raw provider string.
func (n *Normalizer) Normalize(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	key := normalizeKey(trimmed)

	// Step 1: exact alias match.
	if canonicalID, ok := n.aliasIndex[key]; ok {
		return Result{
			CanonicalID: canonicalID,
			DisplayName: n.canonical[canonicalID].DisplayName,
			MatchType:   MatchTypeExact,
			Similarity:  100,
			IsREP:       n.repNames[key],
			MatchedOn:   trimmed,
		}
	}

	// Step 2: null placeholder / propane short-circuit.
	if nullPlaceholders[key] {
		return Result{MatchType: MatchTypeNull, DisplayName: trimmed}
	}
	for _, kw := range propaneKeywords {
		if strings.Contains(key, kw) {
			return Result{MatchType: MatchTypePropane, DisplayName: trimmed}
		}
	}

	// Step 3: fuzzy match, guarded against short/ambiguous inputs.
	if !crossMatchGuard[key] && len(key) > 3 {
		if canonicalID, sim, alias := n.bestFuzzyMatch(key); canonicalID != "" && sim >= n.fuzzyThreshold {
			return Result{
				CanonicalID: canonicalID,
				DisplayName: n.canonical[canonicalID].DisplayName,
				MatchType:   MatchTypeFuzzy,
				Similarity:  sim,
				IsREP:       n.repNames[key],
				MatchedOn:   alias,
			}
		}
	}

	// Step 4: substring match against aliases of length >= 4.
	if len(key) >= 4 {
		for alias, canonicalID := range n.aliasIndex {
			if len(alias) < 4 {
				continue
			}
			if strings.Contains(key, alias) || strings.Contains(alias, key) {
				return Result{
					CanonicalID: canonicalID,
					DisplayName: n.canonical[canonicalID].DisplayName,
					MatchType:   MatchTypeSubstring,
					Similarity:  75,
					MatchedOn:   alias,
				}
			}
		}
	}

	// Step 5: fallback passthrough.
	return Result{MatchType: MatchTypeNone, DisplayName: cleanPassthrough(trimmed)}
}

// bestFuzzyMatch scans every alias and returns the highest token-sort-ratio
// scoring one, or empty if no alias is eligible. This is O(n) over the
// alias table per call; the table is small enough (low thousands of
// entries) that this runs well within the single-digit-millisecond budget
// a per-request lookup allows.
func (n *Normalizer) bestFuzzyMatch(key string) (canonicalID string, similarity int, matchedAlias string) {
	best := -1
	for alias, cid := range n.aliasIndex {
		if crossMatchGuard[alias] {
			continue // guard applies symmetrically: never fuzzy-match onto these either
		}
		sim := tokenSortRatio(key, alias)
		if sim > best {
			best = sim
			canonicalID = cid
			matchedAlias = alias
		}
	}
	if best < 0 {
		return "", 0, ""
	}
	return canonicalID, best, matchedAlias
}

// tokenSortRatio is a rapidfuzz-style similarity score in [0,100]: split
// both strings on whitespace, sort tokens, rejoin, and score the result by
// normalized Levenshtein distance. Sorting the tokens first means word
// order doesn't penalize the match ("Gas Company Peoples" vs "Peoples Gas
// Company" score 100).
func tokenSortRatio(a, b string) int {
	sa := sortedTokens(a)
	sb := sortedTokens(b)
	return levenshteinRatio(sa, sb)
}

// tokenSetRatio is the looser counterpart used by the catalog matcher's
// fallback step: it compares the intersection-padded token sets, so extra
// words in one string ("Duke Energy Carolinas" vs "Duke Energy") don't
// depress the score the way tokenSortRatio's full-string comparison would.
func tokenSetRatio(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	inter := intersect(ta, tb)
	sortedInter := strings.Join(inter, " ")
	sortedA := strings.Join(ta, " ")
	sortedB := strings.Join(tb, " ")

	best := levenshteinRatio(sortedInter, sortedA)
	if r := levenshteinRatio(sortedInter, sortedB); r > best {
		best = r
	}
	if r := levenshteinRatio(sortedA, sortedB); r > best {
		best = r
	}
	return best
}

// TokenSortRatio exposes tokenSortRatio for callers outside this package
// (the catalog matcher) that need the same word-order-insensitive scoring.
func TokenSortRatio(a, b string) int { return tokenSortRatio(a, b) }

// TokenSetRatio exposes tokenSetRatio for callers outside this package.
func TokenSetRatio(a, b string) int { return tokenSetRatio(a, b) }

func sortedTokens(s string) string {
	toks := strings.Fields(s)
	sortStrings(toks)
	return strings.Join(toks, " ")
}

func tokenSet(s string) []string {
	toks := strings.Fields(s)
	seen := make(map[string]bool, len(toks))
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sortStrings(out)
	return out
}

func intersect(a, b []string) []string {
	bs := make(map[string]bool, len(b))
	for _, t := range b {
		bs[t] = true
	}
	var out []string
	for _, t := range a {
		if bs[t] {
			out = append(out, t)
		}
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// levenshteinRatio converts edit distance into a 0-100 similarity score the
// way rapidfuzz's ratio() does: 100 * (1 - distance/max(len(a),len(b))).
func levenshteinRatio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := 1.0 - float64(dist)/float64(maxLen)
	if ratio < 0 {
		ratio = 0
	}
	return int(ratio*100 + 0.5)
}

// cleanPassthrough strips legal suffixes and title-cases names that arrived
// in ALL-CAPS, matching the behavior tenant-entered CSV exports need.
func cleanPassthrough(raw string) string {
	clean := raw
	lower := strings.ToLower(clean)
	for _, suf := range legalSuffixes {
		if strings.HasSuffix(lower, suf) {
			clean = clean[:len(clean)-len(suf)]
			lower = strings.ToLower(clean)
		}
	}
	clean = strings.TrimSpace(clean)
	if clean == strings.ToUpper(clean) && len(clean) > 3 {
		clean = strings.Title(strings.ToLower(clean)) //nolint:staticcheck // matches tenant-data title-casing, not Unicode-aware word boundaries
	}
	return clean
}

// NormalizeMulti splits raw on commas and normalizes each non-empty segment
// independently. Tenant-entered fields frequently list more than one
// provider ("Oncor, TXU Energy"); comma-splitting is the only address-
// parsing-adjacent behavior this package does; full address parsing is
// handled upstream by the geocoder.
func (n *Normalizer) NormalizeMulti(raw string) []Result {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	segments := strings.Split(raw, ",")
	results := make([]Result, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		results = append(results, n.Normalize(seg))
	}
	return results
}

// ProvidersMatch reports whether a and b name the same provider: same
// canonical id, case-insensitive exact match, or one is a substring of the
// other (both at least 4 characters).
func (n *Normalizer) ProvidersMatch(a, b string) bool {
	ka, kb := normalizeKey(a), normalizeKey(b)
	if ka == kb {
		return true
	}
	ra, rb := n.Normalize(a), n.Normalize(b)
	if ra.CanonicalID != "" && ra.CanonicalID == rb.CanonicalID {
		return true
	}
	if len(ka) >= 4 && len(kb) >= 4 && (strings.Contains(ka, kb) || strings.Contains(kb, ka)) {
		return true
	}
	return false
}

// IsDeregulatedREP reports whether name is a known Texas Retail Electric
// Provider (a reseller, never a canonical TDU).
func (n *Normalizer) IsDeregulatedREP(name string) bool {
	return n.repNames[normalizeKey(name)]
}
