// Package catalog matches a resolved provider display name to a stable
// internal catalog row: a canonical integer id, title, and contact details
// maintained independently of any single data source.
package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

// MatchMethod records which step of the algorithm produced the match.
type MatchMethod string

const (
	MethodOverride      MatchMethod = "override"
	MethodExact         MatchMethod = "exact"
	MethodStateSpecific MatchMethod = "state_specific"
	MethodFuzzy         MatchMethod = "fuzzy"
	MethodFuzzySet      MatchMethod = "fuzzy_set"
	MethodNone          MatchMethod = "none"
)

// ConfidentThreshold is the match-score cutoff at or above which a match is
// reported as confident.
const ConfidentThreshold = 85

// Row is one entry in the provider catalog.
type Row struct {
	ID          int
	Title       string
	URL         string
	Phone       string
	UtilityType lookup.UtilityType
}

// MatchResult is the outcome of matching a display name to the catalog.
type MatchResult struct {
	ID          int
	Title       string
	URL         string
	Phone       string
	MatchScore  int
	MatchMethod MatchMethod
	Confident   bool
}

// abbreviations are expanded before any comparison runs.
var abbreviations = map[string]string{
	"elec": "electric",
	"coop": "cooperative",
	"pwr":  "power",
	"svc":  "service",
	"dept": "department",
	"dist": "district",
	"mun":  "municipal",
}

// rebrands maps historical/legacy names to their current operating name —
// utilities that merged or renamed but still appear under the old name in
// plenty of tenant-entered data.
var rebrands = map[string]string{
	"east ohio gas":          "enbridge gas ohio",
	"columbia gas":           "nisource",
	"questar gas":            "dominion energy utah",
	"peco energy":            "exelon peco",
	"baltimore gas electric": "bge",
}

// Matcher holds the loaded catalog rows and an override table backed by
// SQLite for manually-curated corrections to the automatic algorithm.
type Matcher struct {
	db         *sql.DB
	byType     map[lookup.UtilityType][]Row
	normalizer func(string) string
}

const overrideSchema = `
CREATE TABLE IF NOT EXISTS catalog_overrides (
	norm_name TEXT NOT NULL,
	utility_type TEXT NOT NULL,
	catalog_id INTEGER NOT NULL,
	PRIMARY KEY (norm_name, utility_type)
);
`

// New builds a Matcher from the loaded catalog rows, grouped by utility
// type for fast same-type scanning, and opens the override table.
func New(db *sql.DB, rows []Row) (*Matcher, error) {
	if _, err := db.Exec(overrideSchema); err != nil {
		return nil, eris.Wrap(err, "catalog: create override schema")
	}
	byType := make(map[lookup.UtilityType][]Row)
	for _, r := range rows {
		byType[r.UtilityType] = append(byType[r.UtilityType], r)
	}
	return &Matcher{db: db, byType: byType, normalizer: normalizeInput}, nil
}

// normalizeInput implements step 1 of the match algorithm: lowercase,
// expand abbreviations, apply rebrand substitutions, strip legal suffixes.
// Trailing state tags are not stripped; they stay in the normalized name.
func normalizeInput(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	words := strings.Fields(s)
	for i, w := range words {
		w = strings.Trim(w, ".,")
		if exp, ok := abbreviations[w]; ok {
			words[i] = exp
		} else {
			words[i] = w
		}
	}
	s = strings.Join(words, " ")

	for legacy, current := range rebrands {
		if strings.Contains(s, legacy) {
			s = strings.ReplaceAll(s, legacy, current)
		}
	}

	s = stripLegalSuffix(s)
	return strings.TrimSpace(s)
}

var legalSuffixWords = []string{"inc", "llc", "corp", "corporation", "co", "company", "lp"}

func stripLegalSuffix(s string) string {
	words := strings.Fields(s)
	for len(words) > 1 {
		last := strings.Trim(words[len(words)-1], ".,")
		isLegal := false
		for _, suf := range legalSuffixWords {
			if last == suf {
				isLegal = true
				break
			}
		}
		if !isLegal {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// Match runs the five-step algorithm: override table, exact
// match, state-specific match, fuzzy token-sort, fuzzy token-set.
func (m *Matcher) Match(ctx context.Context, displayName string, utilityType lookup.UtilityType, state string) (MatchResult, error) {
	normName := m.normalizer(displayName)

	// Step 2: override table.
	if row, ok, err := m.lookupOverride(ctx, normName, utilityType); err != nil {
		return MatchResult{}, err
	} else if ok {
		return MatchResult{ID: row.ID, Title: row.Title, URL: row.URL, Phone: row.Phone, MatchScore: 100, MatchMethod: MethodOverride, Confident: true}, nil
	}

	candidates := m.byType[utilityType]
	if len(candidates) == 0 {
		return MatchResult{MatchMethod: MethodNone}, nil
	}

	// Step 3: exact match.
	for _, row := range candidates {
		if m.normalizer(row.Title) == normName {
			return toResult(row, 100, MethodExact), nil
		}
	}

	// Step 4: state-specific — titles containing the state abbreviation as
	// a distinct token, best fuzzy match >= 70.
	if state != "" {
		stateToken := strings.ToLower(state)
		best := -1
		var bestRow Row
		for _, row := range candidates {
			normTitle := m.normalizer(row.Title)
			if !containsToken(normTitle, stateToken) {
				continue
			}
			score := tokenSortScore(normName, normTitle)
			if score > best {
				best = score
				bestRow = row
			}
		}
		if best >= 70 {
			return toResult(bestRow, best, MethodStateSpecific), nil
		}
	}

	// Step 5a: fuzzy token-sort-ratio, accept >= 82.
	bestSort, bestSortRow := bestByScore(candidates, normName, m.normalizer, tokenSortScore)
	if bestSort >= 82 {
		return toResult(bestSortRow, bestSort, MethodFuzzy), nil
	}

	// Step 5b: fuzzy token-set-ratio, accept >= 90.
	bestSet, bestSetRow := bestByScore(candidates, normName, m.normalizer, tokenSetScore)
	if bestSet >= 90 {
		return toResult(bestSetRow, bestSet, MethodFuzzySet), nil
	}

	return MatchResult{MatchMethod: MethodNone}, nil
}

func toResult(row Row, score int, method MatchMethod) MatchResult {
	return MatchResult{
		ID: row.ID, Title: row.Title, URL: row.URL, Phone: row.Phone,
		MatchScore: score, MatchMethod: method, Confident: score >= ConfidentThreshold,
	}
}

func bestByScore(rows []Row, normName string, normalizer func(string) string, score func(a, b string) int) (int, Row) {
	best := -1
	var bestRow Row
	for _, row := range rows {
		s := score(normName, normalizer(row.Title))
		if s > best {
			best = s
			bestRow = row
		}
	}
	return best, bestRow
}

func containsToken(s, token string) bool {
	for _, w := range strings.Fields(s) {
		if w == token {
			return true
		}
	}
	return false
}

func (m *Matcher) lookupOverride(ctx context.Context, normName string, ut lookup.UtilityType) (Row, bool, error) {
	var id int
	err := m.db.QueryRowContext(ctx,
		`SELECT catalog_id FROM catalog_overrides WHERE norm_name = ? AND utility_type = ?`,
		normName, string(ut),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, eris.Wrap(err, "catalog: query override")
	}
	for _, row := range m.byType[ut] {
		if row.ID == id {
			return row, true, nil
		}
	}
	return Row{}, false, nil
}

// tokenSortScore and tokenSetScore reuse the normalize package's fuzzy
// scoring so the catalog matcher and the name normalizer agree on what
// "82% similar" means.
func tokenSortScore(a, b string) int { return normalize.TokenSortRatio(a, b) }
func tokenSetScore(a, b string) int  { return normalize.TokenSetRatio(a, b) }
