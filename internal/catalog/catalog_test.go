package catalog

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRows() []Row {
	return []Row{
		{ID: 1, Title: "Oncor Electric Delivery", URL: "oncor.com", Phone: "888-313-6862", UtilityType: lookup.UtilityElectric},
		{ID: 2, Title: "CenterPoint Energy Houston Electric", URL: "centerpointenergy.com", UtilityType: lookup.UtilityElectric},
		{ID: 3, Title: "Enbridge Gas Ohio", URL: "enbridgegas.com", UtilityType: lookup.UtilityGas},
		{ID: 4, Title: "Duke Energy Carolinas", URL: "duke-energy.com", UtilityType: lookup.UtilityElectric},
	}
}

func TestMatcher_ExactMatch(t *testing.T) {
	m, err := New(openTestDB(t), testRows())
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Oncor Electric Delivery", lookup.UtilityElectric, "TX")
	require.NoError(t, err)
	assert.Equal(t, MethodExact, res.MatchMethod)
	assert.Equal(t, 1, res.ID)
	assert.True(t, res.Confident)
}

func TestMatcher_RebrandSubstitutionFindsExact(t *testing.T) {
	m, err := New(openTestDB(t), testRows())
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "East Ohio Gas Co", lookup.UtilityGas, "OH")
	require.NoError(t, err)
	assert.Equal(t, MethodExact, res.MatchMethod)
	assert.Equal(t, 3, res.ID)
}

func TestMatcher_FuzzyTokenSort(t *testing.T) {
	m, err := New(openTestDB(t), testRows())
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Electric Delivery Oncor", lookup.UtilityElectric, "")
	require.NoError(t, err)
	assert.Contains(t, []MatchMethod{MethodExact, MethodFuzzy}, res.MatchMethod)
	assert.Equal(t, 1, res.ID)
}

func TestMatcher_FuzzySetHandlesExtraWords(t *testing.T) {
	m, err := New(openTestDB(t), testRows())
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Duke Energy", lookup.UtilityElectric, "")
	require.NoError(t, err)
	assert.Contains(t, []MatchMethod{MethodFuzzy, MethodFuzzySet}, res.MatchMethod)
	assert.Equal(t, 4, res.ID)
}

func TestMatcher_NoCandidatesForUtilityType(t *testing.T) {
	m, err := New(openTestDB(t), testRows())
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Anything", lookup.UtilityWater, "")
	require.NoError(t, err)
	assert.Equal(t, MethodNone, res.MatchMethod)
	assert.False(t, res.Confident)
}

func TestMatcher_NoMatchBelowThresholds(t *testing.T) {
	m, err := New(openTestDB(t), testRows())
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Completely Unrelated Utility Name", lookup.UtilityElectric, "")
	require.NoError(t, err)
	assert.Equal(t, MethodNone, res.MatchMethod)
}

func TestMatcher_OverrideTakesPriorityOverEverything(t *testing.T) {
	db := openTestDB(t)
	m, err := New(db, testRows())
	require.NoError(t, err)

	normName := normalizeInput("Duke Energy")
	_, err = db.Exec(`INSERT INTO catalog_overrides (norm_name, utility_type, catalog_id) VALUES (?, ?, ?)`,
		normName, string(lookup.UtilityElectric), 2)
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Duke Energy", lookup.UtilityElectric, "")
	require.NoError(t, err)
	assert.Equal(t, MethodOverride, res.MatchMethod)
	assert.Equal(t, 2, res.ID)
	assert.Equal(t, 100, res.MatchScore)
}

func TestMatcher_StateSpecificMatch(t *testing.T) {
	m, err := New(openTestDB(t), []Row{
		{ID: 10, Title: "Central Electric Cooperative TX", UtilityType: lookup.UtilityElectric},
		{ID: 11, Title: "Central Electric Cooperative OK", UtilityType: lookup.UtilityElectric},
	})
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "Central Electric Cooperative", lookup.UtilityElectric, "TX")
	require.NoError(t, err)
	assert.Equal(t, 10, res.ID)
}

func TestNormalizeInput_StripsLegalSuffixAndExpandsAbbreviation(t *testing.T) {
	assert.Equal(t, "acme electric cooperative", normalizeInput("ACME ELEC COOP, Inc."))
}

func TestNormalizeInput_AppliesRebrand(t *testing.T) {
	assert.Contains(t, normalizeInput("Columbia Gas of Ohio"), "nisource")
}
