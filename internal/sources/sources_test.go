package sources

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

func TestCorrections_ByAddress_ExactMatch(t *testing.T) {
	db := openTestDB(t)
	c, err := NewCorrections(db)
	require.NoError(t, err)

	require.NoError(t, c.AddAddressCorrection(context.Background(), "  123 Main St, Austin, TX  ", lookup.UtilityElectric, "Austin Energy", 42))

	res, err := c.ByAddress(context.Background(), "123 main st, austin, tx", lookup.UtilityElectric)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Austin Energy", res.Name)
	assert.Equal(t, 0.99, res.Confidence)
}

func TestCorrections_ByAddress_NoMatchReturnsNil(t *testing.T) {
	db := openTestDB(t)
	c, err := NewCorrections(db)
	require.NoError(t, err)

	res, err := c.ByAddress(context.Background(), "nonexistent address", lookup.UtilityGas)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGasZipMap_PrefersFiveDigitOverThreeDigit(t *testing.T) {
	m := NewGasZipMap(
		map[string]GasZipEntry{"78701": {Name: "Texas Gas Service", Confidence: 0.93}},
		map[string]GasZipEntry{"787": {Name: "Regional Gas Co", Confidence: 0.88}},
	)
	res := m.Lookup("78701-1234")
	require.NotNil(t, res)
	assert.Equal(t, "Texas Gas Service", res.Name)
	assert.Equal(t, "gas_zip5", res.PolygonSource)
}

func TestGasZipMap_FallsBackToThreeDigit(t *testing.T) {
	m := NewGasZipMap(
		map[string]GasZipEntry{},
		map[string]GasZipEntry{"787": {Name: "Regional Gas Co", Confidence: 0.88}},
	)
	res := m.Lookup("78745")
	require.NotNil(t, res)
	assert.Equal(t, "Regional Gas Co", res.Name)
	assert.Equal(t, "gas_zip3", res.PolygonSource)
}

func TestGeorgiaEMC_ReturnsMultipleCandidatesForSplitCounty(t *testing.T) {
	g := NewGeorgiaEMC(map[string][]GeorgiaEMCEntry{
		"dekalb": {{Name: "Jackson EMC", Confidence: 0.75}, {Name: "GreyStone Power", Confidence: 0.72}},
	})
	res := g.Lookup("DeKalb County")
	require.Len(t, res, 2)
	assert.Equal(t, "GA", res[0].State)
}

func TestCountyGas_CityOverrideBeatsCountyDefault(t *testing.T) {
	c := NewCountyGas(map[string]CountyGasEntry{
		"tx|travis": {Name: "County Default Gas", Confidence: 0.85, CityOverrides: map[string]string{"austin": "Texas Gas Service"}},
	})
	res := c.Lookup("TX", "Travis", "Austin")
	require.NotNil(t, res)
	assert.Equal(t, "Texas Gas Service", res.Name)
	assert.Equal(t, "county_gas_city", res.PolygonSource)
}

func TestCountyGas_NoCityUsesDefault(t *testing.T) {
	c := NewCountyGas(map[string]CountyGasEntry{
		"tx|travis": {Name: "County Default Gas", Confidence: 0.85},
	})
	res := c.Lookup("TX", "Travis", "")
	require.NotNil(t, res)
	assert.Equal(t, "County Default Gas", res.Name)
}

func TestSpecialDistricts_WaterOnlyLookup(t *testing.T) {
	s := NewSpecialDistricts(map[string]string{"77479": "Sugar Land Municipal Utility District No. 2"})
	res := s.Lookup("77479")
	require.NotNil(t, res)
	assert.Equal(t, 0.82, res.Confidence)
}

func TestEIAZip_Lookup_FallbackConfidence(t *testing.T) {
	e := NewEIAZip(map[string][]string{"60601": {"Commonwealth Edison Co"}})
	res := e.Lookup("60601")
	require.NotNil(t, res)
	assert.Equal(t, 0.70, res.Confidence)
}

func TestEIAZip_Verify_ExactMatchBoosts(t *testing.T) {
	e := NewEIAZip(map[string][]string{"60601": {"Commonwealth Edison Co"}})
	assert.Equal(t, 0.05, e.Verify("Commonwealth Edison Co", "60601"))
}

func TestEIAZip_Verify_TokenOverlapPartialBoost(t *testing.T) {
	e := NewEIAZip(map[string][]string{"60601": {"Commonwealth Edison Company"}})
	adj := e.Verify("Commonwealth Edison", "60601")
	assert.GreaterOrEqual(t, adj, 0.02)
}

func TestEIAZip_Verify_NoEntryPenalizes(t *testing.T) {
	e := NewEIAZip(map[string][]string{})
	assert.Equal(t, -0.05, e.Verify("Anything", "00000"))
}

func TestEIAZip_Verify_DifferentCompaniesBothCalledElectricDoNotVerify(t *testing.T) {
	e := NewEIAZip(map[string][]string{"12345": {"Carolina Electric Company"}})
	adj := e.Verify("Duke Electric Company", "12345")
	assert.Equal(t, -0.05, adj)
}

func TestFindEnergyCity_Lookup(t *testing.T) {
	f := NewFindEnergyCity(map[string]string{"tx|marfa|electric": "Trans-Pecos Electric Cooperative"})
	res := f.Lookup("TX", "Marfa", "electric")
	require.NotNil(t, res)
	assert.Equal(t, 0.65, res.Confidence)
}

func TestStateGasDefault_Lookup(t *testing.T) {
	s := NewStateGasDefault(map[string]StateGasEntry{"tx": {Name: "Atmos Energy", Confidence: 0.60}})
	res := s.Lookup("TX")
	require.NotNil(t, res)
	assert.Equal(t, "Atmos Energy", res.Name)
}

func TestRemainingStatesZip_Lookup(t *testing.T) {
	r := NewRemainingStatesZip(map[string]RemainingStatesEntry{
		"mt|59601|electric": {Name: "NorthWestern Energy", Confidence: 0.80},
	})
	res := r.Lookup("MT", "59601", "electric")
	require.NotNil(t, res)
	assert.Equal(t, "NorthWestern Energy", res.Name)
}
