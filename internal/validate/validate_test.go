package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

func testNormalizer(t *testing.T) *normalize.Normalizer {
	t.Helper()
	providers := map[string]lookup.CanonicalProvider{
		"oncor":       {Key: "oncor", DisplayName: "Oncor Electric Delivery"},
		"reliant":     {Key: "reliant", DisplayName: "Reliant Energy"},
		"txu":         {Key: "txu", DisplayName: "TXU Energy"},
		"centerpoint": {Key: "centerpoint", DisplayName: "CenterPoint Energy"},
		"ga_power":    {Key: "ga_power", DisplayName: "Georgia Power", ParentCompany: "Southern Company"},
		"savannah_electric": {Key: "savannah_electric", DisplayName: "Savannah Electric", ParentCompany: "Southern Company"},
		"round_rock_water": {Key: "round_rock_water", DisplayName: "Round Rock Water Utility"},
	}
	rep := map[string]bool{"reliant energy": true, "txu energy": true}
	n, err := normalize.New(providers, nil, rep)
	require.NoError(t, err)
	return n
}

func testValidator(t *testing.T) *Validator {
	parentGroups := map[string]string{
		"ga_power":          "southern-co",
		"savannah_electric": "southern-co",
	}
	return New(testNormalizer(t), parentGroups)
}

func TestCompare_ExactMatch(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "Oncor", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryMatch, res.Category)
}

func TestCompare_TexasTDUNotDemotedWhenEngineAlsoInTenantString(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "Oncor, Reliant Energy", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryMatch, res.Category)
}

func TestCompare_TexasTDUMatchesAgainstREPOnly(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "Reliant Energy", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryMatchTDU, res.Category)
}

func TestCompare_MatchParentViaCuratedGroup(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Georgia Power", "Savannah Electric", lookup.UtilityElectric, "GA", nil)
	assert.Equal(t, CategoryMatchParent, res.Category)
}

func TestCompare_MatchAltAgainstAlternative(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "CenterPoint Energy", lookup.UtilityElectric, "TX", []string{"CenterPoint Energy"})
	assert.Equal(t, CategoryMatchAlt, res.Category)
}

func TestCompare_ForcedMismatchOnCrossStateImpossibility(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "Oncor", lookup.UtilityElectric, "OK", nil)
	assert.Equal(t, CategoryMismatch, res.Category)
}

func TestCompare_BothEmpty(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("", "", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryBothEmpty, res.Category)
}

func TestCompare_EngineOnly(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryEngineOnly, res.Category)
}

func TestCompare_TenantOnly(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("", "Oncor", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryTenantOnly, res.Category)
}

func TestCompare_TenantNullPlaceholder(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "n/a", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryTenantNull, res.Category)
}

func TestCompare_TenantPropane(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("", "AmeriGas", lookup.UtilityGas, "TX", nil)
	assert.Equal(t, CategoryTenantPropane, res.Category)
}

func TestCompare_WaterLenientMatchOnPartialTokenOverlap(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Round Rock Water Utility", "City of Round Rock Water Department", lookup.UtilityWater, "TX", nil)
	assert.Equal(t, CategoryMatch, res.Category)
}

func TestCompare_GenuineMismatch(t *testing.T) {
	v := testValidator(t)
	res := v.Compare("Oncor Electric Delivery", "Some Unrelated Municipal Utility", lookup.UtilityElectric, "TX", nil)
	assert.Equal(t, CategoryMismatch, res.Category)
}
