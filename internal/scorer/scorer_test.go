package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

type fakeEIAIndex struct{ m map[int]string }

func (f fakeEIAIndex) ByEIAID(id int) (string, bool) { v, ok := f.m[id]; return v, ok }

type fakeStateIndex struct{ m map[string]string }

func (f fakeStateIndex) StateOf(id string) (string, bool) { v, ok := f.m[id]; return v, ok }

type fakeContacts struct{}

func (fakeContacts) Contact(canonicalID string, ut lookup.UtilityType) (string, string) {
	if canonicalID == "oncor" {
		return "888-313-6862", "oncor.com"
	}
	return "", ""
}

func testNormalizer(t *testing.T) *normalize.Normalizer {
	t.Helper()
	providers := map[string]lookup.CanonicalProvider{
		"oncor": {Key: "oncor", DisplayName: "Oncor Electric Delivery", Aliases: []string{"Oncor"}, EIAID: 13670},
	}
	n, err := normalize.New(providers, nil, nil)
	require.NoError(t, err)
	return n
}

func TestScorer_WaterShortCircuits(t *testing.T) {
	s := New(testNormalizer(t), fakeEIAIndex{}, fakeStateIndex{}, fakeContacts{}, nil, 0.98)
	cp := s.Resolve(Input{RawName: "Anytown Water Utility District", UtilityType: lookup.UtilityWater})
	assert.Equal(t, lookup.MatchPassthrough, cp.MatchMethod)
	assert.Equal(t, 0.82, cp.Confidence)
	assert.Empty(t, cp.CanonicalID)
}

func TestScorer_EIAIDMatchTakesPriority(t *testing.T) {
	s := New(testNormalizer(t), fakeEIAIndex{m: map[int]string{13670: "oncor"}}, fakeStateIndex{}, fakeContacts{}, nil, 0.98)
	cp := s.Resolve(Input{RawName: "ONCOR ELEC DELIVERY CO", EIAID: 13670, UtilityType: lookup.UtilityElectric})
	assert.Equal(t, lookup.MatchEIAID, cp.MatchMethod)
	assert.Equal(t, 0.90, cp.Confidence)
	assert.Equal(t, "oncor", cp.CanonicalID)
	assert.Equal(t, "oncor.com", cp.Website)
}

func TestScorer_ExactMatchConfidence(t *testing.T) {
	s := New(testNormalizer(t), fakeEIAIndex{}, fakeStateIndex{}, fakeContacts{}, nil, 0.98)
	cp := s.Resolve(Input{RawName: "Oncor", UtilityType: lookup.UtilityElectric, State: "TX"})
	assert.Equal(t, lookup.MatchExact, cp.MatchMethod)
	assert.Equal(t, 0.85, cp.Confidence)
}

func TestScorer_PassthroughConfidence(t *testing.T) {
	s := New(testNormalizer(t), fakeEIAIndex{}, fakeStateIndex{}, fakeContacts{}, nil, 0.98)
	cp := s.Resolve(Input{RawName: "Some Unknown Municipal Electric Dept", UtilityType: lookup.UtilityElectric})
	assert.Equal(t, lookup.MatchPassthrough, cp.MatchMethod)
	assert.Equal(t, 0.60, cp.Confidence)
}

func TestScorer_DeregulationDetection_ERCOTInvestorOwnedTDU(t *testing.T) {
	tdus := map[string]bool{"oncor electric delivery": true}
	s := New(testNormalizer(t), fakeEIAIndex{}, fakeStateIndex{}, fakeContacts{}, tdus, 0.98)
	cp := s.Resolve(Input{
		RawName: "Oncor", UtilityType: lookup.UtilityElectric, State: "TX",
		ControlArea: "ERCOT", ShapeType: lookup.ShapeInvestorOwned,
	})
	assert.True(t, cp.IsDeregulated)
}

func TestScorer_DeregulationDetection_CooperativeNeverDeregulated(t *testing.T) {
	tdus := map[string]bool{"oncor electric delivery": true}
	s := New(testNormalizer(t), fakeEIAIndex{}, fakeStateIndex{}, fakeContacts{}, tdus, 0.98)
	cp := s.Resolve(Input{
		RawName: "Oncor", UtilityType: lookup.UtilityElectric, State: "TX",
		ControlArea: "ERCOT", ShapeType: lookup.ShapeCooperative,
	})
	assert.False(t, cp.IsDeregulated)
}

func TestScorer_DeregulationDetection_LubbockExceptionIsMunicipalButDeregulated(t *testing.T) {
	s := New(testNormalizer(t), fakeEIAIndex{}, fakeStateIndex{}, fakeContacts{}, nil, 0.98)
	cp := s.Resolve(Input{
		RawName: "Lubbock Power & Light", UtilityType: lookup.UtilityElectric, State: "TX",
		ControlArea: "ERCOT", ShapeType: lookup.ShapeMunicipal,
	})
	assert.True(t, cp.IsDeregulated)
}

func TestScorer_ClipsToMaxConfidence(t *testing.T) {
	s := New(testNormalizer(t), fakeEIAIndex{m: map[int]string{13670: "oncor"}}, fakeStateIndex{}, fakeContacts{}, nil, 0.80)
	cp := s.Resolve(Input{RawName: "Oncor", EIAID: 13670, UtilityType: lookup.UtilityElectric})
	assert.LessOrEqual(t, cp.Confidence, 0.80)
}
