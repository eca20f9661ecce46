package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

func TestFillFromRaw_FillsStateAndZipTogether(t *testing.T) {
	out := FillFromRaw(lookup.GeocodedAddress{}, "123 Main St, Austin, TX 78701")
	assert.Equal(t, "TX", out.State)
	assert.Equal(t, "78701", out.Zip)
}

func TestFillFromRaw_DoesNotOverwriteExistingFields(t *testing.T) {
	addr := lookup.GeocodedAddress{State: "OK", Zip: "74103"}
	out := FillFromRaw(addr, "123 Main St, Austin, TX 78701")
	assert.Equal(t, "OK", out.State)
	assert.Equal(t, "74103", out.Zip)
}

func TestFillFromRaw_StateOnlyNoZip(t *testing.T) {
	out := FillFromRaw(lookup.GeocodedAddress{}, "123 Main St, Austin, TX")
	assert.Equal(t, "TX", out.State)
}

func TestFillFromRaw_ZipOnlyAtEnd(t *testing.T) {
	out := FillFromRaw(lookup.GeocodedAddress{}, "123 Main St 78701")
	assert.Equal(t, "78701", out.Zip)
}

func TestFillFromRaw_ExtractsCityBeforeState(t *testing.T) {
	out := FillFromRaw(lookup.GeocodedAddress{}, "123 Main St, Austin, TX 78701")
	assert.Equal(t, "Austin", out.City)
}

func TestFillFromRaw_NoMatchLeavesFieldsEmpty(t *testing.T) {
	out := FillFromRaw(lookup.GeocodedAddress{}, "not really an address")
	assert.Empty(t, out.State)
	assert.Empty(t, out.Zip)
	assert.Empty(t, out.City)
}
