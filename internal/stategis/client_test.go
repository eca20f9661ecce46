package stategis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/resilience"
)

func TestClient_Query_NoEndpointRegisteredReturnsNil(t *testing.T) {
	c := New(nil, resilience.DefaultCircuitBreakerConfig())
	res, err := c.Query(context.Background(), -96.8, 32.9, "TX", lookup.UtilityElectric)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_Query_SingleUtilityEndpoint(t *testing.T) {
	c := New([]Endpoint{
		{State: "TX", UtilityType: lookup.UtilityWater, Kind: KindSingleUtility, FixedName: "City of Austin Water"},
	}, resilience.DefaultCircuitBreakerConfig())

	res, err := c.Query(context.Background(), -97.7, 30.3, "TX", lookup.UtilityWater)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "City of Austin Water", res.ProviderName)
}

func TestClient_Query_StandardEndpointReadsNameField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"attributes": map[string]any{"UTILITY_NAME": "Pedernales Electric Cooperative"}},
			},
		})
	}))
	defer srv.Close()

	c := New([]Endpoint{
		{State: "TX", UtilityType: lookup.UtilityElectric, Kind: KindStandard, URL: srv.URL, NameField: "UTILITY_NAME"},
	}, resilience.DefaultCircuitBreakerConfig())

	res, err := c.Query(context.Background(), -98.1, 30.2, "TX", lookup.UtilityElectric)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Pedernales Electric Cooperative", res.ProviderName)
}

func TestClient_Query_CoordinateMappingTranslatesValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"attributes": map[string]any{"COOP_CODE": "42"}},
			},
		})
	}))
	defer srv.Close()

	c := New([]Endpoint{
		{
			State: "GA", UtilityType: lookup.UtilityElectric, Kind: KindCoordinateMapping,
			URL: srv.URL, NameField: "COOP_CODE",
			ValueMap: map[string]string{"42": "Central Georgia EMC"},
		},
	}, resilience.DefaultCircuitBreakerConfig())

	res, err := c.Query(context.Background(), -83.6, 32.8, "GA", lookup.UtilityElectric)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Central Georgia EMC", res.ProviderName)
}

func TestClient_Query_NoMatchingFeatureReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{}})
	}))
	defer srv.Close()

	c := New([]Endpoint{
		{State: "TX", UtilityType: lookup.UtilityElectric, Kind: KindStandard, URL: srv.URL, NameField: "UTILITY_NAME"},
	}, resilience.DefaultCircuitBreakerConfig())

	res, err := c.Query(context.Background(), -98.1, 30.2, "TX", lookup.UtilityElectric)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_Query_TransientHTTPStatusDoesNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New([]Endpoint{
		{State: "TX", UtilityType: lookup.UtilityElectric, Kind: KindStandard, URL: srv.URL, NameField: "UTILITY_NAME"},
	}, resilience.DefaultCircuitBreakerConfig())

	res, err := c.Query(context.Background(), -98.1, 30.2, "TX", lookup.UtilityElectric)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_HasEndpoint(t *testing.T) {
	c := New([]Endpoint{
		{State: "TX", UtilityType: lookup.UtilityElectric, Kind: KindSingleUtility, FixedName: "x"},
	}, resilience.DefaultCircuitBreakerConfig())
	assert.True(t, c.HasEndpoint("tx", lookup.UtilityElectric))
	assert.False(t, c.HasEndpoint("TX", lookup.UtilityGas))
}
