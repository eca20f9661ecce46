// Package stategis queries state and county GIS REST services (mostly
// ArcGIS FeatureServer/MapServer "identify" endpoints) that publish electric
// cooperative, municipal utility, or special-district boundaries the
// national HIFLD/EIA datasets miss.
package stategis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/resilience"
)

// EndpointKind distinguishes the shapes of ArcGIS service this client knows
// how to query.
type EndpointKind string

const (
	// KindSingleUtility identifies a single named utility for the whole
	// service area; any hit resolves to a fixed provider name.
	KindSingleUtility EndpointKind = "single_utility"
	// KindCoordinateMapping looks up a field value from the response and
	// maps it through a lookup table to a provider name (e.g. a coop ID
	// code that must be translated to a display name).
	KindCoordinateMapping EndpointKind = "coordinate_mapping"
	// KindStandard reads the provider name directly out of a response
	// field.
	KindStandard EndpointKind = "standard"
	// KindMultiLayer queries several layers in the same service and takes
	// the first that returns a feature.
	KindMultiLayer EndpointKind = "multi_layer"
)

// Endpoint describes one state or county GIS service this client can query
// for one utility type.
type Endpoint struct {
	State          string
	UtilityType    lookup.UtilityType
	Kind           EndpointKind
	URL            string
	Layers         []int             // used by KindMultiLayer
	NameField      string            // field in response attributes holding the provider name
	ValueMap       map[string]string // used by KindCoordinateMapping: raw field value -> provider name
	FixedName      string            // used by KindSingleUtility
	Timeout        time.Duration
	RateLimitPerSec float64
}

// Result is what a successful state GIS query resolves to.
type Result struct {
	ProviderName string
	RawFields    map[string]any
	Endpoint     string
}

// Client dispatches point queries to the registered per-(state,utilityType)
// endpoint, protected by a circuit breaker and an optional rate limiter per
// endpoint, with an in-memory result cache so repeated lookups near the
// same point don't re-hit the upstream service.
type Client struct {
	httpClient *http.Client
	breakers   *resilience.ServiceBreakers
	endpoints  map[string]Endpoint // key: state+":"+utilityType
	limiters   map[string]*rate.Limiter

	cacheMu sync.RWMutex
	cache   map[string]*Result
}

// New builds a Client from a set of registered endpoints, one circuit
// breaker registry shared across all of them (so a burst of failures
// against one state's ArcGIS instance doesn't affect any other).
func New(endpoints []Endpoint, breakerCfg resilience.CircuitBreakerConfig) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breakers:   resilience.NewServiceBreakers(breakerCfg),
		endpoints:  make(map[string]Endpoint, len(endpoints)),
		limiters:   make(map[string]*rate.Limiter, len(endpoints)),
		cache:      make(map[string]*Result),
	}
	for _, ep := range endpoints {
		key := endpointKey(ep.State, ep.UtilityType)
		c.endpoints[key] = ep
		if ep.RateLimitPerSec > 0 {
			c.limiters[key] = rate.NewLimiter(rate.Limit(ep.RateLimitPerSec), 1)
		}
	}
	return c
}

func endpointKey(state string, ut lookup.UtilityType) string {
	return strings.ToUpper(state) + ":" + string(ut)
}

// HasEndpoint reports whether a state GIS service is registered for the
// given state and utility type, so callers can skip the step entirely
// rather than pay for a guaranteed circuit-open error.
func (c *Client) HasEndpoint(state string, ut lookup.UtilityType) bool {
	_, ok := c.endpoints[endpointKey(state, ut)]
	return ok
}

// Query resolves the provider at (lng, lat) for the given state and utility
// type via the registered GIS endpoint. Returns nil, nil when there is no
// endpoint registered, the circuit is open, or the point has no match —
// all three are "try the next source" outcomes, not errors, to the caller.
func (c *Client) Query(ctx context.Context, lng, lat float64, state string, ut lookup.UtilityType) (*Result, error) {
	key := endpointKey(state, ut)
	ep, ok := c.endpoints[key]
	if !ok {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("%s:%.5f,%.5f", key, lng, lat)
	if cached := c.getCached(cacheKey); cached != nil {
		return cached, nil
	}

	if limiter := c.limiters[key]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "stategis: rate limiter wait")
		}
	}

	breaker := c.breakers.Get(key)
	result, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*Result, error) {
		return c.query(ctx, ep)
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			zap.L().Debug("stategis: circuit open, skipping", zap.String("endpoint", key))
			return nil, nil
		}
		if resilience.IsTransient(err) {
			zap.L().Debug("stategis: transient error", zap.String("endpoint", key), zap.Error(err))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "stategis: query %s", key)
	}

	if result != nil {
		c.setCached(cacheKey, result)
	}
	return result, nil
}

func (c *Client) query(ctx context.Context, ep Endpoint) (*Result, error) {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch ep.Kind {
	case KindSingleUtility:
		return &Result{ProviderName: ep.FixedName, Endpoint: ep.URL}, nil
	case KindMultiLayer:
		for _, layer := range ep.Layers {
			res, err := c.identify(ctx, ep, layer)
			if err != nil {
				return nil, err
			}
			if res != nil {
				return res, nil
			}
		}
		return nil, nil
	default:
		return c.identify(ctx, ep, -1)
	}
}

// identify performs an ArcGIS "identify" REST query against the given
// layer (or the service's default layer if layer < 0) and extracts the
// provider name per the endpoint's configured field mapping.
func (c *Client) identify(ctx context.Context, ep Endpoint, layer int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "stategis: build request")
	}
	q := req.URL.Query()
	q.Set("f", "json")
	if layer >= 0 {
		q.Set("layers", fmt.Sprintf("all:%d", layer))
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "stategis: http request"), 0)
	}
	defer resp.Body.Close()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(eris.Errorf("stategis: transient status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("stategis: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "stategis: read response body")
	}

	var payload struct {
		Results []struct {
			Attributes map[string]any `json:"attributes"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "stategis: decode response")
	}
	if len(payload.Results) == 0 {
		return nil, nil
	}

	attrs := payload.Results[0].Attributes
	raw, ok := attrs[ep.NameField]
	if !ok {
		return nil, nil
	}
	rawStr := fmt.Sprintf("%v", raw)

	name := rawStr
	if ep.Kind == KindCoordinateMapping {
		mapped, ok := ep.ValueMap[rawStr]
		if !ok {
			return nil, nil
		}
		name = mapped
	}
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return &Result{ProviderName: name, RawFields: attrs, Endpoint: ep.URL}, nil
}

func (c *Client) getCached(key string) *Result {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return c.cache[key]
}

func (c *Client) setCached(key string, r *Result) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = r
}
