package validate

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	internalgeocode "github.com/sells-group/utility-lookup/internal/geocode"
	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/pipeline"
	"github.com/sells-group/utility-lookup/pkg/geocode"
)

// Row is one line of a batch-validation input file: an address to resolve
// plus the tenant's self-reported provider for comparison.
type Row struct {
	ID          string
	RawAddress  string
	UtilityType lookup.UtilityType
	TenantRaw   string
}

// RowResult pairs a Row with its geocode, engine lookup, and comparison
// outcome. Any of the three stages can fail independently; Err records
// whichever stage failed first without discarding the row from the batch.
type RowResult struct {
	Row
	Geocoded *geocode.Result
	Lookup   *lookup.ProviderResult
	Compare  Result
	Err      string
}

// Resolver is the subset of the resolution engine the batch validator
// needs: a single-utility-type lookup given already-geocoded coordinates.
// *pipeline.Pipeline satisfies this directly.
type Resolver interface {
	Resolve(ctx context.Context, in pipeline.Input) (*lookup.ProviderResult, error)
}

// Runner drives the two-phase batch pipeline: bulk geocode, then
// bounded-concurrency spatial lookup plus comparison, with checkpointing
// after each phase so a crash loses at most the work of the phase in flight.
type Runner struct {
	Geocoder          geocode.Client
	Resolver          Resolver
	Validator         *Validator
	Checkpointer      Checkpointer
	GeocodeConcurrency int
	LookupConcurrency  int
}

// Checkpointer persists batch progress; internal/store.Store satisfies it.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, runID string, data []byte) error
	LoadCheckpoint(ctx context.Context, runID string) (data []byte, ok bool, err error)
}

type checkpoint struct {
	RunID     string      `json:"run_id"`
	Phase     string      `json:"phase"`
	Completed []RowResult `json:"completed"`
}

// NewRunID generates a fresh batch run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes the full batch against rows, resuming from a prior
// checkpoint under runID if one exists. Results preserve input order.
func (r *Runner) Run(ctx context.Context, runID string, rows []Row) ([]RowResult, error) {
	if r.GeocodeConcurrency <= 0 {
		r.GeocodeConcurrency = 5
	}
	if r.LookupConcurrency <= 0 {
		r.LookupConcurrency = 32
	}

	results := make([]RowResult, len(rows))
	for i, row := range rows {
		results[i] = RowResult{Row: row}
	}

	if r.Checkpointer != nil {
		if data, ok, err := r.Checkpointer.LoadCheckpoint(ctx, runID); err != nil {
			return nil, eris.Wrap(err, "validate: load checkpoint")
		} else if ok {
			var cp checkpoint
			if err := json.Unmarshal(data, &cp); err == nil && len(cp.Completed) == len(results) {
				results = cp.Completed
			}
		}
	}

	if err := r.phaseGeocode(ctx, results); err != nil {
		return nil, err
	}
	if err := r.checkpointPhase(ctx, runID, "geocode", results); err != nil {
		return nil, err
	}

	if err := r.phaseLookupAndCompare(ctx, results); err != nil {
		return nil, err
	}
	if err := r.checkpointPhase(ctx, runID, "lookup", results); err != nil {
		return nil, err
	}

	return results, nil
}

// phaseGeocode resolves each row's raw address to coordinates. Persistent
// failures leave Geocoded nil and Err set; the batch continues.
func (r *Runner) phaseGeocode(ctx context.Context, results []RowResult) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.GeocodeConcurrency)

	for i := range results {
		if results[i].Geocoded != nil || results[i].Err != "" {
			continue // resumed from checkpoint
		}
		i := i
		eg.Go(func() error {
			res, err := r.Geocoder.Geocode(gCtx, geocode.AddressInput{
				ID:     results[i].ID,
				Street: results[i].RawAddress,
			})
			if err != nil || res == nil || !res.Matched {
				results[i].Err = "geocode failed"
				return nil
			}
			results[i].Geocoded = res
			return nil
		})
	}
	return eg.Wait()
}

// phaseLookupAndCompare resolves the provider for each successfully
// geocoded row and classifies it against the tenant-reported value.
func (r *Runner) phaseLookupAndCompare(ctx context.Context, results []RowResult) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.LookupConcurrency)

	for i := range results {
		if results[i].Geocoded == nil || results[i].Err != "" || results[i].Lookup != nil {
			continue
		}
		i := i
		eg.Go(func() error {
			addr := internalgeocode.FillFromRaw(lookup.GeocodedAddress{
				Lat: results[i].Geocoded.Latitude, Lon: results[i].Geocoded.Longitude,
			}, results[i].RawAddress)
			in := pipeline.Input{
				Lat: addr.Lat, Lon: addr.Lon,
				State: addr.State, Zip: addr.Zip, City: addr.City, County: addr.County,
				RawAddress:  results[i].RawAddress,
				UtilityType: results[i].UtilityType,
			}
			pr, err := r.Resolver.Resolve(gCtx, in)
			if err != nil {
				results[i].Err = "lookup failed: " + err.Error()
				return nil
			}
			results[i].Lookup = pr

			engineName := ""
			var alternatives []string
			if pr != nil {
				engineName = pr.DisplayName
				for _, alt := range pr.Alternatives {
					alternatives = append(alternatives, alt.Provider)
				}
			}
			results[i].Compare = r.Validator.Compare(engineName, results[i].TenantRaw, results[i].UtilityType, in.State, alternatives)
			return nil
		})
	}
	return eg.Wait()
}

func (r *Runner) checkpointPhase(ctx context.Context, runID, phase string, results []RowResult) error {
	if r.Checkpointer == nil {
		return nil
	}
	data, err := json.Marshal(checkpoint{RunID: runID, Phase: phase, Completed: results})
	if err != nil {
		return eris.Wrap(err, "validate: marshal checkpoint")
	}
	return eris.Wrap(r.Checkpointer.SaveCheckpoint(ctx, runID, data), "validate: save checkpoint")
}
