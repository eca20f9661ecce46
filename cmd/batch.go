package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/normalize"
	"github.com/sells-group/utility-lookup/internal/validate"
)

var (
	batchInputPath  string
	batchOutputPath string
	batchRunID      string
)

// Exit codes per the CLI contract: 0 success, 1 user error, 2 transient
// failure.
const (
	exitOK        = 0
	exitUserError = 1
	exitTransient = 2
)

func loadBatchRows(path string) ([]validate.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "batch: parse %s", path)
	}
	if len(records) < 2 {
		return nil, eris.New("batch: input file has no data rows")
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"id", "address", "utility_type"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("batch: missing required column %q", required)
		}
	}

	rows := make([]validate.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := validate.Row{
			ID:          rec[col["id"]],
			RawAddress:  rec[col["address"]],
			UtilityType: lookup.UtilityType(rec[col["utility_type"]]),
		}
		if i, ok := col["tenant_provider"]; ok && i < len(rec) {
			row.TenantRaw = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Validate engine output against a tenant-reported ground-truth file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchInputPath == "" {
			fmt.Fprintln(os.Stderr, "batch: --input is required")
			os.Exit(exitUserError)
		}

		rows, err := loadBatchRows(batchInputPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUserError)
		}
		if cfg.Batch.MaxAddresses > 0 && len(rows) > cfg.Batch.MaxAddresses {
			fmt.Fprintf(os.Stderr, "batch: %d rows exceeds configured max_addresses %d\n", len(rows), cfg.Batch.MaxAddresses)
			os.Exit(exitUserError)
		}

		env, err := initEngine(ctx, "batch")
		if err != nil {
			zap.L().Error("batch: engine init failed", zap.Error(err))
			os.Exit(exitTransient)
		}
		defer env.Close()

		parentGroups, err := normalize.LoadParentGroups(cfg.Data.ParentGroupsPath)
		if err != nil {
			zap.L().Error("batch: load parent groups failed", zap.Error(err))
			os.Exit(exitTransient)
		}

		runner := &validate.Runner{
			Geocoder:           env.Geocoder,
			Resolver:           env.Pipeline,
			Validator:          validate.New(env.Normalizer, parentGroups),
			Checkpointer:       env.Store,
			GeocodeConcurrency: cfg.Batch.GeocodeWorkers,
			LookupConcurrency:  cfg.Batch.LookupWorkers,
		}

		runID := batchRunID
		if runID == "" {
			runID = validate.NewRunID()
		}

		results, err := runner.Run(ctx, runID, rows)
		if err != nil {
			zap.L().Error("batch: run failed", zap.Error(err))
			os.Exit(exitTransient)
		}

		if err := writeBatchResults(batchOutputPath, results); err != nil {
			zap.L().Error("batch: write results failed", zap.Error(err))
			os.Exit(exitTransient)
		}

		summary := summarizeBatch(results)
		zap.L().Info("batch complete", zap.Int("rows", len(results)), zap.Any("by_category", summary))
		return nil
	},
}

func summarizeBatch(results []validate.RowResult) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		counts[string(r.Compare.Category)]++
	}
	return counts
}

func writeBatchResults(path string, results []validate.RowResult) error {
	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "batch: create %s", path)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func init() {
	batchCmd.Flags().StringVar(&batchInputPath, "input", "", "CSV file with columns id, address, utility_type, tenant_provider")
	batchCmd.Flags().StringVar(&batchOutputPath, "output", "", "write results JSON here instead of stdout")
	batchCmd.Flags().StringVar(&batchRunID, "run-id", "", "resume an earlier batch run from its checkpoint")
	rootCmd.AddCommand(batchCmd)
}
