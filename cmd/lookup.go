package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/service"
)

var (
	lookupAddress string
	lookupNoCache bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Resolve every utility type for a single address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if lookupAddress == "" {
			return eris.New("lookup: --address is required")
		}

		env, err := initEngine(ctx, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		svc := service.New(env.Geocoder, env.Pipeline, env.Store, time.Duration(cfg.Cache.TTLDays)*24*time.Hour)
		svc.SkipWater = cfg.Store.SkipWater

		result, err := svc.Lookup(ctx, lookupAddress, lookupNoCache)
		if err != nil {
			return eris.Wrap(err, "lookup")
		}

		zap.L().Info("lookup complete",
			zap.String("address", lookupAddress),
			zap.Float64("lat", result.Lat),
			zap.Float64("lon", result.Lon),
			zap.Int64("lookup_time_ms", result.LookupTimeMs),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupAddress, "address", "", "address to resolve")
	lookupCmd.Flags().BoolVar(&lookupNoCache, "no-cache", false, "bypass the result cache")
	rootCmd.AddCommand(lookupCmd)
}
