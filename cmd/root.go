package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "utility-lookup",
	Short: "US utility provider lookup service",
	Long:  "Resolves electric, gas, water, sewer, trash, and internet providers for a US address and serves the result over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if v, _ := cmd.Flags().GetString("database-url"); v != "" {
			cfg.Store.DatabaseURL = v
		}
		if v, _ := cmd.Flags().GetString("postgis-url"); v != "" {
			cfg.Store.PostgisURL = v
		}
		if v, _ := cmd.Flags().GetString("google-api-key"); v != "" {
			cfg.Geocoder.GoogleAPIKey = v
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("database-url", "", "override store.database_url (embedded SQLite DSN)")
	_ = viper.BindPFlag("store.database_url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.PersistentFlags().String("postgis-url", "", "override store.postgis_url (enables the PostGIS territory backend)")
	_ = viper.BindPFlag("store.postgis_url", rootCmd.PersistentFlags().Lookup("postgis-url"))

	rootCmd.PersistentFlags().String("google-api-key", "", "override geocoder.google_api_key (fallback geocoder, used when Census misses)")
	_ = viper.BindPFlag("geocoder.google_api_key", rootCmd.PersistentFlags().Lookup("google-api-key"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
