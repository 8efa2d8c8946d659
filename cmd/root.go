package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landsift/mindthegap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mindthegap",
	Short: "Detect rectangular gaps in building-footprint coverage",
	Long:  "Grids an area of interest into a density field, finds connected empty regions, and keeps the rectangular ones as candidate coverage gaps. Runs against PostGIS footprint tables or local shapefiles.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
