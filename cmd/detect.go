package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landsift/mindthegap/internal/gap"
	"github.com/landsift/mindthegap/internal/store"
)

var (
	detectAOI        string
	detectFootprints string
	detectBoundary   string
	detectOut        string
	detectNoTune     bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect gaps in one AOI and write them as GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var source store.FootprintSource
		if detectFootprints != "" {
			if detectBoundary == "" {
				return eris.New("--boundary is required with --footprints")
			}
			source = store.NewFileSource(detectFootprints, detectBoundary)
		} else {
			env, err := initEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.data == nil {
				return eris.New("detect without --footprints needs the postgres store driver")
			}
			source = env.data
		}

		boundary, err := source.FetchBoundary(ctx, detectAOI)
		if err != nil {
			return eris.Wrapf(err, "fetch boundary for %s", detectAOI)
		}
		footprints, err := source.FetchFootprints(ctx, detectAOI, gap.Extent{})
		if err != nil {
			return eris.Wrapf(err, "fetch footprints for %s", detectAOI)
		}

		region := gap.NewRegion(detectAOI, boundary, footprints, cfg.Detect.GapConfig(), zap.L())
		region.TuneConcurrency = cfg.Tune.Concurrency
		if space := cfg.Tune.SearchSpace(); !space.IsEmpty() {
			region.Space = space
		}

		autoTune := cfg.Tune.Auto && !detectNoTune
		gaps, err := region.Run(ctx, autoTune)
		if err != nil {
			return eris.Wrapf(err, "detect gaps for %s", detectAOI)
		}

		data, err := gap.MarshalGeoJSON(gaps)
		if err != nil {
			return err
		}

		if detectOut == "-" {
			fmt.Println(string(data))
		} else if err := os.WriteFile(detectOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", detectOut)
		}

		zap.L().Info("detection complete",
			zap.String("aoi", detectAOI),
			zap.Int("footprints", len(footprints)),
			zap.Int("gaps", len(gaps)),
			zap.Bool("auto_tune", autoTune),
		)
		if region.Tuned != nil {
			zap.L().Info("selected configuration",
				zap.Float64("cell_size", region.Tuned.CellSize),
				zap.Float64("min_rectangularity", region.Tuned.MinRectangularity),
			)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectAOI, "aoi", "", "AOI identifier")
	detectCmd.Flags().StringVar(&detectFootprints, "footprints", "", "footprint shapefile (skips the database)")
	detectCmd.Flags().StringVar(&detectBoundary, "boundary", "", "boundary file, .shp or GeoJSON (with --footprints)")
	detectCmd.Flags().StringVar(&detectOut, "out", "-", "output GeoJSON path, - for stdout")
	detectCmd.Flags().BoolVar(&detectNoTune, "no-auto-tune", false, "use the configured parameters without searching")
	_ = detectCmd.MarkFlagRequired("aoi")
	rootCmd.AddCommand(detectCmd)
}
