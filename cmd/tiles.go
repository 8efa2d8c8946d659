package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landsift/mindthegap/internal/tilerun"
)

var (
	tilesAOI           string
	tilesRunName       string
	tilesSize          float64
	tilesConcurrency   int
	tilesExcludeFailed bool
	tilesNoTune        bool
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Run tiled gap detection over an AOI",
	Long:  "Partitions the AOI into tiles and detects gaps per tile with retries and a durable checkpoint. Re-running with the same --run name resumes, skipping completed tiles and retrying failed ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		if env.data == nil {
			return eris.New("tiled runs need the postgres store driver")
		}

		size := tilesSize
		if size == 0 {
			size = cfg.Tiles.Size
		}
		concurrency := tilesConcurrency
		if concurrency == 0 {
			concurrency = cfg.Tiles.Concurrency
		}

		runner := &tilerun.Runner{
			Store:         env.data,
			Checkpoints:   env.checkpoints,
			Config:        cfg.Detect.GapConfig(),
			AutoTune:      cfg.Tune.Auto && !tilesNoTune,
			Space:         cfg.Tune.SearchSpace(),
			ExcludeFailed: tilesExcludeFailed || cfg.Tiles.ExcludeFailed,
			Concurrency:   concurrency,
			Retry:         cfg.Retry.RetryConfig(),
			Log:           zap.L(),
		}

		summary, err := runner.Run(ctx, tilerun.RunSpec{
			RunName:  tilesRunName,
			AOIID:    tilesAOI,
			TileSize: size,
		})
		if err != nil {
			return eris.Wrapf(err, "tiled run %s", tilesRunName)
		}

		if summary.Failed > 0 {
			return eris.Errorf("run %s finished with %d failed tiles; re-run to retry them", tilesRunName, summary.Failed)
		}
		return nil
	},
}

func init() {
	tilesCmd.Flags().StringVar(&tilesAOI, "aoi", "", "AOI identifier")
	tilesCmd.Flags().StringVar(&tilesRunName, "run", "", "run name; reuse to resume")
	tilesCmd.Flags().Float64Var(&tilesSize, "tile-size", 0, "tile edge length in projection units (default from config)")
	tilesCmd.Flags().IntVar(&tilesConcurrency, "concurrency", 0, "tiles processed in parallel (default from config)")
	tilesCmd.Flags().BoolVar(&tilesExcludeFailed, "exclude-failed", false, "skip tiles that failed in an earlier attempt")
	tilesCmd.Flags().BoolVar(&tilesNoTune, "no-auto-tune", false, "use the configured parameters without searching")
	_ = tilesCmd.MarkFlagRequired("aoi")
	_ = tilesCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(tilesCmd)
}
