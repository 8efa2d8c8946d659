package tilerun

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/landsift/mindthegap/internal/gap"
	"github.com/landsift/mindthegap/internal/resilience"
	"github.com/landsift/mindthegap/internal/store"
)

// RunSpec describes one tiled run.
type RunSpec struct {
	// RunName keys the checkpoint; reusing a name resumes that run.
	RunName string

	// AOIID selects the AOI in the data store.
	AOIID string

	// Extent bounds the run. The zero value uses the boundary's bounding
	// box.
	Extent gap.Extent

	// TileSize is the tile edge length in projection units.
	TileSize float64
}

// Runner drives a tiled detection run against a data store. Failed tiles are
// recorded but never checkpointed, so a resumed run retries them.
type Runner struct {
	Store       store.DataStore
	Checkpoints store.CheckpointStore

	// Config is the base detection configuration applied to every tile.
	Config gap.TuneConfig

	// AutoTune runs the parameter search per tile instead of using Config
	// directly.
	AutoTune bool

	// Space bounds the tuning search; the zero value uses the default
	// space.
	Space gap.SearchSpace

	// ExcludeFailed skips tiles that failed in an earlier attempt of the
	// run instead of retrying them.
	ExcludeFailed bool

	// Concurrency bounds the number of tiles processed in parallel;
	// <= 1 runs sequentially.
	Concurrency int

	// Retry governs per-operation retries on transient store failures.
	Retry resilience.RetryConfig

	Log *zap.Logger
}

// Run executes the tiled run and returns its summary. Setup failures (bad
// spec, boundary fetch, checkpoint load) fail the run outright; per-tile
// failures are counted in the summary and recorded for later retry.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (*store.RunSummary, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("run", spec.RunName))

	if spec.RunName == "" {
		return nil, &gap.InvalidParameterError{Param: "run_name", Value: spec.RunName, Reason: "must not be empty"}
	}
	retry := r.Retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = store.IsTransient
	}

	boundary, err := resilience.DoVal(ctx, withRetryLog(retry, log, "fetch boundary", ""), func(ctx context.Context) (*geom.Polygon, error) {
		return r.Store.FetchBoundary(ctx, spec.AOIID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tilerun: fetch boundary for %s", spec.AOIID)
	}

	extent := spec.Extent
	if extent.Area() <= 0 {
		extent = gap.BoundsExtent(boundary.Bounds())
	}
	tiles, err := GenerateTiles(extent, spec.TileSize)
	if err != nil {
		return nil, err
	}

	done, err := r.Checkpoints.LoadCheckpoint(ctx, spec.RunName)
	if err != nil {
		return nil, eris.Wrap(err, "tilerun: load checkpoint")
	}
	var excluded map[string]string
	if r.ExcludeFailed {
		excluded, err = r.Checkpoints.LoadFailed(ctx, spec.RunName)
		if err != nil {
			return nil, eris.Wrap(err, "tilerun: load failed tiles")
		}
	}

	summary := &store.RunSummary{
		RunID:     uuid.New().String(),
		RunName:   spec.RunName,
		StartedAt: time.Now().UTC(),
	}
	var mu sync.Mutex

	log.Info("starting tiled run",
		zap.String("aoi", spec.AOIID),
		zap.Int("tiles", len(tiles)),
		zap.Int("checkpointed", len(done)),
		zap.Bool("auto_tune", r.AutoTune),
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, tile := range tiles {
		if done[tile.ID] {
			summary.Skipped++
			continue
		}
		if cause, ok := excluded[tile.ID]; ok {
			log.Debug("skipping previously failed tile",
				zap.String("tile", tile.ID),
				zap.String("cause", cause),
			)
			summary.Skipped++
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			err := r.processTile(gctx, spec, tile, boundary, retry, log)
			if err != nil {
				log.Warn("tile failed", zap.String("tile", tile.ID), zap.Error(err))
				if markErr := r.Checkpoints.MarkFailed(gctx, spec.RunName, tile.ID, err.Error()); markErr != nil {
					log.Error("failed to record tile failure",
						zap.String("tile", tile.ID),
						zap.Error(markErr),
					)
				}
			}

			mu.Lock()
			if err != nil {
				summary.Failed++
			} else {
				summary.Completed++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "tilerun: run aborted")
	}

	summary.FinishedAt = time.Now().UTC()
	if err := r.Checkpoints.SaveRunSummary(ctx, *summary); err != nil {
		log.Error("failed to save run summary", zap.Error(err))
	}

	log.Info("tiled run finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// processTile takes one tile through fetch, detect, persist, and checkpoint.
// The checkpoint is written only after the tile's gaps are persisted.
func (r *Runner) processTile(ctx context.Context, spec RunSpec, tile Tile, boundary *geom.Polygon, retry resilience.RetryConfig, log *zap.Logger) error {
	footprints, err := resilience.DoVal(ctx, withRetryLog(retry, log, "fetch footprints", tile.ID), func(ctx context.Context) ([]gap.Footprint, error) {
		return r.Store.FetchFootprints(ctx, spec.AOIID, tile.Extent)
	})
	if err != nil {
		return eris.Wrap(err, "fetch footprints")
	}

	gaps, err := r.detectTile(ctx, tile, boundary, footprints, log)
	if err != nil {
		return eris.Wrap(err, "detect")
	}
	for i := range gaps {
		gaps[i].TileID = tile.ID
	}

	err = resilience.Do(ctx, withRetryLog(retry, log, "persist gaps", tile.ID), func(ctx context.Context) error {
		return r.Store.PersistGaps(ctx, tile.ID, gaps)
	})
	if err != nil {
		return eris.Wrap(err, "persist gaps")
	}

	err = resilience.Do(ctx, withRetryLog(retry, log, "append checkpoint", tile.ID), func(ctx context.Context) error {
		return r.Checkpoints.AppendCheckpoint(ctx, spec.RunName, tile.ID)
	})
	if err != nil {
		return eris.Wrap(err, "append checkpoint")
	}

	log.Debug("tile complete",
		zap.String("tile", tile.ID),
		zap.Int("footprints", len(footprints)),
		zap.Int("gaps", len(gaps)),
	)
	return nil
}

// detectTile runs detection on one tile. A tile with no footprints is a
// normal empty result, not an error.
func (r *Runner) detectTile(ctx context.Context, tile Tile, boundary *geom.Polygon, footprints []gap.Footprint, log *zap.Logger) ([]gap.GapPolygon, error) {
	if len(footprints) == 0 {
		return nil, nil
	}

	region := gap.NewRegion(tile.ID, boundary, footprints, r.Config, log)
	region.Clip = tile.Extent
	if !r.Space.IsEmpty() {
		region.Space = r.Space
	}

	gaps, err := region.Run(ctx, r.AutoTune)
	if err != nil {
		// An exhausted search on a sparse tile falls back to the base
		// configuration rather than failing the tile.
		var exhausted *gap.TuningExhaustedError
		if r.AutoTune && errors.As(err, &exhausted) {
			log.Debug("tuning exhausted, using base config", zap.String("tile", tile.ID))
			return region.Run(ctx, false)
		}
		return nil, err
	}
	return gaps, nil
}

func withRetryLog(cfg resilience.RetryConfig, log *zap.Logger, operation, tileID string) resilience.RetryConfig {
	cfg.OnRetry = resilience.RetryLogger(log, operation, tileID)
	return cfg
}
