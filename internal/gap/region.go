package gap

import (
	"context"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Region binds one AOI's boundary, footprints, and detection parameters, and
// holds the resulting gaps after Run. It owns its inputs for its lifetime and
// is discarded once results are extracted; logging and configuration are
// injected at construction so concurrent regions never share state.
type Region struct {
	Name       string
	Boundary   *geom.Polygon
	Footprints []Footprint
	Config     TuneConfig

	// Space and Objective drive auto-tuning; NewRegion fills in defaults.
	Space     SearchSpace
	Objective Objective

	// Clip restricts the density grid to a sub-extent of the boundary's
	// bounding box. Tiled runs set it to the tile extent; the zero value
	// grids the whole boundary.
	Clip Extent

	// Tuned is the configuration selected by the last auto-tuned Run.
	Tuned *TuneConfig

	// TuneConcurrency bounds parallel candidate evaluation during
	// auto-tuned runs; <= 1 evaluates sequentially.
	TuneConcurrency int

	log  *zap.Logger
	gaps []GapPolygon
}

// NewRegion assembles a region with the default search space and objective.
// A nil logger is replaced with a no-op logger.
func NewRegion(name string, boundary *geom.Polygon, footprints []Footprint, cfg TuneConfig, log *zap.Logger) *Region {
	if log == nil {
		log = zap.NewNop()
	}
	return &Region{
		Name:       name,
		Boundary:   boundary,
		Footprints: footprints,
		Config:     cfg,
		Space:      DefaultSearchSpace(),
		Objective:  DefaultObjective(),
		log:        log.With(zap.String("region", name)),
	}
}

// Run detects gaps for the region. With autoTune the tuner selects the
// configuration; otherwise the region's own config is used as-is. Run is
// idempotent: each call recomputes and replaces the stored result.
//
// It fails with EmptyInputError when footprints or boundary are absent, and
// propagates InvalidParameterError and TuningExhaustedError from its
// dependents unchanged.
func (r *Region) Run(ctx context.Context, autoTune bool) ([]GapPolygon, error) {
	if r.Boundary == nil || r.Boundary.NumLinearRings() == 0 {
		return nil, &EmptyInputError{Missing: "boundary"}
	}
	if len(r.Footprints) == 0 {
		return nil, &EmptyInputError{Missing: "footprints"}
	}
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}

	if autoTune {
		tuner := &Tuner{Concurrency: r.TuneConcurrency, Log: r.log}
		result, err := tuner.Tune(ctx, r, r.Space, r.Objective)
		if err != nil {
			return nil, err
		}
		tuned := result.Config
		r.Tuned = &tuned
		r.gaps = result.Gaps
		return r.gaps, nil
	}

	field, err := r.buildField(r.detectionPoints(), r.Config.CellSize)
	if err != nil {
		return nil, err
	}
	gaps, err := Detect(field, r.Config)
	if err != nil {
		return nil, err
	}

	r.log.Debug("detection complete",
		zap.Int("footprints", len(r.Footprints)),
		zap.Int("gaps", len(gaps)),
	)
	r.gaps = gaps
	return r.gaps, nil
}

// Gaps returns the result of the most recent Run, nil before the first.
func (r *Region) Gaps() []GapPolygon {
	return r.gaps
}

// buildField grids the region at cellSize, honoring the clip extent when set.
func (r *Region) buildField(points []Footprint, cellSize float64) (*DensityField, error) {
	if r.Clip.Area() > 0 {
		return BuildFieldExtent(points, r.Boundary, r.Clip, cellSize)
	}
	return BuildField(points, r.Boundary, cellSize)
}

// detectionPoints merges the footprints with boundary chainage. The chainage
// interval comes from the region's base config and is not searched by the
// tuner, so the merged set is stable across tuning candidates.
func (r *Region) detectionPoints() []Footprint {
	chain := Chainage(r.Boundary, r.Config.ChainageInterval)
	if len(chain) == 0 {
		return r.Footprints
	}
	points := make([]Footprint, 0, len(r.Footprints)+len(chain))
	points = append(points, r.Footprints...)
	points = append(points, chain...)
	return points
}
