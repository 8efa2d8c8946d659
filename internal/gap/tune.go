package gap

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SearchSpace declares the parameter grid the tuner explores. Dimensions left
// empty fall back to the base configuration's value for that parameter.
type SearchSpace struct {
	CellSizes           []float64     `json:"cell_sizes"`
	OccupancyThresholds []int         `json:"occupancy_thresholds"`
	MinAreas            []float64     `json:"min_areas"`
	MinRectangularities []float64     `json:"min_rectangularities"`
	Connectivities      []Connectivity `json:"connectivities"`
}

// DefaultSearchSpace returns the stock grid: a sweep of cell sizes around the
// default with a few rectangularity cutoffs.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		CellSizes:           []float64{0.03, 0.025, 0.02, 0.015, 0.01},
		MinRectangularities: []float64{0.5, 0.65, 0.8},
	}
}

// IsEmpty reports whether no dimension of the space is set.
func (s SearchSpace) IsEmpty() bool {
	return len(s.CellSizes) == 0 && len(s.OccupancyThresholds) == 0 &&
		len(s.MinAreas) == 0 && len(s.MinRectangularities) == 0 &&
		len(s.Connectivities) == 0
}

// Configs expands the space into the cartesian product of its dimensions,
// with base supplying values for empty dimensions. Order is deterministic.
func (s SearchSpace) Configs(base TuneConfig) []TuneConfig {
	cellSizes := s.CellSizes
	if len(cellSizes) == 0 {
		cellSizes = []float64{base.CellSize}
	}
	thresholds := s.OccupancyThresholds
	if len(thresholds) == 0 {
		thresholds = []int{base.OccupancyThreshold}
	}
	minAreas := s.MinAreas
	if len(minAreas) == 0 {
		minAreas = []float64{base.MinArea}
	}
	minRects := s.MinRectangularities
	if len(minRects) == 0 {
		minRects = []float64{base.MinRectangularity}
	}
	conns := s.Connectivities
	if len(conns) == 0 {
		conns = []Connectivity{base.Connectivity}
	}

	var configs []TuneConfig
	for _, cs := range cellSizes {
		for _, th := range thresholds {
			for _, ma := range minAreas {
				for _, mr := range minRects {
					for _, cn := range conns {
						cfg := base
						cfg.CellSize = cs
						cfg.OccupancyThreshold = th
						cfg.MinArea = ma
						cfg.MinRectangularity = mr
						cfg.Connectivity = cn
						configs = append(configs, cfg)
					}
				}
			}
		}
	}
	return configs
}

// Objective scores a gap set. The default weighting favors few large
// rectangular gaps over many small irregular ones: normalized total gap area
// and mean rectangularity push the score up, gap count pulls it down.
type Objective struct {
	AreaWeight  float64 `json:"area_weight"`
	RectWeight  float64 `json:"rect_weight"`
	CountWeight float64 `json:"count_weight"`
}

// DefaultObjective returns the stock objective weights.
func DefaultObjective() Objective {
	return Objective{AreaWeight: 1.0, RectWeight: 1.0, CountWeight: 0.5}
}

// Score computes the scalar objective for a gap set detected within aoi.
// An empty gap set scores zero.
func (o Objective) Score(gaps []GapPolygon, aoi Extent) float64 {
	if len(gaps) == 0 {
		return 0
	}
	totalArea := 0.0
	totalRect := 0.0
	for _, g := range gaps {
		totalArea += g.Area
		totalRect += g.Rectangularity
	}
	areaTerm := 0.0
	if aoi.Area() > 0 {
		areaTerm = totalArea / aoi.Area()
	}
	n := float64(len(gaps))
	return o.AreaWeight*areaTerm + o.RectWeight*(totalRect/n) - o.CountWeight*(n/(n+1))
}

// TuneResult is one evaluated configuration with its gaps and quality score.
type TuneResult struct {
	Config TuneConfig
	Gaps   []GapPolygon
	Score  float64

	// InGapsRatio is the fraction of footprints that fall inside the
	// detected gaps; low values mean the mask avoids built-up cells.
	InGapsRatio float64

	// EmptyAreaRatio is the share of empty in-AOI cells covered by the
	// gaps; high values mean the mask explains most of the open space.
	EmptyAreaRatio float64
}

// Tuner searches a parameter grid for the configuration maximizing an
// objective over a region's data. Tuning is a pure search: it only reads the
// region's footprints and boundary.
type Tuner struct {
	// Concurrency bounds parallel candidate evaluation; <= 1 evaluates
	// sequentially. Candidate evaluations share no mutable state beyond
	// the best-result accumulator.
	Concurrency int

	Log *zap.Logger
}

// Tune evaluates every configuration in the search space against the region
// and returns the best-scoring result. Density fields are cached per cell
// size for the duration of the call. If the space is empty or no candidate
// validates, Tune fails with TuningExhaustedError.
func (t *Tuner) Tune(ctx context.Context, region *Region, space SearchSpace, objective Objective) (*TuneResult, error) {
	log := t.Log
	if log == nil {
		log = zap.NewNop()
	}

	if space.IsEmpty() {
		return nil, &TuningExhaustedError{Candidates: 0}
	}
	configs := space.Configs(region.Config)

	points := region.detectionPoints()

	// Build one field per distinct cell size up front. Invalid cell sizes
	// disqualify their candidates but not the whole search.
	fields := make(map[float64]*DensityField)
	for _, cfg := range configs {
		if _, ok := fields[cfg.CellSize]; ok {
			continue
		}
		field, err := region.buildField(points, cfg.CellSize)
		if err != nil {
			log.Debug("skipping cell size",
				zap.Float64("cell_size", cfg.CellSize),
				zap.Error(err),
			)
			fields[cfg.CellSize] = nil
			continue
		}
		fields[cfg.CellSize] = field
	}

	var (
		mu        sync.Mutex
		best      *TuneResult
		bestIndex int
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := t.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, cfg := range configs {
		field := fields[cfg.CellSize]
		if field == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gaps, err := Detect(field, cfg)
			if err != nil {
				log.Debug("candidate rejected", zap.Error(err))
				return nil
			}

			result := &TuneResult{
				Config: cfg,
				Gaps:   gaps,
				Score:  objective.Score(gaps, field.Extent),
			}
			result.InGapsRatio, result.EmptyAreaRatio = fitDiagnostics(field, cfg, gaps, points)

			mu.Lock()
			// Deterministic selection regardless of evaluation order:
			// higher score wins, ties go to the earlier candidate.
			if best == nil || result.Score > best.Score ||
				(result.Score == best.Score && i < bestIndex) {
				best = result
				bestIndex = i
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if best == nil {
		return nil, &TuningExhaustedError{Candidates: len(configs)}
	}

	log.Info("tuning complete",
		zap.Int("candidates", len(configs)),
		zap.Float64("score", best.Score),
		zap.Float64("cell_size", best.Config.CellSize),
		zap.Float64("min_rectangularity", best.Config.MinRectangularity),
		zap.Float64("in_gaps_ratio", best.InGapsRatio),
		zap.Float64("empty_area_ratio", best.EmptyAreaRatio),
	)
	return best, nil
}

// fitDiagnostics computes how well a gap set fits the data: the fraction of
// points landing in gap cells and the share of empty cells the gaps cover.
func fitDiagnostics(field *DensityField, cfg TuneConfig, gaps []GapPolygon, points []Footprint) (inGaps, emptyCovered float64) {
	gapCells := make(map[int]bool)
	for _, g := range gaps {
		for _, idx := range g.cells {
			gapCells[idx] = true
		}
	}

	inside := 0
	total := 0
	for _, fp := range points {
		x, y, ok := footprintAnchor(fp)
		if !ok {
			continue
		}
		total++
		col, row, ok := field.cellAt(x, y)
		if ok && gapCells[row*field.Cols+col] {
			inside++
		}
	}
	if total > 0 {
		inGaps = float64(inside) / float64(total)
	}

	emptyTotal := 0
	for i := range field.counts {
		if field.inAOI[i] && field.counts[i] <= cfg.OccupancyThreshold {
			emptyTotal++
		}
	}
	if emptyTotal == 0 {
		emptyCovered = 1
	} else {
		emptyCovered = float64(len(gapCells)) / float64(emptyTotal)
	}
	return inGaps, emptyCovered
}
