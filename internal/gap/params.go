package gap

// Connectivity selects how empty cells are grouped into regions.
type Connectivity int

const (
	// Conn4 groups cells sharing an edge.
	Conn4 Connectivity = 4
	// Conn8 additionally groups cells sharing only a corner.
	Conn8 Connectivity = 8
)

// TuneConfig is one named, bounded set of detection parameters. Every field
// has a declared valid range enforced by Validate before a run starts.
type TuneConfig struct {
	// CellSize is the density-grid resolution in projection units. > 0.
	CellSize float64 `json:"cell_size"`

	// OccupancyThreshold is the maximum footprint count for a cell to still
	// count as empty. >= 0.
	OccupancyThreshold int `json:"occupancy_threshold"`

	// Connectivity is 4 or 8.
	Connectivity Connectivity `json:"connectivity"`

	// MinArea discards gaps smaller than this, in squared projection
	// units. >= 0.
	MinArea float64 `json:"min_area"`

	// MinRectangularity discards gaps less rectangular than this. [0, 1].
	MinRectangularity float64 `json:"min_rectangularity"`

	// ChainageInterval is the spacing of synthetic boundary points merged
	// with the footprints so the AOI border does not read as a gap.
	// 0 disables chainage. >= 0.
	ChainageInterval float64 `json:"chainage_interval"`
}

// DefaultTuneConfig returns the default detection parameters. Values follow
// the ranges that work for building-centroid data in degree units.
func DefaultTuneConfig() TuneConfig {
	return TuneConfig{
		CellSize:           0.02,
		OccupancyThreshold: 0,
		Connectivity:       Conn4,
		MinArea:            0,
		MinRectangularity:  0.5,
		ChainageInterval:   0.01,
	}
}

// Validate checks every field against its declared range. It returns an
// InvalidParameterError for the first violation found.
func (c TuneConfig) Validate() error {
	if c.CellSize <= 0 {
		return &InvalidParameterError{Param: "cell_size", Value: c.CellSize, Reason: "must be > 0"}
	}
	if c.OccupancyThreshold < 0 {
		return &InvalidParameterError{Param: "occupancy_threshold", Value: c.OccupancyThreshold, Reason: "must be >= 0"}
	}
	if c.Connectivity != Conn4 && c.Connectivity != Conn8 {
		return &InvalidParameterError{Param: "connectivity", Value: int(c.Connectivity), Reason: "must be 4 or 8"}
	}
	if c.MinArea < 0 {
		return &InvalidParameterError{Param: "min_area", Value: c.MinArea, Reason: "must be >= 0"}
	}
	if c.MinRectangularity < 0 || c.MinRectangularity > 1 {
		return &InvalidParameterError{Param: "min_rectangularity", Value: c.MinRectangularity, Reason: "must be in [0, 1]"}
	}
	if c.ChainageInterval < 0 {
		return &InvalidParameterError{Param: "chainage_interval", Value: c.ChainageInterval, Reason: "must be >= 0"}
	}
	return nil
}
