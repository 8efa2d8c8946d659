package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func baseConfig(cellSize float64) TuneConfig {
	return TuneConfig{
		CellSize:          cellSize,
		Connectivity:      Conn4,
		MinRectangularity: 0,
	}
}

func TestDetect_SingleRectangularGap(t *testing.T) {
	// 10x10 grid with a 3x2 empty block at cols 2-4, rows 3-4.
	skip := map[[2]int]bool{}
	for col := 2; col <= 4; col++ {
		for row := 3; row <= 4; row++ {
			skip[[2]int{col, row}] = true
		}
	}
	f, err := BuildField(coverExcept(10, 10, 0.1, skip), squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	gaps, err := Detect(f, baseConfig(0.1))
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	g := gaps[0]
	assert.InDelta(t, 6*0.01, g.Area, 1e-9)
	assert.InDelta(t, 1.0, g.Rectangularity, 1e-9)

	poly, ok := g.Geom.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.InDelta(t, g.Area, poly.Area(), 1e-9)
}

func TestDetect_LShapeRectangularity(t *testing.T) {
	// L-shape of 5 cells inside a 2x3 bounding rectangle: rect = 5/6.
	skip := map[[2]int]bool{
		{2, 2}: true, {2, 3}: true, {2, 4}: true,
		{3, 2}: true, {3, 3}: true,
	}
	f, err := BuildField(coverExcept(10, 10, 0.1, skip), squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	gaps, err := Detect(f, baseConfig(0.1))
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.InDelta(t, 5.0/6.0, gaps[0].Rectangularity, 1e-9)

	// The same shape is dropped by a stricter rectangularity cutoff.
	cfg := baseConfig(0.1)
	cfg.MinRectangularity = 0.9
	gaps, err = Detect(f, cfg)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetect_MinAreaFilter(t *testing.T) {
	skip := map[[2]int]bool{{5, 5}: true}
	f, err := BuildField(coverExcept(10, 10, 0.1, skip), squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	cfg := baseConfig(0.1)
	cfg.MinArea = 0.02
	gaps, err := Detect(f, cfg)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetect_FullCoverageNoGaps(t *testing.T) {
	f, err := BuildField(coverExcept(10, 10, 0.1, nil), squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	gaps, err := Detect(f, baseConfig(0.1))
	require.NoError(t, err)
	assert.NotNil(t, gaps)
	assert.Empty(t, gaps)
}

func TestDetect_OutsideAOIExcluded(t *testing.T) {
	// The grid spans 0..1 but the boundary covers only the left half, so the
	// uncovered right half must not register as a gap.
	boundary := squareBoundary(0, 0, 0.5, 1)
	ext := Extent{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}

	f, err := BuildFieldExtent(coverExcept(5, 10, 0.1, nil), boundary, ext, 0.1)
	require.NoError(t, err)

	gaps, err := Detect(f, baseConfig(0.1))
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetect_OccupancyThreshold(t *testing.T) {
	f, err := BuildField(coverExcept(10, 10, 0.1, nil), squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	// Every cell holds exactly one footprint, so threshold 1 makes the
	// whole AOI one gap.
	cfg := baseConfig(0.1)
	cfg.OccupancyThreshold = 1
	gaps, err := Detect(f, cfg)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.InDelta(t, 1.0, gaps[0].Rectangularity, 1e-9)
}

func TestDetect_OrderIndependent(t *testing.T) {
	skip := map[[2]int]bool{
		{2, 2}: true, {3, 2}: true, {7, 7}: true,
	}
	fps := coverExcept(10, 10, 0.1, skip)

	reversed := make([]Footprint, len(fps))
	for i, fp := range fps {
		reversed[len(fps)-1-i] = fp
	}

	f1, err := BuildField(fps, squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)
	f2, err := BuildField(reversed, squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	g1, err := Detect(f1, baseConfig(0.1))
	require.NoError(t, err)
	g2, err := Detect(f2, baseConfig(0.1))
	require.NoError(t, err)

	require.Equal(t, len(g1), len(g2))
	for i := range g1 {
		assert.Equal(t, g1[i].Area, g2[i].Area)
		assert.Equal(t, g1[i].Rectangularity, g2[i].Rectangularity)
		assert.Equal(t, g1[i].cells, g2[i].cells)
	}
}

func TestDetect_Connectivity(t *testing.T) {
	// Two cells touching only at a corner.
	skip := map[[2]int]bool{{2, 2}: true, {3, 3}: true}
	f, err := BuildField(coverExcept(10, 10, 0.1, skip), squareBoundary(0, 0, 1, 1), 0.1)
	require.NoError(t, err)

	gaps, err := Detect(f, baseConfig(0.1))
	require.NoError(t, err)
	assert.Len(t, gaps, 2, "4-connectivity keeps corner neighbors separate")

	cfg := baseConfig(0.1)
	cfg.Connectivity = Conn8
	gaps, err = Detect(f, cfg)
	require.NoError(t, err)
	require.Len(t, gaps, 1, "8-connectivity joins corner neighbors")
	assert.InDelta(t, 0.5, gaps[0].Rectangularity, 1e-9)

	_, ok := gaps[0].Geom.(*geom.MultiPolygon)
	assert.True(t, ok, "pinched region becomes a multipolygon")
}

func TestDetect_InvalidConfig(t *testing.T) {
	f, err := BuildField(coverExcept(2, 2, 0.1, nil), squareBoundary(0, 0, 0.2, 0.2), 0.1)
	require.NoError(t, err)

	cfg := baseConfig(0.1)
	cfg.Connectivity = 6
	_, err = Detect(f, cfg)

	var ipe *InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "connectivity", ipe.Param)
}
