package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestChainage_Disabled(t *testing.T) {
	assert.Nil(t, Chainage(squareBoundary(0, 0, 1, 1), 0))
	assert.Nil(t, Chainage(nil, 0.1))
}

func TestChainage_SquarePerimeter(t *testing.T) {
	points := Chainage(squareBoundary(0, 0, 1, 1), 0.25)

	// Perimeter 4.0 at interval 0.25 plus the four corners repeated as
	// segment starts: 4 segments x (1 vertex + 3 interior points).
	require.Len(t, points, 16)

	for _, p := range points {
		pt, ok := p.Geom.(*geom.Point)
		require.True(t, ok)
		onEdge := pt.X() == 0 || pt.X() == 1 || pt.Y() == 0 || pt.Y() == 1
		assert.True(t, onEdge, "chainage point %v must lie on the boundary", pt.FlatCoords())
	}
}

func TestChainage_IncludesHoles(t *testing.T) {
	boundary := squareBoundary(0, 0, 1, 1)
	hole := geom.NewLinearRingFlat(geom.XY, []float64{
		0.4, 0.4, 0.6, 0.4, 0.6, 0.6, 0.4, 0.6, 0.4, 0.4,
	})
	require.NoError(t, boundary.Push(hole))

	withHole := Chainage(boundary, 0.25)
	withoutHole := Chainage(squareBoundary(0, 0, 1, 1), 0.25)
	assert.Greater(t, len(withHole), len(withoutHole))
}

func TestChainage_StableIDs(t *testing.T) {
	points := Chainage(squareBoundary(0, 0, 1, 1), 0.5)
	require.NotEmpty(t, points)
	assert.Equal(t, "chainage-1", points[0].ID)
	assert.Equal(t, "chainage-2", points[1].ID)
}

func TestChainage_SuppressesBorderGap(t *testing.T) {
	// Footprints only in the interior would leave the border strip empty;
	// chainage fills it so detection sees no border gap.
	skip := map[[2]int]bool{}
	for col := 0; col < 10; col++ {
		for row := 0; row < 10; row++ {
			if col == 0 || col == 9 || row == 0 || row == 9 {
				skip[[2]int{col, row}] = true
			}
		}
	}
	boundary := squareBoundary(0, 0, 1, 1)
	interior := coverExcept(10, 10, 0.1, skip)

	bare, err := BuildField(interior, boundary, 0.1)
	require.NoError(t, err)
	gaps, err := Detect(bare, baseConfig(0.1))
	require.NoError(t, err)
	assert.NotEmpty(t, gaps, "border strip reads as a gap without chainage")

	chained, err := BuildField(append(interior, Chainage(boundary, 0.05)...), boundary, 0.1)
	require.NoError(t, err)
	gaps, err = Detect(chained, baseConfig(0.1))
	require.NoError(t, err)
	assert.Empty(t, gaps)
}
