package gap

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// Chainage generates synthetic point footprints at a fixed interval along
// every ring of the boundary. Merged with the real footprints before field
// construction, they keep the strip just inside the AOI border from being
// detected as a gap. An interval <= 0 yields no points.
func Chainage(boundary *geom.Polygon, interval float64) []Footprint {
	if boundary == nil || interval <= 0 {
		return nil
	}

	var points []Footprint
	n := 0
	for r := 0; r < boundary.NumLinearRings(); r++ {
		flat := boundary.LinearRing(r).FlatCoords()
		stride := boundary.Layout().Stride()

		// Walk the ring's segments, dropping a point every interval of
		// accumulated arc length. Ring vertices themselves are included
		// so corners are never skipped.
		carry := 0.0
		for i := 0; i+stride < len(flat); i += stride {
			x0, y0 := flat[i], flat[i+1]
			x1, y1 := flat[i+stride], flat[i+stride+1]

			points = append(points, chainPoint(x0, y0, &n))

			segLen := math.Hypot(x1-x0, y1-y0)
			if segLen == 0 {
				continue
			}
			d := interval - carry
			for d < segLen {
				t := d / segLen
				points = append(points, chainPoint(x0+t*(x1-x0), y0+t*(y1-y0), &n))
				d += interval
			}
			carry = math.Mod(carry+segLen, interval)
		}
	}
	return points
}

func chainPoint(x, y float64, n *int) Footprint {
	*n++
	return Footprint{
		ID:   fmt.Sprintf("chainage-%d", *n),
		Geom: geom.NewPointFlat(geom.XY, []float64{x, y}),
	}
}
