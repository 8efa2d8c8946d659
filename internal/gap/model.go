// Package gap implements the gap-detection core: density-field construction
// over an AOI, connected-region extraction with shape scoring, and automated
// parameter tuning. Geometry values are twpayne/go-geom types throughout.
package gap

import (
	"github.com/twpayne/go-geom"
)

// Footprint is a single building geometry, either a polygon or its centroid.
// Footprints are immutable once loaded; a Region owns them for one run.
type Footprint struct {
	ID   string
	Geom geom.T
}

// GapPolygon is one detected gap: the union of a connected set of empty
// in-AOI cells, after area and rectangularity filtering.
type GapPolygon struct {
	// Geom is a Polygon, or a MultiPolygon when 8-connectivity produced a
	// region pinched at a cell corner.
	Geom geom.T

	// Area in squared projection units (cell count x cell area).
	Area float64

	// Rectangularity is the region area divided by the area of its
	// grid-aligned bounding rectangle, always in [0, 1].
	Rectangularity float64

	// TileID identifies the source tile in tiled runs; empty otherwise.
	TileID string

	// cells holds the flat field indices of the member cells, kept for
	// tuning diagnostics. Sorted ascending.
	cells []int
}

// Extent is an axis-aligned bounding box in projection units.
type Extent struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal span of the extent.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span of the extent.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Area returns the extent area, zero for degenerate extents.
func (e Extent) Area() float64 {
	if e.Width() <= 0 || e.Height() <= 0 {
		return 0
	}
	return e.Width() * e.Height()
}

// Contains reports whether the point (x, y) lies inside the extent,
// inclusive of the lower bounds and exclusive of the upper bounds.
func (e Extent) Contains(x, y float64) bool {
	return x >= e.MinX && x < e.MaxX && y >= e.MinY && y < e.MaxY
}

// footprintAnchor returns a representative point for a footprint: the point
// itself, or the bounding-box center for polygon footprints.
func footprintAnchor(fp Footprint) (x, y float64, ok bool) {
	switch g := fp.Geom.(type) {
	case *geom.Point:
		return g.X(), g.Y(), true
	case *geom.MultiPoint:
		if g.NumPoints() == 0 {
			return 0, 0, false
		}
		p := g.Point(0)
		return p.X(), p.Y(), true
	case *geom.Polygon, *geom.MultiPolygon:
		b := fp.Geom.Bounds()
		return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2, true
	default:
		return 0, 0, false
	}
}

// BoundsExtent converts go-geom bounds to an Extent.
func BoundsExtent(b *geom.Bounds) Extent {
	return Extent{
		MinX: b.Min(0),
		MinY: b.Min(1),
		MaxX: b.Max(0),
		MaxY: b.Max(1),
	}
}
