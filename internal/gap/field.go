package gap

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// DensityField is a discretized occupancy representation of an AOI: a regular
// grid over the boundary's bounding box holding per-cell footprint counts and
// an in-AOI mask. Fields are rebuilt per cell size and never mutated after
// BuildField returns.
type DensityField struct {
	Extent   Extent
	CellSize float64
	Cols     int
	Rows     int

	counts []int
	inAOI  []bool
}

// BuildField constructs a density field covering the boundary's bounding box
// at cellSize resolution. Each footprint increments the count of every cell
// it intersects; point footprints increment exactly one cell. Cells whose
// center lies outside the boundary are tagged out-of-AOI and excluded from
// gap candidacy. The inputs are not mutated.
func BuildField(footprints []Footprint, boundary *geom.Polygon, cellSize float64) (*DensityField, error) {
	if boundary == nil || boundary.NumLinearRings() == 0 {
		return nil, &EmptyInputError{Missing: "boundary"}
	}
	return BuildFieldExtent(footprints, boundary, BoundsExtent(boundary.Bounds()), cellSize)
}

// BuildFieldExtent is BuildField with an explicit grid extent. Tiled runs use
// it to grid one tile of a larger AOI: the grid covers ext while the in-AOI
// mask still comes from the full boundary.
func BuildFieldExtent(footprints []Footprint, boundary *geom.Polygon, ext Extent, cellSize float64) (*DensityField, error) {
	if cellSize <= 0 {
		return nil, &InvalidParameterError{Param: "cell_size", Value: cellSize, Reason: "must be > 0"}
	}
	if boundary == nil || boundary.NumLinearRings() == 0 {
		return nil, &EmptyInputError{Missing: "boundary"}
	}
	if ext.Width() <= 0 || ext.Height() <= 0 {
		return nil, &InvalidParameterError{
			Param:  "extent",
			Value:  ext,
			Reason: "bounding box has zero width or height",
		}
	}

	f := &DensityField{
		Extent:   ext,
		CellSize: cellSize,
		Cols:     int(math.Ceil(ext.Width() / cellSize)),
		Rows:     int(math.Ceil(ext.Height() / cellSize)),
	}
	f.counts = make([]int, f.Cols*f.Rows)
	f.inAOI = make([]bool, f.Cols*f.Rows)

	for row := 0; row < f.Rows; row++ {
		for col := 0; col < f.Cols; col++ {
			cx := ext.MinX + (float64(col)+0.5)*cellSize
			cy := ext.MinY + (float64(row)+0.5)*cellSize
			f.inAOI[row*f.Cols+col] = polygonContains(boundary, cx, cy)
		}
	}

	for _, fp := range footprints {
		f.addFootprint(fp)
	}

	return f, nil
}

func (f *DensityField) addFootprint(fp Footprint) {
	switch g := fp.Geom.(type) {
	case *geom.Point:
		f.increment(g.X(), g.Y())
	case *geom.MultiPoint:
		for i := 0; i < g.NumPoints(); i++ {
			p := g.Point(i)
			f.increment(p.X(), p.Y())
		}
	case *geom.Polygon:
		f.coverBounds(g.Bounds())
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			f.coverBounds(g.Polygon(i).Bounds())
		}
	}
}

// increment bumps the count of the single cell containing (x, y). Points
// outside the grid are ignored.
func (f *DensityField) increment(x, y float64) {
	col, row, ok := f.cellAt(x, y)
	if !ok {
		return
	}
	f.counts[row*f.Cols+col]++
}

// coverBounds increments every cell whose rectangle overlaps the footprint's
// bounding box. A conservative cover: polygon footprints are small relative
// to any useful cell size, so the bbox stands in for the exact shape.
// Footprints entirely outside the grid are ignored, like out-of-grid points.
func (f *DensityField) coverBounds(b *geom.Bounds) {
	if b.Max(0) < f.Extent.MinX || b.Min(0) > f.Extent.MaxX ||
		b.Max(1) < f.Extent.MinY || b.Min(1) > f.Extent.MaxY {
		return
	}
	minCol, minRow, _ := f.clampedCellAt(b.Min(0), b.Min(1))
	maxCol, maxRow, _ := f.clampedCellAt(b.Max(0), b.Max(1))
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			f.counts[row*f.Cols+col]++
		}
	}
}

// cellAt maps a point to its cell, reporting false when outside the grid.
// The extent's upper edges are inclusive so boundary points at the maximum
// coordinate land in the last cell.
func (f *DensityField) cellAt(x, y float64) (col, row int, ok bool) {
	col = int(math.Floor((x - f.Extent.MinX) / f.CellSize))
	row = int(math.Floor((y - f.Extent.MinY) / f.CellSize))
	if col == f.Cols && x <= f.Extent.MaxX {
		col--
	}
	if row == f.Rows && y <= f.Extent.MaxY {
		row--
	}
	if col < 0 || col >= f.Cols || row < 0 || row >= f.Rows {
		return 0, 0, false
	}
	return col, row, true
}

func (f *DensityField) clampedCellAt(x, y float64) (col, row int, clamped bool) {
	col = int(math.Floor((x - f.Extent.MinX) / f.CellSize))
	row = int(math.Floor((y - f.Extent.MinY) / f.CellSize))
	if col < 0 {
		col, clamped = 0, true
	}
	if col >= f.Cols {
		col, clamped = f.Cols-1, true
	}
	if row < 0 {
		row, clamped = 0, true
	}
	if row >= f.Rows {
		row, clamped = f.Rows-1, true
	}
	return col, row, clamped
}

// Count returns the occupancy count of a cell.
func (f *DensityField) Count(col, row int) int {
	return f.counts[row*f.Cols+col]
}

// InAOI reports whether a cell's center lies inside the boundary.
func (f *DensityField) InAOI(col, row int) bool {
	return f.inAOI[row*f.Cols+col]
}

// CellExtent returns the rectangle covered by a cell in projection units.
func (f *DensityField) CellExtent(col, row int) Extent {
	return Extent{
		MinX: f.Extent.MinX + float64(col)*f.CellSize,
		MinY: f.Extent.MinY + float64(row)*f.CellSize,
		MaxX: f.Extent.MinX + float64(col+1)*f.CellSize,
		MaxY: f.Extent.MinY + float64(row+1)*f.CellSize,
	}
}

// CellArea returns the area of one cell.
func (f *DensityField) CellArea() float64 {
	return f.CellSize * f.CellSize
}

// polygonContains tests a point against the polygon's outer ring and holes.
func polygonContains(p *geom.Polygon, x, y float64) bool {
	c := geom.Coord{x, y}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
