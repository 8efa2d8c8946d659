package gap

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// gridVertex is a cell-corner coordinate in grid units. The vertex (c, r) is
// the lower-left corner of cell (c, r).
type gridVertex struct {
	c, r int
}

// gridEdge is a directed unit edge between adjacent vertices, oriented so the
// component interior lies on its left.
type gridEdge struct {
	from, to gridVertex
}

func (e gridEdge) dir() (int, int) {
	return e.to.c - e.from.c, e.to.r - e.from.r
}

// traceOutline computes the boundary of a component as the union of its cell
// rectangles: one counter-clockwise shell per connected outline plus
// clockwise holes around enclosed occupied cells. The result is a Polygon,
// or a MultiPolygon when 8-connectivity pinched the region at a corner.
func traceOutline(field *DensityField, empty []bool, c component) geom.T {
	member := make(map[int]bool, len(c.cells))
	for _, idx := range c.cells {
		member[idx] = true
	}

	// Collect boundary edges in deterministic order. An edge is boundary
	// when the cell on its far side is not part of the component.
	var edges []gridEdge
	outgoing := make(map[gridVertex][]int)
	inComp := func(col, row int) bool {
		if col < 0 || col >= field.Cols || row < 0 || row >= field.Rows {
			return false
		}
		return member[row*field.Cols+col]
	}
	addEdge := func(e gridEdge) {
		outgoing[e.from] = append(outgoing[e.from], len(edges))
		edges = append(edges, e)
	}
	for _, idx := range c.cells {
		col, row := idx%field.Cols, idx/field.Cols
		if !inComp(col, row-1) { // bottom
			addEdge(gridEdge{gridVertex{col, row}, gridVertex{col + 1, row}})
		}
		if !inComp(col+1, row) { // right
			addEdge(gridEdge{gridVertex{col + 1, row}, gridVertex{col + 1, row + 1}})
		}
		if !inComp(col, row+1) { // top
			addEdge(gridEdge{gridVertex{col + 1, row + 1}, gridVertex{col, row + 1}})
		}
		if !inComp(col-1, row) { // left
			addEdge(gridEdge{gridVertex{col, row + 1}, gridVertex{col, row}})
		}
	}

	used := make([]bool, len(edges))
	var rings [][]gridVertex
	for i := range edges {
		if used[i] {
			continue
		}
		rings = append(rings, walkRing(edges, outgoing, used, i))
	}

	return assembleRings(field, rings)
}

// walkRing follows edges from a starting edge until the ring closes. At
// pinch vertices with more than one unused outgoing edge it takes the
// sharpest left turn, which keeps each traced ring simple.
func walkRing(edges []gridEdge, outgoing map[gridVertex][]int, used []bool, start int) []gridVertex {
	var ring []gridVertex
	cur := start
	for {
		used[cur] = true
		ring = append(ring, edges[cur].from)
		at := edges[cur].to
		if at == edges[start].from {
			return ring
		}

		dx, dy := edges[cur].dir()
		next := -1
		// Preference order: left turn, straight, right turn, reverse.
		for _, want := range [][2]int{{-dy, dx}, {dx, dy}, {dy, -dx}, {-dx, -dy}} {
			for _, cand := range outgoing[at] {
				if used[cand] {
					continue
				}
				cdx, cdy := edges[cand].dir()
				if cdx == want[0] && cdy == want[1] {
					next = cand
					break
				}
			}
			if next >= 0 {
				break
			}
		}
		if next < 0 {
			// Boundary edge sets always close; reaching here would mean a
			// malformed component, so return what we have.
			return ring
		}
		cur = next
	}
}

// assembleRings splits traced rings into shells (counter-clockwise) and holes
// (clockwise), assigns each hole to its containing shell, and converts grid
// coordinates to projection units.
func assembleRings(field *DensityField, rings [][]gridVertex) geom.T {
	var shells, holes [][]gridVertex
	for _, r := range rings {
		if ringSignedArea(r) > 0 {
			shells = append(shells, r)
		} else {
			holes = append(holes, r)
		}
	}

	holesByShell := make([][][]gridVertex, len(shells))
	for _, h := range holes {
		si := 0
		if len(shells) > 1 {
			si = containingShell(shells, h)
		}
		holesByShell[si] = append(holesByShell[si], h)
	}

	polys := make([]*geom.Polygon, len(shells))
	for i, s := range shells {
		p := geom.NewPolygon(geom.XY)
		p.Push(geom.NewLinearRingFlat(geom.XY, ringFlatCoords(field, s)))
		for _, h := range holesByShell[i] {
			p.Push(geom.NewLinearRingFlat(geom.XY, ringFlatCoords(field, h)))
		}
		polys[i] = p
	}

	if len(polys) == 1 {
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		mp.Push(p)
	}
	return mp
}

// ringSignedArea is the shoelace sum in grid units; positive means
// counter-clockwise.
func ringSignedArea(ring []gridVertex) float64 {
	sum := 0.0
	for i, v := range ring {
		w := ring[(i+1)%len(ring)]
		sum += float64(v.c*w.r - w.c*v.r)
	}
	return sum / 2
}

// containingShell finds the shell enclosing a hole by testing the center of
// the cell just inside the hole's first corner.
func containingShell(shells [][]gridVertex, hole []gridVertex) int {
	v := hole[0]
	for _, u := range hole[1:] {
		if u.r < v.r || (u.r == v.r && u.c < v.c) {
			v = u
		}
	}
	probe := geom.Coord{float64(v.c) + 0.5, float64(v.r) + 0.5}
	for i, s := range shells {
		flat := make([]float64, 0, (len(s)+1)*2)
		for _, sv := range s {
			flat = append(flat, float64(sv.c), float64(sv.r))
		}
		flat = append(flat, float64(s[0].c), float64(s[0].r))
		if xy.IsPointInRing(geom.XY, probe, flat) {
			return i
		}
	}
	return 0
}

// ringFlatCoords converts a grid ring to closed flat projection coordinates.
func ringFlatCoords(field *DensityField, ring []gridVertex) []float64 {
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, v := range ring {
		flat = append(flat,
			field.Extent.MinX+float64(v.c)*field.CellSize,
			field.Extent.MinY+float64(v.r)*field.CellSize,
		)
	}
	flat = append(flat,
		field.Extent.MinX+float64(ring[0].c)*field.CellSize,
		field.Extent.MinY+float64(ring[0].r)*field.CellSize,
	)
	return flat
}
