package gap

import "sort"

// component is a maximal connected set of empty, in-AOI cells.
type component struct {
	cells  []int
	minCol int
	maxCol int
	minRow int
	maxRow int
}

// Detect extracts gap polygons from a density field. A cell is empty when its
// occupancy count is at or below cfg.OccupancyThreshold; empty in-AOI cells
// are grouped by cfg.Connectivity, shaped into polygons as the union of their
// cell rectangles, and filtered by cfg.MinArea and cfg.MinRectangularity.
//
// The result is deterministic for fixed inputs: components are a function of
// adjacency only, and output order follows each component's top-left cell.
// A field with no empty cells yields an empty, non-nil result.
func Detect(field *DensityField, cfg TuneConfig) ([]GapPolygon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	empty := make([]bool, field.Cols*field.Rows)
	for i := range empty {
		empty[i] = field.inAOI[i] && field.counts[i] <= cfg.OccupancyThreshold
	}

	comps := connectedComponents(field, empty, cfg.Connectivity)

	gaps := make([]GapPolygon, 0, len(comps))
	for _, c := range comps {
		area := float64(len(c.cells)) * field.CellArea()
		w := c.maxCol - c.minCol + 1
		h := c.maxRow - c.minRow + 1
		rect := float64(len(c.cells)) / float64(w*h)

		if area < cfg.MinArea || rect < cfg.MinRectangularity {
			continue
		}

		gaps = append(gaps, GapPolygon{
			Geom:           traceOutline(field, empty, c),
			Area:           area,
			Rectangularity: rect,
			cells:          c.cells,
		})
	}
	return gaps, nil
}

// connectedComponents partitions empty cells with a breadth-first walk seeded
// in row-major order. The seed of each component is its smallest cell index,
// so the returned slice is ordered by top-left cell and independent of the
// order footprints were loaded.
func connectedComponents(field *DensityField, empty []bool, conn Connectivity) []component {
	visited := make([]bool, len(empty))
	var comps []component

	for seed := range empty {
		if !empty[seed] || visited[seed] {
			continue
		}

		c := component{
			minCol: field.Cols, minRow: field.Rows,
			maxCol: -1, maxRow: -1,
		}
		queue := []int{seed}
		visited[seed] = true

		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			col, row := idx%field.Cols, idx/field.Cols

			c.cells = append(c.cells, idx)
			if col < c.minCol {
				c.minCol = col
			}
			if col > c.maxCol {
				c.maxCol = col
			}
			if row < c.minRow {
				c.minRow = row
			}
			if row > c.maxRow {
				c.maxRow = row
			}

			for _, d := range neighborOffsets(conn) {
				nc, nr := col+d[0], row+d[1]
				if nc < 0 || nc >= field.Cols || nr < 0 || nr >= field.Rows {
					continue
				}
				nidx := nr*field.Cols + nc
				if empty[nidx] && !visited[nidx] {
					visited[nidx] = true
					queue = append(queue, nidx)
				}
			}
		}

		sort.Ints(c.cells)
		comps = append(comps, c)
	}
	return comps
}

var (
	offsets4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	offsets8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func neighborOffsets(conn Connectivity) [][2]int {
	if conn == Conn8 {
		return offsets8
	}
	return offsets4
}
