// Package tilerun executes gap detection over a large AOI as a resumable
// batch of tiles: partition the extent, detect per tile with bounded
// concurrency and retries, persist results, and checkpoint completed tiles so
// an interrupted run picks up where it stopped.
package tilerun

import (
	"fmt"
	"math"

	"github.com/landsift/mindthegap/internal/gap"
)

// Tile is one rectangular unit of work within a run.
type Tile struct {
	ID     string
	Extent gap.Extent
}

// GenerateTiles partitions an extent into a row-major grid of tiles of
// tileSize on a side. Edge tiles are clipped to the extent, so the grid
// covers it exactly. Tile ids are derived from grid position and are stable
// across runs over the same extent and tile size.
func GenerateTiles(extent gap.Extent, tileSize float64) ([]Tile, error) {
	if tileSize <= 0 {
		return nil, &gap.InvalidParameterError{Param: "tile_size", Value: tileSize, Reason: "must be > 0"}
	}
	if extent.Width() <= 0 || extent.Height() <= 0 {
		return nil, &gap.InvalidParameterError{
			Param:  "extent",
			Value:  extent,
			Reason: "bounding box has zero width or height",
		}
	}

	cols := int(math.Ceil(extent.Width() / tileSize))
	rows := int(math.Ceil(extent.Height() / tileSize))

	tiles := make([]Tile, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			ext := gap.Extent{
				MinX: extent.MinX + float64(col)*tileSize,
				MinY: extent.MinY + float64(row)*tileSize,
				MaxX: math.Min(extent.MinX+float64(col+1)*tileSize, extent.MaxX),
				MaxY: math.Min(extent.MinY+float64(row+1)*tileSize, extent.MaxY),
			}
			tiles = append(tiles, Tile{
				ID:     fmt.Sprintf("tile_%04d_%04d", col, row),
				Extent: ext,
			})
		}
	}
	return tiles, nil
}
