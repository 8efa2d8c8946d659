package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/landsift/mindthegap/internal/gap"
)

// FileSource implements FootprintSource over local files: a footprint
// shapefile and a boundary file (shapefile or GeoJSON). It serves offline and
// ad-hoc detections where no database is involved.
type FileSource struct {
	FootprintPath string
	BoundaryPath  string
}

// NewFileSource creates a source over local footprint and boundary files.
func NewFileSource(footprintPath, boundaryPath string) *FileSource {
	return &FileSource{FootprintPath: footprintPath, BoundaryPath: boundaryPath}
}

// FetchFootprints implements FootprintSource. The aoiID is ignored; the file
// is the AOI. Points are taken as-is, polygons by bbox center, both filtered
// to the extent when it is non-degenerate.
func (s *FileSource) FetchFootprints(ctx context.Context, aoiID string, extent gap.Extent) ([]gap.Footprint, error) {
	_ = ctx

	reader, err := shp.Open(s.FootprintPath)
	if err != nil {
		return nil, classify("open footprint shapefile", err)
	}
	defer func() { _ = reader.Close() }()

	filter := extent.Area() > 0

	var footprints []gap.Footprint
	for reader.Next() {
		n, shape := reader.Shape()
		if shape == nil {
			continue
		}

		x, y, ok := shapeAnchor(shape)
		if !ok {
			continue
		}
		if filter && !extent.Contains(x, y) {
			continue
		}
		footprints = append(footprints, gap.Footprint{
			ID:   fmt.Sprintf("shp-%d", n),
			Geom: geom.NewPointFlat(geom.XY, []float64{x, y}),
		})
	}
	return footprints, nil
}

// FetchBoundary implements FootprintSource. The boundary file format follows
// its extension: .shp reads the first polygon record, anything else is parsed
// as GeoJSON.
func (s *FileSource) FetchBoundary(ctx context.Context, aoiID string) (*geom.Polygon, error) {
	_ = ctx

	if strings.EqualFold(filepath.Ext(s.BoundaryPath), ".shp") {
		return s.boundaryFromShapefile()
	}
	return s.boundaryFromGeoJSON()
}

func (s *FileSource) boundaryFromShapefile() (*geom.Polygon, error) {
	reader, err := shp.Open(s.BoundaryPath)
	if err != nil {
		return nil, classify("open boundary shapefile", err)
	}
	defer func() { _ = reader.Close() }()

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		boundary, err := shpPolygon(poly)
		if err != nil {
			return nil, classify("parse boundary shapefile", err)
		}
		return boundary, nil
	}
	return nil, classify("read boundary shapefile", eris.Errorf("store: no polygon record in %s", s.BoundaryPath))
}

func (s *FileSource) boundaryFromGeoJSON() (*geom.Polygon, error) {
	data, err := os.ReadFile(s.BoundaryPath)
	if err != nil {
		return nil, classify("read boundary file", err)
	}

	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		// The file may be a Feature or FeatureCollection rather than a
		// bare geometry.
		var feature geojson.Feature
		if ferr := feature.UnmarshalJSON(data); ferr == nil && feature.Geometry != nil {
			g = feature.Geometry
		} else {
			var fc geojson.FeatureCollection
			if fcerr := fc.UnmarshalJSON(data); fcerr != nil || len(fc.Features) == 0 || fc.Features[0].Geometry == nil {
				return nil, classify("parse boundary geojson", err)
			}
			g = fc.Features[0].Geometry
		}
	}

	switch t := g.(type) {
	case *geom.Polygon:
		return t, nil
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil, classify("parse boundary geojson", eris.New("store: boundary multipolygon is empty"))
		}
		best := t.Polygon(0)
		for i := 1; i < t.NumPolygons(); i++ {
			if t.Polygon(i).Area() > best.Area() {
				best = t.Polygon(i)
			}
		}
		return best, nil
	default:
		return nil, classify("parse boundary geojson", eris.Errorf("store: boundary is %T, want polygon", g))
	}
}

// shapeAnchor reduces a shapefile record to a representative point.
func shapeAnchor(s shp.Shape) (float64, float64, bool) {
	switch shape := s.(type) {
	case *shp.Point:
		return shape.X, shape.Y, true
	case *shp.PointZ:
		return shape.X, shape.Y, true
	case *shp.Polygon:
		b := shape.BBox()
		return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2, true
	case *shp.PolygonZ:
		b := shape.BBox()
		return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2, true
	default:
		return 0, 0, false
	}
}

// shpPolygon converts a shapefile polygon record to a geom.Polygon. The first
// part is the outer ring; further parts become holes.
func shpPolygon(p *shp.Polygon) (*geom.Polygon, error) {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.New("store: boundary polygon record is empty")
	}

	poly := geom.NewPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end <= start {
			continue
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}
		// Shapefile rings are not required to repeat the first vertex.
		if len(coords) > 0 && !coords[0].Equal(geom.XY, coords[len(coords)-1]) {
			coords = append(coords, coords[0])
		}
		if err := poly.Push(geom.NewLinearRing(geom.XY).MustSetCoords(coords)); err != nil {
			return nil, eris.Wrap(err, "store: build boundary ring")
		}
	}
	return poly, nil
}
