package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// encodeGapGeom converts a gap geometry to EWKB bytes with SRID 4326 for
// persistence.
func encodeGapGeom(g geom.T) ([]byte, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		t.SetSRID(4326)
	case *geom.MultiPolygon:
		t.SetSRID(4326)
	default:
		return nil, eris.Errorf("store: unsupported gap geometry %T", g)
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode gap geometry")
	}
	return data, nil
}

// decodeGapGeom parses persisted gap EWKB back into a polygonal geometry.
func decodeGapGeom(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode gap geometry")
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, eris.Errorf("store: gap geometry is %T, want polygon", g)
	}
}

// decodeBoundary parses an EWKB boundary into a single polygon. MultiPolygon
// boundaries collapse to their largest member; buffered national boundaries
// routinely carry sliver islands that would only distort the density grid.
func decodeBoundary(data []byte) (*geom.Polygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode boundary")
	}

	switch t := g.(type) {
	case *geom.Polygon:
		return t, nil
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil, eris.New("store: boundary multipolygon is empty")
		}
		best := t.Polygon(0)
		for i := 1; i < t.NumPolygons(); i++ {
			if t.Polygon(i).Area() > best.Area() {
				best = t.Polygon(i)
			}
		}
		return best, nil
	default:
		return nil, eris.Errorf("store: boundary is %T, want polygon", g)
	}
}
