package gap

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection wraps a gap set as a GeoJSON feature collection carrying
// area, rectangularity, and tile id per feature.
func FeatureCollection(gaps []GapPolygon) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(gaps))}
	for i, g := range gaps {
		props := map[string]any{
			"area":           g.Area,
			"rectangularity": g.Rectangularity,
		}
		if g.TileID != "" {
			props["tile_id"] = g.TileID
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         fmt.Sprintf("gap-%d", i+1),
			Geometry:   g.Geom,
			Properties: props,
		})
	}
	return fc
}

// MarshalGeoJSON renders a gap set as GeoJSON bytes.
func MarshalGeoJSON(gaps []GapPolygon) ([]byte, error) {
	data, err := json.Marshal(FeatureCollection(gaps))
	if err != nil {
		return nil, eris.Wrap(err, "gap: marshal geojson")
	}
	return data, nil
}
