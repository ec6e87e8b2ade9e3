package utils

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// PolygonAreaHectares computes the geodesic area of a GeoJSON geometry in
// hectares. Accepts a Feature, a bare Geometry, or a FeatureCollection
// (first feature wins).
func PolygonAreaHectares(raw []byte) (float64, error) {
	geom, err := decodeGeometry(raw)
	if err != nil {
		return 0, err
	}

	var area float64
	switch g := geom.(type) {
	case orb.Polygon:
		area = geo.Area(g)
	case orb.MultiPolygon:
		area = geo.Area(g)
	default:
		return 0, fmt.Errorf("unsupported geometry type %T", geom)
	}
	if area < 0 {
		area = -area
	}
	return area / 10000, nil
}

func decodeGeometry(raw []byte) (orb.Geometry, error) {
	if f, err := geojson.UnmarshalFeature(raw); err == nil && f.Geometry != nil {
		return f.Geometry, nil
	}
	if fc, err := geojson.UnmarshalFeatureCollection(raw); err == nil && len(fc.Features) > 0 {
		return fc.Features[0].Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON boundary: %w", err)
	}
	return g.Geometry(), nil
}
