package utils

import (
	"math"
	"testing"
)

// roughly 1km x 1km near the equator, i.e. about 100 hectares.
const squareKmPolygon = `{
	"type": "Polygon",
	"coordinates": [[
		[105.0, 10.0],
		[105.009, 10.0],
		[105.009, 10.009],
		[105.0, 10.009],
		[105.0, 10.0]
	]]
}`

func TestPolygonAreaHectares(t *testing.T) {
	area, err := PolygonAreaHectares([]byte(squareKmPolygon))
	if err != nil {
		t.Fatalf("PolygonAreaHectares: %v", err)
	}
	// ~0.009 degrees is ~1km at this latitude; allow generous tolerance
	// for the geodesic math.
	if math.Abs(area-98) > 8 {
		t.Errorf("area = %.2f ha, want ~98 ha", area)
	}
}

func TestPolygonAreaHectaresFeature(t *testing.T) {
	feature := `{"type":"Feature","properties":{},"geometry":` + squareKmPolygon + `}`
	area, err := PolygonAreaHectares([]byte(feature))
	if err != nil {
		t.Fatalf("PolygonAreaHectares(feature): %v", err)
	}
	if area <= 0 {
		t.Errorf("area = %v, want > 0", area)
	}
}

func TestPolygonAreaHectaresRejectsPoints(t *testing.T) {
	if _, err := PolygonAreaHectares([]byte(`{"type":"Point","coordinates":[105,10]}`)); err == nil {
		t.Error("expected error for non-polygon geometry")
	}
}

func TestPolygonAreaHectaresRejectsGarbage(t *testing.T) {
	if _, err := PolygonAreaHectares([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid GeoJSON")
	}
}
