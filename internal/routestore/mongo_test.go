package routestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/example/carpool-matching/internal/models"
)

func TestRouteDocGeoJSON(t *testing.T) {
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	doc := toDoc("D1", "2025-01-10", []models.GeoPoint{pt(12.9, 77.5), pt(12.95, 77.55)}, now)

	assert.Equal(t, "Point", doc.RoutePoints[0].Type)
	assert.Equal(t, []float64{77.5, 12.9}, doc.RoutePoints[0].Coordinates, "GeoJSON is [lng, lat]")

	raw, err := bson.Marshal(doc)
	assert.NoError(t, err)
	var back routeDoc
	assert.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, models.DriverRoute{
		DriverID: "D1",
		Date:     "2025-01-10",
		Points:   []models.GeoPoint{pt(12.9, 77.5), pt(12.95, 77.55)},
	}, back.route())
}

func TestRouteDocSkipsMalformedPoints(t *testing.T) {
	doc := routeDoc{DriverID: "D1", Date: "2025-01-10", RoutePoints: []geoJSONPoint{
		{Type: "Point", Coordinates: []float64{1}},
		{Type: "Point", Coordinates: []float64{2, 3}},
	}}
	assert.Equal(t, []models.GeoPoint{pt(3, 2)}, doc.route().Points)
}
