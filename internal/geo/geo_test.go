package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/models"
)

func pt(lat, lng float64) models.GeoPoint { return models.GeoPoint{Latitude: lat, Longitude: lng} }

func TestHaversineZero(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		a := pt(r.Float64()*180-90, r.Float64()*360-180)
		if d := Haversine(a, a); d != 0 {
			t.Fatalf("expected 0 for %+v, got %f", a, d)
		}
	}
}

func TestHaversineAntipodal(t *testing.T) {
	half := math.Pi * EarthRadiusMeters
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		a := pt(r.Float64()*180-90, r.Float64()*360-180)
		lng := a.Longitude + 180
		if lng > 180 {
			lng -= 360
		}
		d := Haversine(a, pt(-a.Latitude, lng))
		require.False(t, math.IsNaN(d), "antipode of %+v", a)
		assert.InDelta(t, half, d, 1)
	}
	assert.InDelta(t, half, Haversine(pt(0, 0), pt(0, 180)), 1e-6)
	assert.InDelta(t, half, Haversine(pt(90, 0), pt(-90, 0)), 1e-6)
}

func TestHaversineSymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		a := pt(r.Float64()*180-90, r.Float64()*360-180)
		b := pt(r.Float64()*180-90, r.Float64()*360-180)
		assert.InDelta(t, Haversine(a, b), Haversine(b, a), 1e-6)
	}
}

func TestHaversineKnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      models.GeoPoint
		want      float64
		tolerance float64
	}{
		{name: "one degree of longitude at the equator", a: pt(0, 0), b: pt(0, 1), want: 111195, tolerance: 0.01},
		{name: "one degree of latitude", a: pt(10, 20), b: pt(11, 20), want: 111195, tolerance: 0.01},
		{name: "New York to Los Angeles", a: pt(40.7128, -74.0060), b: pt(34.0522, -118.2437), want: 3944000, tolerance: 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			assert.InEpsilon(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestNearestPointIndexEmpty(t *testing.T) {
	idx, d := NearestPointIndex(pt(1, 1), nil)
	assert.Equal(t, -1, idx)
	assert.True(t, math.IsInf(d, 1))
}

func TestNearestPointIndex(t *testing.T) {
	route := []models.GeoPoint{pt(0, 0), pt(0, 1), pt(0, 2), pt(0, 3), pt(0, 4)}
	idx, d := NearestPointIndex(pt(0.001, 2.1), route)
	assert.Equal(t, 2, idx)
	assert.InDelta(t, Haversine(pt(0.001, 2.1), pt(0, 2)), d, 1e-9)

	// first vertex wins a tie
	idx, _ = NearestPointIndex(pt(0, 0.5), route)
	assert.Equal(t, 0, idx)
}

func TestWithinRadius(t *testing.T) {
	route := []models.GeoPoint{pt(12.9, 77.5), pt(12.95, 77.55)}
	assert.True(t, WithinRadius(pt(12.9005, 77.5), route, 100))
	assert.False(t, WithinRadius(pt(13.5, 77.5), route, 100))
	assert.False(t, WithinRadius(pt(12.9, 77.5), route, 0))
	assert.False(t, WithinRadius(pt(12.9, 77.5), nil, 100))
}

func TestRouteLength(t *testing.T) {
	route := []models.GeoPoint{pt(0, 0), pt(0, 1), pt(0, 2)}
	assert.Equal(t, 0.0, RouteLength(route, 0))
	assert.InEpsilon(t, 111195, RouteLength(route, 1), 0.01)
	assert.InEpsilon(t, 2*111195, RouteLength(route, 5), 0.01)
	assert.Equal(t, 0.0, RouteLength(nil, 3))
}

func TestPolylineRoundTrip(t *testing.T) {
	route := []models.GeoPoint{pt(38.5, -120.2), pt(40.7, -120.95), pt(43.252, -126.453)}
	encoded := EncodePolyline(route)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)

	decoded, err := DecodePolyline(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(route))
	for i := range route {
		assert.InDelta(t, route[i].Latitude, decoded[i].Latitude, 1e-5)
		assert.InDelta(t, route[i].Longitude, decoded[i].Longitude, 1e-5)
	}
}

func TestDecodePolylineRejectsMalformed(t *testing.T) {
	for name, s := range map[string]string{
		"truncated value":   "_p~iF~ps|U_",
		"dangling latitude": "_p~iF~ps|U_ulL",
		"outside alphabet":  "_p~iF ~ps|U",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePolyline(s)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}

	pts, err := DecodePolyline("")
	require.NoError(t, err)
	assert.Empty(t, pts)
}

func TestEncodePolylineRounds(t *testing.T) {
	// 0.000014 rounds up to one step; truncation would drop it
	got, err := DecodePolyline(EncodePolyline([]models.GeoPoint{pt(0.000014, -0.000016)}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.00001, got[0].Latitude, 1e-9)
	assert.InDelta(t, -0.00002, got[0].Longitude, 1e-9)
}
