package geo

import (
	"math"

	"googlemaps.github.io/maps"

	"github.com/example/carpool-matching/internal/models"
)

// DecodePolyline expands a Google encoded polyline into route points.
func DecodePolyline(encoded string) ([]models.GeoPoint, error) {
	if err := checkPolyline(encoded); err != nil {
		return nil, err
	}
	path, err := maps.DecodePolyline(encoded)
	if err != nil {
		return nil, models.Invalid("encoded polyline: %v", err)
	}
	out := make([]models.GeoPoint, len(path))
	for i, ll := range path {
		out[i] = models.GeoPoint{Latitude: ll.Lat, Longitude: ll.Lng}
	}
	return out, nil
}

// checkPolyline rejects input the decoder would silently cut short: bytes
// outside the alphabet, an unterminated last value, or a dangling latitude.
func checkPolyline(s string) error {
	values := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 63 || c > 126 {
			return models.Invalid("encoded polyline: bad byte %q at %d", c, i)
		}
		if c-63 < 0x20 {
			values++
		}
	}
	if len(s) > 0 && s[len(s)-1]-63 >= 0x20 {
		return models.Invalid("encoded polyline: truncated")
	}
	if values%2 != 0 {
		return models.Invalid("encoded polyline: odd number of coordinates")
	}
	return nil
}

// EncodePolyline is the inverse of DecodePolyline, at 1e-5 degree precision.
func EncodePolyline(points []models.GeoPoint) string {
	path := make([]maps.LatLng, len(points))
	for i, p := range points {
		path[i] = maps.LatLng{Lat: e5(p.Latitude), Lng: e5(p.Longitude)}
	}
	return maps.Encode(path)
}

// e5 rounds v to 1e-5 and nudges it away from zero, since maps.Encode
// truncates v*1e5.
func e5(v float64) float64 {
	r := math.Round(v * 1e5)
	switch {
	case r > 0:
		r += 0.25
	case r < 0:
		r -= 0.25
	}
	return r / 1e5
}
