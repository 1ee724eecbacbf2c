package geo

import (
	"math"

	"github.com/example/carpool-matching/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by every distance in this service.
const EarthRadiusMeters = 6371000.0

// Haversine distance in meters
func Haversine(a, b models.GeoPoint) float64 {
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Latitude*math.Pi/180)*math.Cos(b.Latitude*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, h) // rounding can overshoot for antipodal points
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// NearestPointIndex returns the index of the route vertex closest to q and its
// distance. It looks at vertices only, not at the segments between them, so on
// sparse polylines the distance is an overestimate; that approximation is
// accepted for matching. An empty route yields (-1, +Inf).
func NearestPointIndex(q models.GeoPoint, route []models.GeoPoint) (int, float64) {
	idx, best := -1, math.Inf(1)
	for i, p := range route {
		if d := Haversine(q, p); d < best {
			idx, best = i, d
		}
	}
	return idx, best
}

// WithinRadius reports whether any route point lies within radius meters of q.
func WithinRadius(q models.GeoPoint, route []models.GeoPoint, radius float64) bool {
	if radius <= 0 {
		return false
	}
	for _, p := range route {
		if Haversine(q, p) <= radius {
			return true
		}
	}
	return false
}

// RouteLength sums the segment lengths from route[0] up to route[upto].
func RouteLength(route []models.GeoPoint, upto int) float64 {
	if upto >= len(route) {
		upto = len(route) - 1
	}
	total := 0.0
	for i := 1; i <= upto; i++ {
		total += Haversine(route[i-1], route[i])
	}
	return total
}
