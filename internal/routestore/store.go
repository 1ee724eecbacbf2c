// Package routestore persists driver routes and answers "which routes pass
// near this point on this date". The memory, Redis and MongoDB stores return
// the same sets for the same data; only ordering may differ.
package routestore

import (
	"context"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

type Store interface {
	// StoreRoute atomically replaces the route for (driverID, date). Invalid
	// points are dropped; if none remain it returns models.ErrNoValidPoints
	// and writes nothing.
	StoreRoute(ctx context.Context, driverID, date string, points []models.GeoPoint) error
	// FindRoutesNear returns every route of date with at least one point
	// within radiusMeters of q.
	FindRoutesNear(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error)
	GetRoute(ctx context.Context, driverID, date string) (models.DriverRoute, error)
	DeleteRoute(ctx context.Context, driverID, date string) error
	Ping(ctx context.Context) error
}

// indexSlack widens radius queries sent to external geo indexes. Their earth
// models differ slightly from ours, so candidates are re-checked with
// geo.Haversine after the coarse query.
func indexSlack(radius float64) float64 { return radius*1.005 + 5 }

func checkQuery(q models.GeoPoint, date string) error {
	if !q.Valid() {
		return models.Invalid("query point is not a valid coordinate")
	}
	if !models.ValidDate(date) {
		return models.Invalid("malformed date %q", date)
	}
	return nil
}

// keepNear filters coarse index hits down to the exact haversine predicate.
func keepNear(routes []models.DriverRoute, q models.GeoPoint, radius float64) []models.DriverRoute {
	out := routes[:0]
	for _, r := range routes {
		if geo.WithinRadius(q, r.Points, radius) {
			out = append(out, r)
		}
	}
	return out
}
