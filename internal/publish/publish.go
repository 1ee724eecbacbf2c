// Package publish owns the write side: storing driver routes, publishing ride
// offers and keeping the two consistent when rides go away.
package publish

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/routestore"
	"github.com/example/carpool-matching/internal/storage"
)

// EventPublisher ships route events to other processes.
type EventPublisher interface {
	PublishRouteEvent(ctx context.Context, ev models.RouteEvent) error
}

// Feed pushes route events to connected clients.
type Feed interface {
	Publish(ev models.RouteEvent) int
}

type Service struct {
	Routes routestore.Store
	Rides  storage.RideStore
	Events EventPublisher // optional
	Feed   Feed           // optional
	// MaxPoints rejects larger routes when positive.
	MaxPoints int
	Logger    *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// StoreRoute replaces the driver's route for date. date may be an RFC 3339
// timestamp; it is truncated to its UTC date.
func (s *Service) StoreRoute(ctx context.Context, driverID, date string, points []models.GeoPoint) error {
	date, err := models.ParseServiceDate(date)
	if err != nil {
		return err
	}
	if s.MaxPoints > 0 && len(points) > s.MaxPoints {
		return models.Invalid("route has %d points, at most %d allowed", len(points), s.MaxPoints)
	}
	if err := s.Routes.StoreRoute(ctx, driverID, date, points); err != nil {
		if errors.Is(err, models.ErrUnavailable) {
			observability.RouteStoreErrors.WithLabelValues("store").Inc()
		}
		return err
	}
	observability.RoutesStored.Inc()
	s.emit(ctx, models.RouteEvent{
		Type:     models.RouteStored,
		DriverID: driverID,
		Date:     date,
		Points:   models.CleanPoints(points),
		At:       time.Now().UTC(),
	})
	return nil
}

// emit is best effort: the write already happened.
func (s *Service) emit(ctx context.Context, ev models.RouteEvent) {
	if s.Events != nil {
		if err := s.Events.PublishRouteEvent(ctx, ev); err != nil {
			observability.EventsFailed.WithLabelValues(string(ev.Type)).Inc()
			s.logger().Warn("route event publish failed", "type", ev.Type, "driverId", ev.DriverID, "date", ev.Date, "err", err)
		} else {
			observability.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
		}
	}
	if s.Feed != nil {
		s.Feed.Publish(ev)
	}
}

// CreateRide publishes a ride offer. A ride carrying an encoded polyline
// also becomes the driver's route for that date unless one is already stored.
func (s *Service) CreateRide(ctx context.Context, offer models.RideOffer) (models.RideOffer, error) {
	var route []models.GeoPoint
	if offer.EncodedPolyline != "" {
		var err error
		if route, err = s.routeOf(offer.EncodedPolyline); err != nil {
			return models.RideOffer{}, err
		}
	}
	created, err := s.Rides.Create(ctx, offer)
	if err != nil {
		return models.RideOffer{}, err
	}
	if route != nil {
		s.ensureRoute(ctx, created, route)
	}
	return created, nil
}

// routeOf decodes a ride polyline and applies the same limits as StoreRoute,
// so a ride is never written with a route that would be refused.
func (s *Service) routeOf(encoded string) ([]models.GeoPoint, error) {
	pts, err := geo.DecodePolyline(encoded)
	if err != nil {
		return nil, err
	}
	if s.MaxPoints > 0 && len(pts) > s.MaxPoints {
		return nil, models.Invalid("route has %d points, at most %d allowed", len(pts), s.MaxPoints)
	}
	route := models.CleanPoints(pts)
	if len(route) == 0 {
		return nil, models.ErrNoValidPoints
	}
	return route, nil
}

// ensureRoute stores route for the ride's driver and date when none exists.
// Failures are logged; the ride stands and the route can be sent again.
func (s *Service) ensureRoute(ctx context.Context, ride models.RideOffer, route []models.GeoPoint) {
	_, err := s.Routes.GetRoute(ctx, ride.DriverID, ride.Date)
	switch {
	case err == nil:
		return
	case !errors.Is(err, models.ErrNotFound):
		s.logger().Error("route lookup failed", "rideId", ride.ID, "err", err)
		return
	}
	if err := s.StoreRoute(ctx, ride.DriverID, ride.Date, route); err != nil {
		s.logger().Error("route from ride polyline not stored", "rideId", ride.ID, "err", err)
	}
}

func (s *Service) GetRide(ctx context.Context, id string) (models.RideOffer, error) {
	return s.Rides.Get(ctx, id)
}

func (s *Service) ListRides(ctx context.Context) ([]models.RideOffer, error) {
	return s.Rides.ListAll(ctx)
}

// UpdateRide stores offer over the ride with the same id. Moving a ride to
// another driver or date releases the old route if nothing else needs it. A
// changed polyline replaces the driver's route for the ride's date.
func (s *Service) UpdateRide(ctx context.Context, offer models.RideOffer) (models.RideOffer, error) {
	old, err := s.Rides.Get(ctx, offer.ID)
	if err != nil {
		return models.RideOffer{}, err
	}
	var route []models.GeoPoint
	changed := offer.EncodedPolyline != old.EncodedPolyline
	if offer.EncodedPolyline != "" && (changed || old.DriverID != offer.DriverID || old.Date != offer.Date) {
		if route, err = s.routeOf(offer.EncodedPolyline); err != nil {
			return models.RideOffer{}, err
		}
	}
	updated, err := s.Rides.Update(ctx, offer)
	if err != nil {
		return models.RideOffer{}, err
	}
	if old.DriverID != updated.DriverID || old.Date != updated.Date {
		s.releaseRoute(ctx, old.DriverID, old.Date)
	}
	switch {
	case route == nil:
	case changed:
		// a new polyline is the driver's new path for the date
		if err := s.StoreRoute(ctx, updated.DriverID, updated.Date, route); err != nil {
			s.logger().Error("route from ride polyline not stored", "rideId", updated.ID, "err", err)
		}
	default:
		s.ensureRoute(ctx, updated, route)
	}
	return updated, nil
}

// DeleteRide removes the ride and, when it was the driver's last ride on that
// date, the driver's route for the date.
func (s *Service) DeleteRide(ctx context.Context, id string) error {
	ride, err := s.Rides.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Rides.Delete(ctx, id); err != nil {
		return err
	}
	s.releaseRoute(ctx, ride.DriverID, ride.Date)
	return nil
}

func (s *Service) releaseRoute(ctx context.Context, driverID, date string) {
	rides, err := s.Rides.ListByDate(ctx, date)
	if err != nil {
		s.logger().Error("route release skipped", "driverId", driverID, "date", date, "err", err)
		return
	}
	for _, r := range rides {
		if r.DriverID == driverID {
			return
		}
	}
	err = s.Routes.DeleteRoute(ctx, driverID, date)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return
	case err != nil:
		observability.RouteStoreErrors.WithLabelValues("delete").Inc()
		s.logger().Error("route release failed", "driverId", driverID, "date", date, "err", err)
		return
	}
	observability.RoutesDeleted.Inc()
	s.emit(ctx, models.RouteEvent{Type: models.RouteDeleted, DriverID: driverID, Date: date, At: time.Now().UTC()})
	s.restoreRoute(ctx, driverID, date)
}

// restoreRoute closes the window between the ride check and the delete in
// releaseRoute: a ride created meanwhile gets its polyline back as the route.
// Rides without a polyline rely on the client sending the route again.
func (s *Service) restoreRoute(ctx context.Context, driverID, date string) {
	rides, err := s.Rides.ListByDate(ctx, date)
	if err != nil {
		s.logger().Error("route restore check failed", "driverId", driverID, "date", date, "err", err)
		return
	}
	for _, r := range rides {
		if r.DriverID != driverID || r.EncodedPolyline == "" {
			continue
		}
		route, err := s.routeOf(r.EncodedPolyline)
		if err != nil {
			continue
		}
		s.logger().Warn("ride added during route release, restoring route", "driverId", driverID, "date", date, "rideId", r.ID)
		s.ensureRoute(ctx, r, route)
		return
	}
}
