package matcher

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/example/carpool-matching/internal/eta"
	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
)

const (
	defaultMaxCandidates = 500
	defaultTopN          = 50
)

type RouteFinder interface {
	FindRoutesNear(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error)
}

type RideLister interface {
	ListByDate(ctx context.Context, date string) ([]models.RideOffer, error)
}

type Service struct {
	Routes RouteFinder
	Rides  RideLister
	ETA    eta.Estimator
	// MaxCandidates bounds the routes considered per lookup.
	MaxCandidates int
	// TopN bounds the rides returned by Search.
	TopN   int
	Logger *slog.Logger
}

func (s *Service) maxCandidates() int {
	if s.MaxCandidates <= 0 {
		return defaultMaxCandidates
	}
	return s.MaxCandidates
}

func (s *Service) topN() int {
	if s.TopN <= 0 {
		return defaultTopN
	}
	return s.TopN
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// FindNearbyDrivers returns the distinct drivers whose route for date passes
// within radiusMeters of q, sorted by id.
func (s *Service) FindNearbyDrivers(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]string, error) {
	observability.NearbyLookups.Inc()
	routes, err := s.routesNear(ctx, q, radiusMeters, date)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.DriverID)
	}
	return out, nil
}

// routesNear returns one route per qualifying driver, sorted by driver id and
// capped at maxCandidates.
func (s *Service) routesNear(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error) {
	if !(radiusMeters > 0) {
		return []models.DriverRoute{}, nil
	}
	date, err := models.ParseServiceDate(date)
	if err != nil {
		return nil, err
	}
	routes, err := s.Routes.FindRoutesNear(ctx, q, radiusMeters, date)
	if err != nil {
		observability.RouteStoreErrors.WithLabelValues("find_near").Inc()
		return nil, err
	}
	seen := make(map[string]struct{}, len(routes))
	out := make([]models.DriverRoute, 0, len(routes))
	for _, r := range routes {
		if _, dup := seen[r.DriverID]; dup {
			continue
		}
		if !geo.WithinRadius(q, r.Points, radiusMeters) {
			continue
		}
		seen[r.DriverID] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	if limit := s.maxCandidates(); len(out) > limit {
		observability.CandidatesCapped.Inc()
		s.logger().Warn("nearby candidates capped", "date", date, "found", len(out), "limit", limit)
		out = out[:limit]
	}
	return out, nil
}

// ScoreCandidates ranks rides by how closely their routes pass the pickup
// and then the drop. Rides with a missing route, drop before pickup, or
// either point farther than radiusMeters are left out. Ties keep input order.
func ScoreCandidates(pickup, drop models.GeoPoint, radiusMeters float64, rides []models.RideOffer, routesByRide map[string][]models.GeoPoint) []models.MatchCandidate {
	out := make([]models.MatchCandidate, 0, len(rides))
	for _, ride := range rides {
		route := routesByRide[ride.ID]
		if len(route) == 0 {
			continue
		}
		c := scoreOne(pickup, drop, ride, route)
		if c.IsOrderValid && c.PickupDistanceMeters <= radiusMeters && c.DropDistanceMeters <= radiusMeters {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func scoreOne(pickup, drop models.GeoPoint, ride models.RideOffer, route []models.GeoPoint) models.MatchCandidate {
	pIdx, pDist := geo.NearestPointIndex(pickup, route)
	dIdx, dDist := geo.NearestPointIndex(drop, route)
	c := models.MatchCandidate{
		Ride:                 ride,
		PickupDistanceMeters: pDist,
		DropDistanceMeters:   dDist,
		PickupIndex:          pIdx,
		DropIndex:            dIdx,
		IsOrderValid:         pIdx < dIdx,
		Score:                math.Inf(1),
	}
	if c.IsOrderValid {
		c.Score = pDist + dDist
	}
	return c
}

// matchScale is the score at which MatchPercent falls to about 37.
const matchScale = 5000.0

// MatchPercent maps a score in meters onto 0..100 for display; 100 means the
// route passes exactly through both points.
func MatchPercent(score float64) int {
	if math.IsNaN(score) || math.IsInf(score, 1) {
		return 0
	}
	if score <= 0 {
		return 100
	}
	return int(math.Round(100 * math.Exp(-score/matchScale)))
}

type SearchQuery struct {
	Pickup       models.GeoPoint
	Drop         models.GeoPoint
	Date         string
	RadiusMeters float64
}

// SearchResult is a ride offer annotated for the rider's search screen.
type SearchResult struct {
	models.RideOffer
	PickupDistanceKm        float64    `json:"pickupDistanceKm"`
	DistanceToDestinationKm float64    `json:"distanceToDestinationKm"`
	MatchScore              int        `json:"matchScore"`
	PickupETA               *time.Time `json:"pickupEta,omitempty"`
}

// Search finds the rides on q.Date whose routes serve both the pickup and the
// drop, best match first. No matches is an empty result, not an error.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	start := time.Now()
	defer func() { observability.SearchLatency.Observe(time.Since(start).Seconds()) }()
	observability.SearchesTotal.Inc()

	if !q.Pickup.Valid() || !q.Drop.Valid() {
		return nil, models.Invalid("pickup and drop must be valid coordinates")
	}
	date, err := models.ParseServiceDate(q.Date)
	if err != nil {
		return nil, err
	}
	routes, err := s.routesNear(ctx, q.Pickup, q.RadiusMeters, date)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return []SearchResult{}, nil
	}
	byDriver := make(map[string][]models.GeoPoint, len(routes))
	for _, r := range routes {
		byDriver[r.DriverID] = r.Points
	}

	rides, err := s.Rides.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.RideOffer, 0, len(rides))
	routesByRide := make(map[string][]models.GeoPoint, len(rides))
	for _, ride := range rides {
		if pts, ok := byDriver[ride.DriverID]; ok {
			candidates = append(candidates, ride)
			routesByRide[ride.ID] = pts
		}
	}
	observability.CandidatesScored.Add(float64(len(candidates)))

	scored := ScoreCandidates(q.Pickup, q.Drop, q.RadiusMeters, candidates, routesByRide)
	if n := s.topN(); len(scored) > n {
		scored = scored[:n]
	}
	out := make([]SearchResult, 0, len(scored))
	for _, c := range scored {
		res := SearchResult{
			RideOffer:               c.Ride,
			PickupDistanceKm:        roundKm(c.PickupDistanceMeters),
			DistanceToDestinationKm: roundKm(c.DropDistanceMeters),
			MatchScore:              MatchPercent(c.Score),
		}
		if at, ok := s.ETA.PickupTime(c.Ride.Date, c.Ride.Time, routesByRide[c.Ride.ID], c.PickupIndex); ok {
			res.PickupETA = &at
		}
		out = append(out, res)
	}
	observability.MatchesReturned.Add(float64(len(out)))
	return out, nil
}

func roundKm(meters float64) float64 {
	return math.Round(meters/10) / 100
}
