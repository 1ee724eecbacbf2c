package routestore

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/mmcloughlin/geohash"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

// cellPrecision 4 gives cells of roughly 39 x 19.5 km at the equator, which
// keeps the 3x3 neighbourhood usable for city-scale search radii.
const cellPrecision = 4

// Memory keeps routes in process and buckets their points by geohash cell.
type Memory struct {
	mu     sync.RWMutex
	routes map[string]map[string][]models.GeoPoint   // date -> driver -> points
	cells  map[string]map[string]map[string]struct{} // date -> cell -> drivers
}

func NewMemory() *Memory {
	return &Memory{
		routes: make(map[string]map[string][]models.GeoPoint),
		cells:  make(map[string]map[string]map[string]struct{}),
	}
}

func (m *Memory) StoreRoute(ctx context.Context, driverID, date string, points []models.GeoPoint) error {
	clean, err := models.ValidateRoute(driverID, date, points)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unindex(driverID, date)
	if m.routes[date] == nil {
		m.routes[date] = make(map[string][]models.GeoPoint)
	}
	m.routes[date][driverID] = clean
	m.index(driverID, date, clean)
	return nil
}

func (m *Memory) GetRoute(ctx context.Context, driverID, date string) (models.DriverRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts, ok := m.routes[date][driverID]
	if !ok {
		return models.DriverRoute{}, models.ErrNotFound
	}
	return models.DriverRoute{DriverID: driverID, Date: date, Points: slices.Clone(pts)}, nil
}

func (m *Memory) DeleteRoute(ctx context.Context, driverID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[date][driverID]; !ok {
		return models.ErrNotFound
	}
	m.unindex(driverID, date)
	delete(m.routes[date], driverID)
	if len(m.routes[date]) == 0 {
		delete(m.routes, date)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// FindRoutesNear consults the geohash buckets when the radius fits inside a
// cell and scans every route of the date otherwise.
func (m *Memory) FindRoutesNear(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error) {
	if err := checkQuery(q, date); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, nil
	}
	cells, ok := coveringCells(q, radiusMeters)
	if !ok {
		return m.Scan(ctx, q, radiusMeters, date)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []models.DriverRoute
	for _, c := range cells {
		for driverID := range m.cells[date][c] {
			if _, dup := seen[driverID]; dup {
				continue
			}
			seen[driverID] = struct{}{}
			pts := m.routes[date][driverID]
			if geo.WithinRadius(q, pts, radiusMeters) {
				out = append(out, models.DriverRoute{DriverID: driverID, Date: date, Points: slices.Clone(pts)})
			}
		}
	}
	return out, nil
}

// Scan is the brute-force strategy: haversine against every point of every
// route of the date. It doubles as the oracle the indexed paths are checked against.
func (m *Memory) Scan(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error) {
	if err := checkQuery(q, date); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DriverRoute
	for driverID, pts := range m.routes[date] {
		if geo.WithinRadius(q, pts, radiusMeters) {
			out = append(out, models.DriverRoute{DriverID: driverID, Date: date, Points: slices.Clone(pts)})
		}
	}
	return out, nil
}

// caller holds m.mu
func (m *Memory) index(driverID, date string, pts []models.GeoPoint) {
	byCell := m.cells[date]
	if byCell == nil {
		byCell = make(map[string]map[string]struct{})
		m.cells[date] = byCell
	}
	for _, p := range pts {
		c := geohash.EncodeWithPrecision(p.Latitude, p.Longitude, cellPrecision)
		if byCell[c] == nil {
			byCell[c] = make(map[string]struct{})
		}
		byCell[c][driverID] = struct{}{}
	}
}

// caller holds m.mu
func (m *Memory) unindex(driverID, date string) {
	old, ok := m.routes[date][driverID]
	if !ok {
		return
	}
	byCell := m.cells[date]
	for _, p := range old {
		c := geohash.EncodeWithPrecision(p.Latitude, p.Longitude, cellPrecision)
		delete(byCell[c], driverID)
		if len(byCell[c]) == 0 {
			delete(byCell, c)
		}
	}
	if len(byCell) == 0 {
		delete(m.cells, date)
	}
}

// coveringCells returns the query cell and its neighbours when every point
// within radius of q is guaranteed to fall inside them. It refuses near the
// poles and the antimeridian, and when the radius exceeds a cell.
func coveringCells(q models.GeoPoint, radius float64) ([]string, bool) {
	latSpan := radius / geo.EarthRadiusMeters * 180 / math.Pi
	poleward := math.Abs(q.Latitude) + latSpan
	if poleward >= 89 {
		return nil, false
	}
	s := math.Sin(radius/(2*geo.EarthRadiusMeters)) / math.Cos(poleward*math.Pi/180)
	if s >= 1 {
		return nil, false
	}
	lngSpan := 2 * math.Asin(s) * 180 / math.Pi
	if q.Longitude-lngSpan <= -180 || q.Longitude+lngSpan >= 180 {
		return nil, false
	}
	center := geohash.EncodeWithPrecision(q.Latitude, q.Longitude, cellPrecision)
	box := geohash.BoundingBox(center)
	if latSpan > box.MaxLat-box.MinLat || lngSpan > box.MaxLng-box.MinLng {
		return nil, false
	}
	return append([]string{center}, geohash.Neighbors(center)...), true
}
