package models

import (
	"math"
	"time"
)

// GeoPoint is a WGS-84 coordinate. The JSON shape matches the mobile client.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Valid reports whether both coordinates are finite and inside their ranges.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) || math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// DriverRoute is one driver's planned path for one service date.
// Points are in traversal order.
type DriverRoute struct {
	DriverID string     `json:"driverId"`
	Date     string     `json:"date"`
	Points   []GeoPoint `json:"points"`
}

type Vehicle string

const (
	VehicleCar  Vehicle = "Car"
	VehicleBus  Vehicle = "Bus"
	VehicleBike Vehicle = "Bike"
)

// MaxSeats returns the seat cap for the vehicle, 0 for unknown vehicles.
func (v Vehicle) MaxSeats() int {
	switch v {
	case VehicleCar:
		return 6
	case VehicleBus:
		return 60
	case VehicleBike:
		return 1
	default:
		return 0
	}
}

type PricingModel string

const (
	PricingPerKm PricingModel = "per_km"
	PricingFixed PricingModel = "fixed"
)

// RideOffer is a published, bookable ride.
type RideOffer struct {
	ID              string       `json:"id"`
	DriverID        string       `json:"driverId"`
	Name            string       `json:"name"`
	Phone           string       `json:"phone"`
	PickupInfo      GeoPoint     `json:"pickupInfo"`
	DestInfo        GeoPoint     `json:"destInfo"`
	EncodedPolyline string       `json:"encodedPolyline,omitempty"`
	Vehicle         Vehicle      `json:"vehicle"`
	Seats           int          `json:"seats"`
	Date            string       `json:"date"`
	Time            string       `json:"time,omitempty"`
	PricingModel    PricingModel `json:"pricingModel,omitempty"`
	Price           *float64     `json:"price,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// MatchCandidate is a ride scored against a rider's pickup and drop.
type MatchCandidate struct {
	Ride                 RideOffer `json:"ride"`
	PickupDistanceMeters float64   `json:"pickupDistanceMeters"`
	DropDistanceMeters   float64   `json:"dropDistanceMeters"`
	PickupIndex          int       `json:"pickupIndex"`
	DropIndex            int       `json:"dropIndex"`
	IsOrderValid         bool      `json:"isOrderValid"`
	Score                float64   `json:"score"`
}

type RouteEventType string

const (
	RouteStored  RouteEventType = "route.stored"
	RouteDeleted RouteEventType = "route.deleted"
)

// RouteEvent is emitted whenever a route is written or removed.
type RouteEvent struct {
	Type     RouteEventType `json:"type"`
	DriverID string         `json:"driverId"`
	Date     string         `json:"date"`
	Points   []GeoPoint     `json:"points,omitempty"`
	At       time.Time      `json:"at"`
}

// Key identifies the route the event refers to.
func (e RouteEvent) Key() string { return e.DriverID + "|" + e.Date }
