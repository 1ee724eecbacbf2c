package models

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseServiceDate normalises a service date to YYYY-MM-DD. RFC 3339
// timestamps are converted to UTC and truncated to the date component.
func ParseServiceDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", Invalid("date is required")
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(dateLayout), nil
	}
	return "", Invalid("malformed date %q", s)
}

// ValidDate reports whether s is already a canonical YYYY-MM-DD date.
func ValidDate(s string) bool {
	t, err := time.Parse(dateLayout, s)
	return err == nil && t.Format(dateLayout) == s
}

// CleanPoints drops invalid coordinates, keeping traversal order.
func CleanPoints(points []GeoPoint) []GeoPoint {
	out := make([]GeoPoint, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

// ValidateRoute checks a route write and returns the points to persist.
// Nothing may be written when it returns an error.
func ValidateRoute(driverID, date string, points []GeoPoint) ([]GeoPoint, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, Invalid("driverId is required")
	}
	if !ValidDate(date) {
		return nil, Invalid("malformed date %q", date)
	}
	clean := CleanPoints(points)
	if len(clean) == 0 {
		return nil, ErrNoValidPoints
	}
	return clean, nil
}

// Validate enforces the ride offer invariants.
func (r RideOffer) Validate() error {
	if strings.TrimSpace(r.DriverID) == "" {
		return Invalid("driverId is required")
	}
	if !r.PickupInfo.Valid() {
		return Invalid("pickupInfo is not a valid coordinate")
	}
	if !r.DestInfo.Valid() {
		return Invalid("destInfo is not a valid coordinate")
	}
	maxSeats := r.Vehicle.MaxSeats()
	if maxSeats == 0 {
		return Invalid("unknown vehicle %q", r.Vehicle)
	}
	if r.Seats <= 0 {
		return Invalid("seats must be a positive integer")
	}
	if r.Seats > maxSeats {
		return Invalid("%s carries at most %d seats", r.Vehicle, maxSeats)
	}
	if !ValidDate(r.Date) {
		return Invalid("malformed date %q", r.Date)
	}
	if r.Time != "" {
		if _, err := time.Parse("15:04", r.Time); err != nil {
			return Invalid("malformed time %q, want HH:MM", r.Time)
		}
	}
	switch {
	case r.PricingModel == "" && r.Price == nil:
	case r.PricingModel == "" || r.Price == nil:
		return Invalid("pricingModel and price must be set together")
	case r.PricingModel != PricingPerKm && r.PricingModel != PricingFixed:
		return Invalid("unknown pricingModel %q", r.PricingModel)
	case !(*r.Price > 0):
		return Invalid("price must be a positive number")
	}
	return nil
}
