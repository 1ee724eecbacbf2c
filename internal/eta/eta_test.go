package eta

import (
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

func TestPickupTimeAlongRoute(t *testing.T) {
	route := []models.GeoPoint{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.01}, {Latitude: 0, Longitude: 0.02}}
	e := Estimator{SpeedMps: 10}

	got, ok := e.PickupTime("2025-01-10", "08:00", route, 2)
	if !ok {
		t.Fatal("expected an estimate")
	}
	// two segments of ~1112 m at 10 m/s
	want := time.Date(2025, 1, 10, 8, 3, 42, 0, time.UTC)
	if d := got.Sub(want); d < -2*time.Second || d > 2*time.Second {
		t.Fatalf("expected about %v, got %v", want, got)
	}

	got, ok = e.PickupTime("2025-01-10", "08:00", route, 0)
	if !ok || !got.Equal(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("pickup at the first vertex is the departure, got %v", got)
	}
}

func TestPickupTimeUnknown(t *testing.T) {
	route := []models.GeoPoint{{Latitude: 0, Longitude: 0}}
	e := Estimator{}
	cases := []struct {
		name      string
		departure string
		idx       int
	}{
		{"no departure", "", 0},
		{"malformed departure", "8am", 0},
		{"negative index", "08:00", -1},
		{"index past end", "08:00", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := e.PickupTime("2025-01-10", tc.departure, route, tc.idx); ok {
				t.Fatal("expected no estimate")
			}
		})
	}
}

func TestDefaultSpeed(t *testing.T) {
	if s := (Estimator{}).Seconds(1000); s != 100 {
		t.Fatalf("expected 100s at the default speed, got %v", s)
	}
}
