package eta

import (
	"time"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

const defaultSpeedMps = 10.0 // 36 km/h city driving

// Estimator derives pickup times from distance travelled along a route.
// Naive: route length / speed. A routing engine would do better.
type Estimator struct {
	SpeedMps float64
	// Location interprets ride dates and departure times. Nil means UTC.
	Location *time.Location
}

func (e Estimator) speed() float64 {
	if e.SpeedMps <= 0 {
		return defaultSpeedMps
	}
	return e.SpeedMps
}

// Seconds is the travel time for meters at the estimator's speed.
func (e Estimator) Seconds(meters float64) float64 {
	return meters / e.speed()
}

// PickupTime returns when a driver leaving at departure ("HH:MM" on date)
// reaches route[pickupIdx]. ok is false when the departure is unknown or
// the index is outside the route.
func (e Estimator) PickupTime(date, departure string, route []models.GeoPoint, pickupIdx int) (time.Time, bool) {
	if departure == "" || pickupIdx < 0 || pickupIdx >= len(route) {
		return time.Time{}, false
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+departure, loc)
	if err != nil {
		return time.Time{}, false
	}
	secs := e.Seconds(geo.RouteLength(route, pickupIdx))
	return start.Add(time.Duration(secs * float64(time.Second))).Round(time.Second), true
}
