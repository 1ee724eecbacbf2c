package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/models"
)

const maxBodyBytes = 4 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs the struct tag validation.
// Every failure is an ErrInvalidInput.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Invalid("request body is empty")
		}
		return models.Invalid("malformed JSON: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return models.Invalid("%s", describe(verrs))
		}
		return models.Invalid("%v", err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must match %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// pointDTO accepts {latitude, longitude} and the {lat, lng} shorthand.
type pointDTO struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

// point returns the coordinate, or a NaN point when a component is missing so
// the usual validity checks reject it.
func (p pointDTO) point() models.GeoPoint {
	lat, lng := first(p.Latitude, p.Lat), first(p.Longitude, p.Lng)
	if lat == nil || lng == nil {
		return models.GeoPoint{Latitude: math.NaN(), Longitude: math.NaN()}
	}
	return models.GeoPoint{Latitude: *lat, Longitude: *lng}
}

func first(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

type storeRouteRequest struct {
	RiderID         string      `json:"riderId" validate:"required"`
	PolylinePoints  *[]pointDTO `json:"polylinePoints"`
	EncodedPolyline string      `json:"encodedPolyline"`
	Date            string      `json:"date" validate:"required"`
}

func (req storeRouteRequest) points() ([]models.GeoPoint, bool) {
	if req.PolylinePoints == nil {
		return nil, false
	}
	out := make([]models.GeoPoint, len(*req.PolylinePoints))
	for i, p := range *req.PolylinePoints {
		out[i] = p.point()
	}
	return out, true
}

type findRequest struct {
	Lat          *float64 `json:"lat" validate:"required"`
	Lng          *float64 `json:"lng" validate:"required"`
	RadiusMeters *float64 `json:"radiusMeters" validate:"required"`
	Date         string   `json:"date" validate:"required"`
}

func (req findRequest) query() (models.GeoPoint, error) {
	q := models.GeoPoint{Latitude: *req.Lat, Longitude: *req.Lng}
	if !q.Valid() {
		return q, models.Invalid("lat/lng is not a valid coordinate")
	}
	return q, nil
}

type searchRequest struct {
	Pickup       *pointDTO `json:"pickup" validate:"required"`
	Drop         *pointDTO `json:"drop" validate:"required"`
	Date         string    `json:"date" validate:"required"`
	RadiusMeters *float64  `json:"radiusMeters" validate:"required"`
}

func (req searchRequest) query() (matcher.SearchQuery, error) {
	q := matcher.SearchQuery{
		Pickup:       req.Pickup.point(),
		Drop:         req.Drop.point(),
		Date:         req.Date,
		RadiusMeters: *req.RadiusMeters,
	}
	if !q.Pickup.Valid() {
		return q, models.Invalid("pickup is not a valid coordinate")
	}
	if !q.Drop.Valid() {
		return q, models.Invalid("drop is not a valid coordinate")
	}
	return q, nil
}

type rideRequest struct {
	DriverID        string    `json:"driverId" validate:"required"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	PickupInfo      *pointDTO `json:"pickupInfo" validate:"required"`
	DestInfo        *pointDTO `json:"destInfo" validate:"required"`
	EncodedPolyline string    `json:"encodedPolyline"`
	Vehicle         string    `json:"vehicle" validate:"required,oneof=Car Bus Bike"`
	Seats           *int      `json:"seats" validate:"required"`
	Date            string    `json:"date" validate:"required"`
	Time            string    `json:"time" validate:"omitempty,datetime=15:04"`
	PricingModel    string    `json:"pricingModel" validate:"omitempty,oneof=per_km fixed"`
	Price           *float64  `json:"price"`
}

// offer converts the request; RideOffer.Validate runs in the store.
func (req rideRequest) offer() (models.RideOffer, error) {
	date, err := models.ParseServiceDate(req.Date)
	if err != nil {
		return models.RideOffer{}, err
	}
	return models.RideOffer{
		DriverID:        req.DriverID,
		Name:            req.Name,
		Phone:           req.Phone,
		PickupInfo:      req.PickupInfo.point(),
		DestInfo:        req.DestInfo.point(),
		EncodedPolyline: req.EncodedPolyline,
		Vehicle:         models.Vehicle(req.Vehicle),
		Seats:           *req.Seats,
		Date:            date,
		Time:            req.Time,
		PricingModel:    models.PricingModel(req.PricingModel),
		Price:           req.Price,
	}, nil
}

// ridePatch is a partial update; absent fields keep their stored values.
type ridePatch struct {
	DriverID        *string   `json:"driverId" validate:"omitempty,min=1"`
	Name            *string   `json:"name"`
	Phone           *string   `json:"phone"`
	PickupInfo      *pointDTO `json:"pickupInfo"`
	DestInfo        *pointDTO `json:"destInfo"`
	EncodedPolyline *string   `json:"encodedPolyline"`
	Vehicle         *string   `json:"vehicle" validate:"omitempty,oneof=Car Bus Bike"`
	Seats           *int      `json:"seats"`
	Date            *string   `json:"date"`
	Time            *string   `json:"time" validate:"omitempty,datetime=15:04"`
	PricingModel    *string   `json:"pricingModel" validate:"omitempty,oneof=per_km fixed"`
	Price           *float64  `json:"price"`
}

func (p ridePatch) apply(r models.RideOffer) (models.RideOffer, error) {
	if p.DriverID != nil {
		r.DriverID = *p.DriverID
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Phone != nil {
		r.Phone = *p.Phone
	}
	if p.PickupInfo != nil {
		r.PickupInfo = p.PickupInfo.point()
	}
	if p.DestInfo != nil {
		r.DestInfo = p.DestInfo.point()
	}
	if p.EncodedPolyline != nil {
		r.EncodedPolyline = *p.EncodedPolyline
	}
	if p.Vehicle != nil {
		r.Vehicle = models.Vehicle(*p.Vehicle)
	}
	if p.Seats != nil {
		r.Seats = *p.Seats
	}
	if p.Date != nil {
		date, err := models.ParseServiceDate(*p.Date)
		if err != nil {
			return r, err
		}
		r.Date = date
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.PricingModel != nil {
		r.PricingModel = models.PricingModel(*p.PricingModel)
	}
	if p.Price != nil {
		v := *p.Price
		r.Price = &v
	}
	return r, nil
}
