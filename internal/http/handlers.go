package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/publish"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	Publisher *publish.Service
	Matcher   *matcher.Service
	Feed      *dispatch.RouteFeed

	requestTimeout time.Duration
	checks         map[string]ReadinessCheck
	closers        []func() error
	logger         *slog.Logger
	mux            *mux.Router
}

type Options struct {
	RequestTimeout time.Duration
	Checks         map[string]ReadinessCheck
	Logger         *slog.Logger
}

func NewServer(pub *publish.Service, m *matcher.Service, feed *dispatch.RouteFeed, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Publisher:      pub,
		Matcher:        m,
		Feed:           feed,
		requestTimeout: opts.RequestTimeout,
		checks:         opts.Checks,
		logger:         logger,
		mux:            mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.HandleFunc("/rides/store-route", s.handleStoreRoute).Methods(http.MethodPost)
	api.HandleFunc("/rides/find", s.handleFindNearby).Methods(http.MethodPost)
	api.HandleFunc("/rides/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/rides", s.handleCreateRide).Methods(http.MethodPost)
	api.HandleFunc("/rides", s.handleListRides).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}", s.handleUpdateRide).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/rides/{id}", s.handleDeleteRide).Methods(http.MethodDelete)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.Feed != nil {
		s.mux.HandleFunc("/ws/routes/{date}", s.handleRouteFeed)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// OnClose registers fn to run on Close, in reverse order.
func (s *Server) OnClose(fn func() error) { s.closers = append(s.closers, fn) }

func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) handleStoreRoute(w http.ResponseWriter, r *http.Request) {
	var req storeRouteRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	points, ok := req.points()
	switch {
	case ok:
	case req.EncodedPolyline != "":
		var err error
		if points, err = geo.DecodePolyline(req.EncodedPolyline); err != nil {
			s.writeError(w, r, err)
			return
		}
	default:
		s.writeError(w, r, models.Invalid("polylinePoints must be a list of points"))
		return
	}
	if err := s.Publisher.StoreRoute(r.Context(), req.RiderID, req.Date, points); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Route stored"})
}

func (s *Server) handleFindNearby(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := req.query()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	drivers, err := s.Matcher.FindNearbyDrivers(r.Context(), q, *req.RadiusMeters, req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "drivers": drivers})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := req.query()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rides, err := s.Matcher.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rides": rides})
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req rideRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	offer, err := req.offer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.Publisher.CreateRide(r.Context(), offer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "ride": created})
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	rides, err := s.Publisher.ListRides(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rides == nil {
		rides = []models.RideOffer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rides": rides})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Publisher.GetRide(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ride": ride})
}

func (s *Server) handleUpdateRide(w http.ResponseWriter, r *http.Request) {
	var patch ridePatch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	current, err := s.Publisher.GetRide(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next, err := patch.apply(current)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.Publisher.UpdateRide(r.Context(), next)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ride": updated})
}

func (s *Server) handleDeleteRide(w http.ResponseWriter, r *http.Request) {
	if err := s.Publisher.DeleteRide(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Ride deleted"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failed": failed})
		return
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func (s *Server) handleRouteFeed(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if !models.ValidDate(date) {
		s.writeError(w, r, models.Invalid("malformed date %q", date))
		return
	}
	s.Feed.ServeWS(w, r, date)
}

// writeError maps the error taxonomy onto status codes. Store failures are
// logged with their cause and reported without it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrUnavailable):
		msg = "store unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		msg = "request timed out"
	}
	if status >= 500 {
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "err", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { return uuid.NewString() }
