package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool"

var (
	RoutesStored      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "routes_stored_total", Help: "Routes written to the route store"})
	RoutesDeleted     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "routes_deleted_total", Help: "Routes removed from the route store"})
	RouteStoreErrors  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "route_store_errors_total", Help: "Route store failures by operation"}, []string{"op"})
	NearbyLookups     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "nearby_lookups_total", Help: "Nearby driver lookups"})
	SearchesTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "searches_total", Help: "Scored ride searches"})
	SearchLatency     = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "search_latency_seconds", Help: "Scored search latency seconds"})
	CandidatesScored  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_scored_total", Help: "Rides run through the route scorer"})
	MatchesReturned   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_returned_total", Help: "Rides returned by searches"})
	CandidatesCapped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_capped_total", Help: "Lookups that hit the candidate cap"})
	EventsPublished   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "route_events_published_total", Help: "Route events handed to the broker"}, []string{"type"})
	EventsFailed      = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "route_events_failed_total", Help: "Route events the broker rejected"}, []string{"type"})
	FeedSubscribers   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "feed_subscribers", Help: "Open websocket route feed connections"})
	EventsApplied     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "consumer_events_applied_total", Help: "Route events projected by the consumer"}, []string{"type"})
	EventsApplyFailed = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "consumer_apply_failures_total", Help: "Route events the consumer gave up on"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
