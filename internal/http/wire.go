package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/eta"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/publish"
	"github.com/example/carpool-matching/internal/routestore"
	"github.com/example/carpool-matching/internal/storage"
)

const mongoDisconnectTimeout = 5 * time.Second

// NewServerFromConfig builds the stores named by cfg and the services on top
// of them. The caller owns the returned server and must Close it.
func NewServerFromConfig(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	var routes routestore.Store
	switch cfg.RouteStore {
	case config.StoreRedis:
		rg := routestore.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix)
		closers = append(closers, rg.Close)
		routes = rg
		logger.Info("route store", "backend", "redis", "addr", cfg.RedisAddr)
	case config.StoreMongo:
		m, err := routestore.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return fail(fmt.Errorf("mongo route store: %w", err))
		}
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
			defer cancel()
			return m.Close(ctx)
		})
		routes = m
		logger.Info("route store", "backend", "mongo", "database", cfg.MongoDatabase)
	default:
		routes = routestore.NewMemory()
		logger.Info("route store", "backend", "memory")
	}

	var rides storage.RideStore
	switch cfg.RideStore {
	case config.StorePostgres:
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return fail(fmt.Errorf("postgres ride store: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return fail(err)
			}
			logger.Info("migrations applied")
		}
		rides = pg
		logger.Info("ride store", "backend", "postgres")
	default:
		rides = storage.NewMemoryStore()
		logger.Info("ride store", "backend", "memory")
	}

	feed := dispatch.NewRouteFeed(logger)
	pub := &publish.Service{
		Routes:    routes,
		Rides:     rides,
		Feed:      feed,
		MaxPoints: cfg.RouteMaxPoints,
		Logger:    logger,
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, producer.Close)
		pub.Events = producer
		logger.Info("route events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	m := &matcher.Service{
		Routes:        routes,
		Rides:         rides,
		ETA:           eta.Estimator{SpeedMps: cfg.DefaultSpeedMps},
		MaxCandidates: cfg.MatcherMaxCandidates,
		TopN:          cfg.MatcherTopN,
		Logger:        logger,
	}

	s := NewServer(pub, m, feed, Options{
		RequestTimeout: cfg.RequestTimeout,
		Checks: map[string]ReadinessCheck{
			"routes": routes.Ping,
			"rides":  rides.Ping,
		},
		Logger: logger,
	})
	for _, c := range closers {
		s.OnClose(c)
	}
	return s, nil
}
