package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from an optional config file overlaid by environment variables,
// with defaults that run locally without any backing service.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	RouteStore string // memory | redis | mongo
	RideStore  string // memory | postgres

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	MongoURI      string
	MongoDatabase string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	DefaultSpeedMps      float64
	MatcherTopN          int
	MatcherMaxCandidates int
	RouteMaxPoints       int

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:             ":8080",
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         10 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		RequestTimeout:       5 * time.Second,
		RedisKeyPrefix:       "routes",
		MongoDatabase:        "carpool",
		KafkaTopic:           "route-events",
		DefaultSpeedMps:      10,
		MatcherTopN:          50,
		MatcherMaxCandidates: 500,
		RouteMaxPoints:       10000,
		LogLevel:             "info",
	}
}

// LoadServerConfig reads configFile (or $CONFIG_FILE) when set, then the
// environment. Every invalid value is reported, not just the first.
func LoadServerConfig(configFile string) (ServerConfig, error) {
	cfg := defaultServerConfig()
	v, err := newViper(configFile)
	if err != nil {
		return cfg, err
	}
	var errs []error

	setString(v, &cfg.HTTPAddr, "HTTP_ADDR")
	setDuration(v, &cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDuration(v, &cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDuration(v, &cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDuration(v, &cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setDuration(v, &cfg.RequestTimeout, "HTTP_REQUEST_TIMEOUT", &errs)

	setString(v, &cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	setString(v, &cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")

	setString(v, &cfg.MongoURI, "MONGO_URI")
	setString(v, &cfg.MongoDatabase, "MONGO_DATABASE")

	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setString(v, &cfg.KafkaTopic, "KAFKA_TOPIC")

	setString(v, &cfg.PGDSN, "PG_DSN")

	setFloat(v, &cfg.DefaultSpeedMps, "MATCHER_DEFAULT_SPEED_MPS", &errs)
	setInt(v, &cfg.MatcherTopN, "MATCHER_TOP_N", &errs)
	setInt(v, &cfg.MatcherMaxCandidates, "MATCHER_MAX_CANDIDATES", &errs)
	setInt(v, &cfg.RouteMaxPoints, "ROUTE_MAX_POINTS", &errs)

	if lvl := v.GetString("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}
	cfg.RunMigrations = strings.EqualFold(v.GetString("MIGRATE"), "true")

	// without an explicit choice, a configured backend wins over memory
	cfg.RouteStore = strings.ToLower(v.GetString("ROUTE_STORE"))
	if cfg.RouteStore == "" {
		cfg.RouteStore = StoreMemory
		if cfg.RedisAddr != "" {
			cfg.RouteStore = StoreRedis
		}
	}
	cfg.RideStore = strings.ToLower(v.GetString("RIDE_STORE"))
	if cfg.RideStore == "" {
		cfg.RideStore = StoreMemory
		if cfg.PGDSN != "" {
			cfg.RideStore = StorePostgres
		}
	}

	switch cfg.RouteStore {
	case StoreMemory:
	case StoreRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("ROUTE_STORE=redis requires REDIS_ADDR"))
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, fmt.Errorf("ROUTE_STORE=mongo requires MONGO_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROUTE_STORE %q", cfg.RouteStore))
	}
	switch cfg.RideStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, fmt.Errorf("RIDE_STORE=postgres requires PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RIDE_STORE %q", cfg.RideStore))
	}

	if cfg.MatcherTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if cfg.MatcherMaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_MAX_CANDIDATES must be > 0"))
	}
	if cfg.RouteMaxPoints <= 0 {
		errs = append(errs, fmt.Errorf("ROUTE_MAX_POINTS must be > 0"))
	}
	if cfg.DefaultSpeedMps <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_DEFAULT_SPEED_MPS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig drives the route event projector.
type ConsumerConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	MetricsAddr   string
	RetryAttempts int
	RetryDelay    time.Duration
	LogLevel      string
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		KafkaBrokers:   []string{"localhost:9092"},
		KafkaTopic:     "route-events",
		KafkaGroup:     "carpool-route-projector",
		RedisAddr:      "localhost:6379",
		RedisKeyPrefix: "routes",
		MetricsAddr:    ":2112",
		RetryAttempts:  3,
		RetryDelay:     200 * time.Millisecond,
		LogLevel:       "info",
	}
}

func LoadConsumerConfig(configFile string) (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	v, err := newViper(configFile)
	if err != nil {
		return cfg, err
	}
	var errs []error

	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setString(v, &cfg.KafkaTopic, "KAFKA_TOPIC")
	setString(v, &cfg.KafkaGroup, "KAFKA_GROUP")
	setString(v, &cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	setString(v, &cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	setString(v, &cfg.MetricsAddr, "METRICS_ADDR")
	setInt(v, &cfg.RetryAttempts, "CONSUMER_RETRY_ATTEMPTS", &errs)
	setDuration(v, &cfg.RetryDelay, "CONSUMER_RETRY_DELAY", &errs)
	if lvl := v.GetString("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must name at least one broker"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_RETRY_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

func setDuration(v *viper.Viper, target *time.Duration, key string, errs *[]error) {
	if s := v.GetString(key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloat(v *viper.Viper, target *float64, key string, errs *[]error) {
	if s := v.GetString(key); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setInt(v *viper.Viper, target *int, key string, errs *[]error) {
	if s := v.GetString(key); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setString(v *viper.Viper, target *string, key string) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		*target = s
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
