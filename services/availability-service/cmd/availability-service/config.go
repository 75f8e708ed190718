package main

import (
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/config"
	"github.com/md-rashed-zaman/tourbook/libs/httpx"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/availability"
)

type serviceConfig struct {
	Service  string
	Port     string
	GrpcPort string

	Engine availability.Config

	CatalogBaseURL string
	CatalogFile    string
	CatalogTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	DatabaseURL string
	AutoMigrate bool
	QuoteTTL    time.Duration

	KafkaBrokers      string
	KafkaGroupID      string
	KafkaConsumeTopic string
	OutboxRetention   time.Duration

	CORS              httpx.CORSPolicy
	BodyLimit         int64
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	RateLimitPerMin   int
	RateLimitFailOpen bool
}

func loadConfig() (serviceConfig, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := serviceConfig{
		Service:           config.String("SERVICE_NAME", "availability-service"),
		CatalogBaseURL:    strings.TrimSpace(config.String("CATALOG_BASE_URL", "")),
		CatalogFile:       strings.TrimSpace(config.String("CATALOG_FILE", "")),
		RedisAddr:         strings.TrimSpace(config.String("REDIS_ADDR", "")),
		RedisPassword:     config.String("REDIS_PASSWORD", ""),
		DatabaseURL:       strings.TrimSpace(config.String("DATABASE_URL", "")),
		AutoMigrate:       config.Bool("DB_AUTO_MIGRATE", false),
		KafkaBrokers:      config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:      config.String("KAFKA_GROUP_ID", "availability-service"),
		KafkaConsumeTopic: config.String("KAFKA_CONSUME_TOPIC", "availability.changed.v1"),
		RateLimitFailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		CORS: httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id"),
			ExposedHeaders:   []string{httpx.RequestIDHeader},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		},
	}

	var err error
	cfg.Port, err = config.Port("PORT", "8086")
	collect(err)
	cfg.GrpcPort, err = config.Port("GRPC_PORT", "9096")
	collect(err)

	cfg.Engine = availability.DefaultConfig()
	cfg.Engine.Location, err = config.Location("AVAILABILITY_TIMEZONE", "UTC")
	collect(err)
	cfg.Engine.DefaultCutoffHours, err = config.Float("DEFAULT_CUTOFF_HOURS", cfg.Engine.DefaultCutoffHours)
	collect(err)
	cfg.Engine.ChildPriceRatio, err = config.Float("CHILD_PRICE_RATIO", cfg.Engine.ChildPriceRatio)
	collect(err)
	cfg.Engine.LookaheadDays, err = config.Int("LOOKAHEAD_DAYS", cfg.Engine.LookaheadDays)
	collect(err)
	cfg.Engine.MaxConcurrentLookups, err = config.Int("MAX_CONCURRENT_LOOKUPS", cfg.Engine.MaxConcurrentLookups)
	collect(err)
	cfg.Engine.LookupTimeout, err = config.Duration("LOOKUP_TIMEOUT", cfg.Engine.LookupTimeout)
	collect(err)

	cfg.CatalogTimeout, err = config.Duration("CATALOG_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	cfg.CacheTTL, err = config.Duration("CATALOG_CACHE_TTL", time.Minute)
	collect(err)
	cfg.QuoteTTL, err = config.Duration("QUOTE_TTL", 15*time.Minute)
	collect(err)
	cfg.OutboxRetention, err = config.Duration("OUTBOX_RETENTION", 7*24*time.Hour)
	collect(err)
	cfg.CORS.MaxAge, err = config.Duration("CORS_MAX_AGE", 10*time.Minute)
	collect(err)

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	collect(err)
	cfg.BodyLimit = int64(bodyLimit)
	cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.RateLimitPerMin, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)

	switch {
	case cfg.CatalogBaseURL == "" && cfg.CatalogFile == "":
		collect(errors.New("one of CATALOG_BASE_URL or CATALOG_FILE is required"))
	case cfg.CatalogBaseURL != "" && cfg.CatalogFile != "":
		collect(errors.New("CATALOG_BASE_URL and CATALOG_FILE are mutually exclusive"))
	}
	if cfg.Engine.DefaultCutoffHours < 0 {
		collect(errors.New("DEFAULT_CUTOFF_HOURS must not be negative"))
	}

	return cfg, errors.Join(errs...)
}
