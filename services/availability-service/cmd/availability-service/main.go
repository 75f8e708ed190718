package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/db"
	"github.com/md-rashed-zaman/tourbook/libs/httpx"
	"github.com/md-rashed-zaman/tourbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tourbook/libs/otel"
	"github.com/md-rashed-zaman/tourbook/libs/runtime"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/catalog"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var source catalog.Source
	if cfg.CatalogFile != "" {
		static, err := catalog.LoadStatic(cfg.CatalogFile, cfg.Engine.Location)
		if err != nil {
			logger.Error("catalog file load failed", "err", err, "path", cfg.CatalogFile)
			panic(err)
		}
		source = static
		logger.Info("catalog loaded from file", "path", cfg.CatalogFile, "products", len(static.ProductIDs()))
	} else {
		source = catalog.NewClient(cfg.CatalogBaseURL, cfg.Engine.Location, logger, catalog.WithTimeout(cfg.CatalogTimeout))
		logger.Info("catalog backend configured", "base_url", cfg.CatalogBaseURL)
	}

	var checks []runtime.ReadyCheck
	publicSource := source
	var rateLimitMW httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		cache := catalog.NewCache(source, rdb, cfg.CacheTTL, logger)
		publicSource = cache
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, "availability:rl")
		rateLimitMW = rl.Middleware(logger, cfg.RateLimitFailOpen)
		logger.Info("catalog cache enabled (redis)", "redis_addr", cfg.RedisAddr, "ttl", cfg.CacheTTL.String())

		if cfg.KafkaBrokers != "" && cfg.KafkaConsumeTopic != "" {
			invalidator := consumer.New(logger, consumer.Config{
				Brokers: cfg.KafkaBrokers,
				GroupID: cfg.KafkaGroupID,
				Topic:   cfg.KafkaConsumeTopic,
			}, consumer.InvalidateCache(cache, logger))
			go invalidator.Run(ctx)
		}
	} else {
		rl := httpx.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("catalog cache disabled; rate limiting in-memory", "per_minute", cfg.RateLimitPerMin)
	}

	var quotes handlers.QuoteStore
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				logger.Error("db migration failed", "err", err)
				panic(err)
			}
		}

		outboxRepo := outbox.NewRepository(pool)
		quoteRepo := storage.NewQuoteRepository(pool, outboxRepo, cfg.QuoteTTL)
		quotes = quoteRepo
		go storage.NewSweeper(quoteRepo, logger, cfg.QuoteTTL).Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
			Retention: cfg.OutboxRetention,
		})
		go outboxPublisher.Run(ctx)
	} else {
		logger.Info("quote storage disabled (no DATABASE_URL)")
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	public := availability.New(publicSource, cfg.Engine, logger.With("engine", "public"))
	preview := availability.New(source, cfg.Engine, logger.With("engine", "preview"))
	availabilityHandler := handlers.NewAvailabilityHandler(public, preview, quotes, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/public/availability", availabilityHandler.Public)
	mux.HandleFunc("/api/v1/public/quotes", availabilityHandler.Quote)
	mux.HandleFunc("/api/v1/admin/availability/preview", availabilityHandler.Preview)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(cfg.CORS),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, cfg, logger, checks); err != nil {
		logger.Error("grpc server start failed", "err", err)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
