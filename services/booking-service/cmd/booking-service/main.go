package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/libs/config"
	"github.com/appbelezeiro/belezeiro-sub003/libs/db"
	"github.com/appbelezeiro/belezeiro-sub003/libs/httpx"
	"github.com/appbelezeiro/belezeiro-sub003/libs/kafkax"
	otelx "github.com/appbelezeiro/belezeiro-sub003/libs/otel"
	"github.com/appbelezeiro/belezeiro-sub003/libs/runtime"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/cache"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/consumer"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/handlers"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/inbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/storage"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/storage/memory"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type store interface {
	service.ScheduleStore
	service.BookingStore
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	serviceName := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid TIMEZONE", "err", err)
		panic(err)
	}
	opts := service.Options{
		Location:       loc,
		MaxDaysAhead:   config.Int("AVAILABLE_DAYS_MAX", 90),
		DayConcurrency: config.Int("AVAILABLE_DAYS_CONCURRENCY", 4),
		BookingTimeout: config.Duration("BOOKING_TIMEOUT", 5*time.Second),
		Logger:         logger,
	}

	var (
		st          store
		eventInbox  consumer.Inbox
		readyChecks []runtime.ReadyCheck
	)
	brokers := config.String("KAFKA_BROKERS", "")

	switch driver := strings.ToLower(config.String("STORAGE_DRIVER", "postgres")); driver {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart and events are not published")
		st = memory.New()
		eventInbox = inbox.NewMemory()
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		pool, err := db.OpenWithOptions(ctx, dbURL, db.Options{
			MaxConns:         int32(config.Int("DB_MAX_CONNS", 10)),
			ApplicationName:  serviceName,
			StatementTimeout: config.Duration("DB_STATEMENT_TIMEOUT", 10*time.Second),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		if config.Bool("DB_MIGRATE", false) {
			if err := db.Migrate(ctx, pool, storage.Migrations, storage.MigrationsDir); err != nil {
				logger.Error("db migration failed", "err", err)
				panic(err)
			}
			logger.Info("db migrations applied")
		}

		st = storage.NewRepository(pool, loc)
		eventInbox = inbox.NewRepository(pool)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			Retention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		})
		go outboxPublisher.Run(ctx)
	default:
		logger.Error("unknown STORAGE_DRIVER", "driver", driver)
		panic("unknown STORAGE_DRIVER " + driver)
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var (
		windowCache service.WindowCache
		rateLimitMW httpx.Middleware
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		windowCache = cache.NewSlotCache(rdb, config.Duration("SLOT_CACHE_TTL", cache.DefaultTTL))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking")).
			WithKey(httpx.ClientIPAndPath)
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("slot cache and rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).WithKey(httpx.ClientIPAndPath).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	availabilitySvc := service.NewAvailabilityService(st, st, st, windowCache, opts)
	bookingSvc := service.NewBookingService(st, availabilitySvc, opts)
	scheduleSvc := service.NewScheduleService(st, windowCache, opts)

	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		startConsumer(ctx, logger, eventInbox, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", serviceName),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", consumer.TopicProviderDeleted),
		}, consumer.ProviderDeleted(logger, scheduleSvc))
	}

	if err := startGrpcServer(ctx, logger); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.Register(mux,
		handlers.NewAvailabilityHandler(availabilitySvc, logger),
		handlers.NewBookingHandler(bookingSvc, loc, logger),
		handlers.NewScheduleHandler(scheduleSvc, logger),
		rateLimitMW,
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,"+handlers.IdempotencyKeyHeader),
			ExposedHeaders: []string{httpx.RequestIDHeader, handlers.ReplayedHeader, "Retry-After"},
			MaxAge:         config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", config.String("STORAGE_DRIVER", "postgres"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func startConsumer(ctx context.Context, logger *slog.Logger, eventInbox consumer.Inbox, cfg consumer.Config, handler consumer.Handler) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return
	}
	c := consumer.New(logger.With("topic", cfg.Topic), eventInbox, cfg, handler)
	go c.Run(ctx)
	logger.Info("kafka consumer started", "topic", cfg.Topic, "group_id", cfg.GroupID)
}
