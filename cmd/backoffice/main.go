package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/labdesk/backoffice/internal/cache"
	"github.com/labdesk/backoffice/internal/enrich"
	"github.com/labdesk/backoffice/internal/gateway"
	"github.com/labdesk/backoffice/internal/handlers"
	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/internal/ordersync"
	"github.com/labdesk/backoffice/internal/outbox"
	"github.com/labdesk/backoffice/internal/status"
	"github.com/labdesk/backoffice/internal/workflow"
	"github.com/labdesk/backoffice/libs/config"
	"github.com/labdesk/backoffice/libs/db"
	"github.com/labdesk/backoffice/libs/httpx"
	"github.com/labdesk/backoffice/libs/kafkax"
	otelx "github.com/labdesk/backoffice/libs/otel"
	"github.com/labdesk/backoffice/libs/runtime"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "backoffice")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	platformURL, err := config.RequiredString("PLATFORM_BASE_URL")
	if err != nil {
		panic(err)
	}
	authSecret, err := config.RequiredString("AUTH_JWT_SECRET")
	if err != nil {
		panic(err)
	}

	gw := gateway.New(platformURL, logger)

	// Status overrides live in Redis so they survive restarts; the in-memory
	// store is the single-node dev fallback.
	var statusStore status.Store
	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer rdb.Close()
		statusStore = status.NewRedisStore(rdb, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, status overrides will not survive restarts")
		statusStore = status.NewMemoryStore()
	}

	userCache := cache.New(cache.Options[model.User]{
		Fetch: func(ctx context.Context, id string) (model.User, bool, error) {
			u, err := gw.UserByID(ctx, id)
			if err != nil {
				return model.User{}, false, err
			}
			if u == nil {
				return model.User{}, false, nil
			}
			return *u, true, nil
		},
		FetchMany: gw.UsersByIDs,
		Fallback:  model.FallbackUser,
		TTL:       config.Seconds("USER_CACHE_TTL_SECONDS", 5*time.Minute),
		Logger:    logger,
	})
	participantCache := cache.New(cache.Options[[]model.Participant]{
		Fetch: func(ctx context.Context, orderID string) ([]model.Participant, bool, error) {
			parts, err := gw.ParticipantsByOrder(ctx, orderID)
			if err != nil {
				return nil, false, err
			}
			return parts, true, nil
		},
		Fallback: func(string) []model.Participant { return []model.Participant{} },
		Logger:   logger,
	})

	enricher := enrich.New(gw, userCache, participantCache, logger, enrich.Config{
		Timeout:     config.Seconds("ENRICH_TIMEOUT_SECONDS", 8*time.Second),
		StepTimeout: config.Seconds("ENRICH_STEP_TIMEOUT_SECONDS", 3*time.Second),
		ChunkSize:   config.Int("ENRICH_CHUNK_SIZE", 5),
	})

	var syncOpts []ordersync.Option
	if config.String("ORDER_SYNC_VERIFY", "true") == "true" {
		syncOpts = append(syncOpts, ordersync.WithVerification())
	}
	syncer := ordersync.New(gw, logger, syncOpts...)

	checks := []runtime.ReadyCheck{
		{Name: "platform", Check: gateway.ReadyCheck(gw)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: status.ReadyCheck(rdb)})
	}

	// The effects outbox needs Postgres; without it transitions still work
	// but notifications, task updates and status events are skipped.
	var effects workflow.EffectQueue
	brokers := config.String("KAFKA_BROKERS", "")
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		repo := outbox.NewRepository(pool)
		effects = repo

		executors := map[outbox.EffectType]outbox.Executor{
			outbox.EffectNotifyCustomer: outbox.NewNotifyExecutor(gw),
			outbox.EffectUpdateTask:     outbox.NewTaskExecutor(gw),
		}
		if brokers != "" {
			writer := kafka.NewWriter(kafka.WriterConfig{
				Brokers:  kafkax.SplitBrokers(brokers),
				Balancer: &kafka.Hash{},
			})
			defer writer.Close()
			executors[outbox.EffectPublishStatus] = outbox.NewPublishExecutor(writer)
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		} else {
			logger.Warn("KAFKA_BROKERS not set, status events will not be published")
		}

		dispatcher := outbox.NewDispatcher(pool, repo, executors, logger, outbox.DispatcherConfig{
			PollEvery: config.Seconds("EFFECT_POLL_SECONDS", 2*time.Second),
		})
		go dispatcher.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set, post-transition effects disabled")
	}

	flow := workflow.NewService(gw, statusStore, syncer, effects, logger)
	apptHandler := handlers.NewAppointmentHandler(gw, enricher, statusStore, flow, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	authed := handlers.RequireAuth(authSecret)
	mux.Handle("/api/v1/appointments", authed(http.HandlerFunc(apptHandler.List)))
	mux.Handle("/api/v1/appointments/", authed(http.HandlerFunc(apptHandler.Item)))

	var rateLimit httpx.Middleware
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 300)
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, service).Middleware(logger, true)
	} else {
		rateLimit = httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: config.String("CORS_ALLOW_CREDENTIALS", "false") == "true",
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithBodyLimit(1<<20),
		// Longer than the list handler's own fetch budget so enrichment can
		// still degrade gracefully before the outer deadline cuts in.
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 30*time.Second)),
		rateLimit,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
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
