package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/config"
	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/handlers"
	"github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/middleware"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/queue"
	"github.com/benvon/mentra/internal/services/ai"
	"github.com/benvon/mentra/internal/telemetry"
	"github.com/benvon/mentra/internal/workers"
)

// version is reported by GET /; overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

const (
	configReloadInterval = time.Minute
	dlqGCInterval        = time.Hour
	dlqRetention         = queue.RolloverJobLifetime
)

// repositories is the storage selected by STORAGE_BACKEND.
type repositories struct {
	reflections database.ReflectionRepositoryInterface
	stats       database.StatsRepositoryInterface
	settings    database.SettingsRepositoryInterface
	origins     database.OriginRepositoryInterface
	rateLimits  database.RateLimitRepositoryInterface
}

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Int("extension_origins", len(cfg.ExtensionOrigins)),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName:    telemetry.DefaultServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
			Insecure:       true,
		}); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	checks := map[string]handlers.CheckFunc{"database": nil, "redis": nil, "rabbitmq": nil}

	var repos repositories
	switch cfg.StorageBackend {
	case config.StorageMemory:
		repos = memoryRepositories()
		zapLogger.Warn("using_in_memory_storage_data_is_not_persisted")
	default:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		if err := db.Migrate(ctx); err != nil {
			zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
		}
		zapLogger.Info("connected_to_database")
		repos = postgresRepositories(db)
		checks["database"] = db.HealthCheck
	}

	// Rate limiting needs Redis; without it the API runs unthrottled.
	var rateLimiters []*middleware.RateLimitReloader
	scopeMiddleware := make(map[models.RateLimitScope][]mux.MiddlewareFunc)
	if cfg.RedisURL == "" {
		zapLogger.Warn("redis_not_configured_rate_limiting_disabled")
	} else if redisLimiter, err := middleware.NewRedisRateLimiter(cfg.RedisURL); err != nil {
		zapLogger.Warn("failed_to_connect_to_redis_rate_limiting_disabled", zap.Error(err))
	} else {
		defer func() {
			if err := redisLimiter.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		checks["redis"] = redisLimiter.Ping
		for _, scope := range models.RateLimitScopes {
			rl := middleware.NewRateLimitReloader(redisLimiter.Store(), repos.rateLimits, scope, zapLogger, configReloadInterval)
			rl.Load(ctx)
			rateLimiters = append(rateLimiters, rl)
			scopeMiddleware[scope] = append(scopeMiddleware[scope], rl.Middleware())
			rate := rl.Rate()
			zapLogger.Info("rate_limit_loaded",
				zap.String("scope", string(scope)),
				zap.Int64("limit", rate.Limit),
				zap.Duration("period", rate.Period),
			)
		}
		zapLogger.Info("connected_to_redis")
	}

	var jobQueue *queue.RabbitMQQueue
	if cfg.RabbitMQURL != "" {
		jobQueue, err = connectRabbitMQ(ctx, cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("rabbitmq_unavailable_daily_rollover_disabled", zap.Error(err))
		} else {
			defer func() {
				if err := jobQueue.Close(); err != nil {
					zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
				}
			}()
			checks["rabbitmq"] = jobQueue.HealthCheck
		}
	}

	provider := createAIProvider(cfg, zapLogger, debugMode)
	prompts, err := ai.DefaultPrompts()
	if err != nil {
		zapLogger.Fatal("failed_to_load_prompt_templates", zap.Error(err))
	}
	ragService := ai.NewRAGService(provider, prompts, zapLogger)

	corsReloader := middleware.NewCORSReloader(repos.origins, cfg.CORSSeedOrigins(), zapLogger, configReloadInterval)
	corsReloader.Load(ctx)
	zapLogger.Info("cors_origins_loaded", zap.Int("count", len(corsReloader.Origins())))

	bodyLimits := make([]middleware.BodyLimit, 0, len(handlers.APIPrefixes))
	for _, prefix := range handlers.AIPaths() {
		bodyLimits = append(bodyLimits, middleware.BodyLimit{Prefix: prefix, MaxBytes: middleware.AIMaxRequestSize})
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)

	// gorilla/mux runs middleware in registration order, outermost first.
	r.Use(middleware.RequestID)
	if tracingEnabled {
		r.Use(telemetry.Middleware(telemetry.DefaultServiceName))
	}
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.ErrorHandler(zapLogger, debugMode))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, bodyLimits...))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))

	handlers.NewHealthChecker(version, checks).RegisterRoutes(r)
	handlers.NewOpenAPIHandler().RegisterRoutes(r)

	api := handlers.API{
		Reflections: handlers.NewReflectionHandler(repos.reflections, zapLogger),
		Stats:       handlers.NewStatsHandler(repos.stats, zapLogger),
		Settings:    handlers.NewSettingsHandler(repos.settings, zapLogger),
		AI:          handlers.NewAIHandler(ragService, zapLogger),

		ScopeMiddleware: scopeMiddleware,
	}
	api.Register(r)

	// Preflight requests for paths without an OPTIONS route; CORS has already answered them.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	go corsReloader.Start(ctx)
	for _, rl := range rateLimiters {
		go rl.Start(ctx)
	}
	if jobQueue != nil {
		startBackgroundJobs(ctx, cfg, jobQueue, repos, zapLogger)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      middleware.DefaultRequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("server_failed_to_start", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
		os.Exit(1)
	}
	zapLogger.Info("server_exited")
}

func memoryRepositories() repositories {
	return repositories{
		reflections: database.NewMemoryReflectionRepository(),
		stats:       database.NewMemoryStatsRepository(),
		settings:    database.NewMemorySettingsRepository(),
		origins:     database.NewMemoryOriginRepository(),
		rateLimits:  database.NewMemoryRateLimitRepository(),
	}
}

func postgresRepositories(db *database.DB) repositories {
	return repositories{
		reflections: database.NewReflectionRepository(db),
		stats:       database.NewStatsRepository(db),
		settings:    database.NewSettingsRepository(db),
		origins:     database.NewOriginRepository(db),
		rateLimits:  database.NewRateLimitRepository(db),
	}
}

// connectRabbitMQ retries with exponential backoff to ride out broker startup.
func connectRabbitMQ(ctx context.Context, url string, zapLogger *zap.Logger) (*queue.RabbitMQQueue, error) {
	const maxRetries = 5
	delay := 2 * time.Second
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q, nil
		}
		lastErr = err
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
	return nil, lastErr
}

// startBackgroundJobs schedules the nightly rollover and purges the DLQ.
// The rollover is only scheduled for postgres: the worker cannot see in-memory stats.
func startBackgroundJobs(ctx context.Context, cfg *config.Config, jobQueue *queue.RabbitMQQueue, repos repositories, zapLogger *zap.Logger) {
	if cfg.StorageBackend == config.StoragePostgres {
		scheduler := workers.NewRolloverScheduler(repos.stats, jobQueue, zapLogger)
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("rollover_scheduler_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_rollover_scheduler")
	}

	dlqGC := queue.NewGarbageCollector(jobQueue, dlqGCInterval, dlqRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", dlqGCInterval),
		zap.Duration("retention", dlqRetention),
	)
}

// createAIProvider builds the configured provider, or a stand-in that fails
// every call so the AI routes report the problem instead of vanishing.
func createAIProvider(cfg *config.Config, zapLogger *zap.Logger, debugMode bool) ai.AIProvider {
	registry := ai.NewProviderRegistry()
	registry.Register("openai", ai.NewOpenAIProviderFromConfig(zapLogger, debugMode))

	provider, err := registry.GetProvider(cfg.AIProvider, cfg.AIConfig())
	if err != nil {
		zapLogger.Warn("failed_to_create_ai_provider_ai_features_disabled",
			zap.String("provider", cfg.AIProvider),
			zap.Strings("available", registry.Names()),
			zap.Error(err),
		)
		return ai.UnavailableProvider{Reason: err}
	}
	return provider
}
