// Package main is the entry point for the GridVeil API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/openvtt/gridveil/internal/api"
	"github.com/openvtt/gridveil/internal/auth"
	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/config"
	"github.com/openvtt/gridveil/internal/db"
	"github.com/openvtt/gridveil/internal/dice"
	"github.com/openvtt/gridveil/internal/feed"
	"github.com/openvtt/gridveil/internal/fog"
	"github.com/openvtt/gridveil/internal/health"
	"github.com/openvtt/gridveil/internal/idempotency"
	"github.com/openvtt/gridveil/internal/mapstore"
	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
	"github.com/openvtt/gridveil/internal/token"
	"github.com/openvtt/gridveil/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	flag.Parse()

	if *help {
		fmt.Println("GridVeil API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("configuration loaded", "config", cfg.LogSummary())

	// Distributed tracing (no-op when OTLP endpoint is unset)
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "gridveil-api",
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-grpc",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 0.1,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	// Database and repositories
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	sessionRepo := session.NewPostgresRepository(sqlDB)
	tokenRepo := token.NewPostgresRepository(sqlDB)
	chatRepo := chat.NewPostgresRepository(sqlDB)
	fogRepo := fog.NewPostgresRepository(sqlDB)
	mapRepo := mapstore.NewPostgresRepository(sqlDB)

	// Metrics registry
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	fogMetrics := fog.NewMetrics()
	if err := fogMetrics.Register(registry); err != nil {
		logger.Error("failed to register fog metrics", "error", err)
		os.Exit(1)
	}
	feedMetrics := feed.NewMetrics()
	if err := feedMetrics.Register(registry); err != nil {
		logger.Error("failed to register feed metrics", "error", err)
		os.Exit(1)
	}

	// Domain services
	gate := session.NewGate(sessionRepo)
	fogService := fog.NewService(fogRepo, tokenRepo, mapRepo, fogMetrics)
	roller := dice.NewRoller(rand.New(rand.NewSource(time.Now().UnixNano())))

	// Map image storage (optional)
	var uploader *mapstore.Uploader
	var storageChecker api.HealthChecker
	if cfg.MapBucketName != "" {
		uploader, err = mapstore.NewUploader(mapstore.UploaderConfig{
			BucketName:      cfg.MapBucketName,
			AccessKeyID:     cfg.MapAccessKeyID,
			SecretAccessKey: cfg.MapSecretAccessKey,
			Endpoint:        cfg.MapEndpoint,
			MaxSizeMB:       cfg.MapMaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to initialize map uploader", "error", err)
			os.Exit(1)
		}
		storageChecker = health.NewStorageChecker(cfg.MapEndpoint)
		logger.Info("map image uploads enabled", "bucket", cfg.MapBucketName)
	} else {
		logger.Info("map image uploads disabled; no bucket configured")
	}

	// Rate limiting backed by Redis when configured, in-memory otherwise
	var rateLimitStore middleware.RateLimitStore
	var redisChecker api.HealthChecker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient).AsRateLimitStore()
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("rate limiting backed by redis")
	} else {
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
		logger.Info("rate limiting backed by in-memory store")
	}

	// Idempotency keys for dice rolls, cleaned up in the background
	idemRepo := idempotency.NewInMemoryRepository()
	idemStop := make(chan struct{})
	defer close(idemStop)
	go idempotency.RunPeriodicCleanup(idemRepo, time.Hour, idempotency.DefaultExpiry, idemStop)

	// Feed producer options shared by every SSE connection
	feedOpts := []feed.Option{
		feed.WithPollInterval(time.Duration(cfg.FeedPollIntervalMS) * time.Millisecond),
		feed.WithPingInterval(time.Duration(cfg.FeedPingIntervalS) * time.Second),
		feed.WithMetrics(feedMetrics),
	}

	// HTTP handlers
	router := api.NewRouter(
		api.NewEventsHandlers(gate, tokenRepo, chatRepo, logger, feedOpts...),
		api.NewFogHandlers(fogService, gate),
		api.NewVisionHandlers(gate, tokenRepo, mapRepo),
		api.NewTokenHandlers(gate, tokenRepo),
		api.NewChatHandlers(gate, chatRepo, roller),
		api.NewMapHandlers(gate, mapRepo, uploader),
	)

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(sqlDB),
		RedisChecker:   redisChecker,
		StorageChecker: storageChecker,
		MetricsEnabled: true,
	})

	// Session routes sit behind auth, rate limiting and dice-roll idempotency.
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTSecretPrevious)
	sessionMux := http.NewServeMux()
	router.Register(sessionMux)

	idempotentRoutes := map[string]bool{"/sessions/{id}/roll": true}
	var sessionHandler http.Handler = sessionMux
	sessionHandler = middleware.IdempotencyMiddleware(idemRepo, idempotentRoutes)(sessionHandler)
	sessionHandler = middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.UserKeyFunc(), httpMetrics)(sessionHandler)
	sessionHandler = middleware.Auth(jwtService)(sessionHandler)

	mux := http.NewServeMux()
	mux.Handle("/sessions/", sessionHandler)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"gridveil-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply outer middleware: RequestID -> CORS -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.RequestID(
		middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		})(
			middleware.Tracing("gridveil-api")(
				middleware.Logging(logger)(
					middleware.HTTPMetrics(httpMetrics)(mux),
				),
			),
		),
	)

	// pprof endpoints, development only
	if cfg.ProfilingEnabled {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections outlive any fixed write deadline
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
