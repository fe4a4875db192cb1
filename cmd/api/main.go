// Package main provides the entrypoint for the nighttune API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nighttune/nighttune/internal/api"
	"github.com/nighttune/nighttune/internal/api/handler"
	"github.com/nighttune/nighttune/internal/api/middleware"
	"github.com/nighttune/nighttune/internal/autotune"
	"github.com/nighttune/nighttune/internal/database"
	"github.com/nighttune/nighttune/internal/nightscout"
	"github.com/nighttune/nighttune/internal/resilience"
	"github.com/nighttune/nighttune/internal/state"
	"github.com/nighttune/nighttune/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "3.0.0"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "nighttune-api"

	// Local development reads configuration from a .env file; a missing
	// file is fine.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting nighttune API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	backendURL := os.Getenv("AUTOTUNE_BACKEND_URL")
	if backendURL == "" {
		backendURL = "https://autotune.nighttune.dev"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Open the state store: Postgres when configured, an embedded SQLite
	// file otherwise.
	repo, repoProbe, closeRepo, err := openRepository(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state storage")
	}
	defer closeRepo()

	store := state.NewStore(repo, log)
	if err := store.Init(ctx, Version); err != nil {
		log.Fatal().Err(err).Msg("failed to load persisted state")
	}

	upstreamMetrics, err := resilience.NewUpstreamMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upstream metrics")
	}

	// Tuning backend client and job lifecycle manager
	backendCfg := resilience.DefaultClientConfig("autotune")
	backendCfg.Metrics = upstreamMetrics
	backendHTTP := resilience.NewClient(backendCfg)
	backendClient := autotune.NewClient(autotune.ClientConfig{
		BaseURL:    backendURL,
		HTTPClient: backendHTTP,
		Logger:     log,
	})
	manager := autotune.NewManager(autotune.ManagerConfig{
		API:    backendClient,
		Logger: log,
	})
	defer manager.Close()
	log.Info().Str("backend", backendURL).Msg("job lifecycle manager initialized")

	// The Nightscout client is built per request because the instance URL
	// and token live in mutable state.
	nightscoutCfg := resilience.DefaultClientConfig("nightscout")
	nightscoutCfg.Metrics = upstreamMetrics
	nightscoutHTTP := resilience.NewClient(nightscoutCfg)
	profileSource := func(baseURL, accessToken string) handler.ProfileSource {
		return nightscout.NewClient(nightscout.ClientConfig{
			BaseURL:     baseURL,
			AccessToken: accessToken,
			HTTPClient:  nightscoutHTTP,
			Logger:      log,
		})
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       metrics,
		Store:         store,
		Manager:       manager,
		ProfileSource: profileSource,
		ReadinessProbes: []handler.ReadinessProbe{
			{Name: "state-storage", Check: repoProbe},
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// openRepository selects the snapshot repository from STORAGE_DRIVER:
// "postgres" uses a shared pool, anything else an embedded SQLite file at
// STATE_DB_PATH.
func openRepository(ctx context.Context, log zerolog.Logger) (state.Repository, func(context.Context) error, func(), error) {
	if os.Getenv("STORAGE_DRIVER") == "postgres" {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		probe := func(ctx context.Context) error { return pool.Ping(ctx) }
		return state.NewPostgresRepository(pool), probe, pool.Close, nil
	}

	path := os.Getenv("STATE_DB_PATH")
	if path == "" {
		path = "nighttune.db"
	}
	repo, err := state.NewSQLiteRepository(path)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info().Str("path", path).Msg("sqlite state storage opened")

	probe := func(ctx context.Context) error { return repo.Ping(ctx) }
	return repo, probe, func() { _ = repo.Close() }, nil
}
