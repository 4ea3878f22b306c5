package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/api"
	"github.com/dennisdiepolder/cdrboard/backend/internal/auth"
	"github.com/dennisdiepolder/cdrboard/backend/internal/cache"
	"github.com/dennisdiepolder/cdrboard/backend/internal/config"
	"github.com/dennisdiepolder/cdrboard/backend/internal/engine"
	"github.com/dennisdiepolder/cdrboard/backend/internal/logsource"
	"github.com/dennisdiepolder/cdrboard/backend/internal/metrics"
	"github.com/dennisdiepolder/cdrboard/backend/internal/refresh"
	"github.com/dennisdiepolder/cdrboard/backend/internal/storage"
	"github.com/dennisdiepolder/cdrboard/backend/internal/websocket"
	"github.com/dennisdiepolder/cdrboard/backend/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger.Info().
		Str("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Str("queue_log", cfg.QueueLogPath).
		Msg("starting cdrboard backend")

	// Initialize JWKS for JWT validation
	if issuer := os.Getenv("OIDC_ISSUER"); issuer != "" {
		if err := auth.InitJWKS(issuer); err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize JWKS")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Call archive (DynamoDB in local/aws mode, noop otherwise)
	store, err := storage.NewStore(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize call archive")
	}

	// WebSocket hub for refresh notices
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Aggregation pipeline
	source := logsource.NewFileSource(cfg.QueueLogPath, cfg.MaxScanBytes, logger)
	bundles := cache.NewBundleCache(cfg.CacheCapacity)
	eng := engine.New(source, bundles, engine.Options{
		ComputeTimeout: cfg.ComputeTimeout,
		WindowDays:     cfg.DefaultWindowDays,
	}, logger)

	// Background refresh keeps the default scope warm
	refresher := refresh.NewRefresher(eng, store, hub, cfg.RefreshInterval, logger)
	go refresher.Start(ctx)

	// HTTP handlers
	reportHandler := api.NewReportHandler(eng, refresher, logger)
	archiveHandler := api.NewArchiveHandler(store, logger)
	adminHandler := api.NewAdminHandler(store, logger)
	wsHandler := websocket.NewHandler(hub, cfg, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public endpoints
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/metrics", metrics.Get().Handler())

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/api/cdr", func(r chi.Router) {
			r.Get("/summary", reportHandler.GetSummary)
			r.Get("/agent/{agentId}", reportHandler.GetAgent)
			r.Get("/time_range", reportHandler.GetTimeRange)
			r.Get("/stats", reportHandler.GetStats)
			r.Post("/refresh", reportHandler.Refresh)
		})

		r.Get("/api/agents/{agentId}/calls", archiveHandler.GetAgentCalls)
		r.Post("/api/admin/archive/truncate", adminHandler.TruncateArchive)

		r.Handle("/ws", wsHandler)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
