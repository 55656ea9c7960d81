package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/FACorreiaa/go-poi-au-suggestions/app/db"
	l "github.com/FACorreiaa/go-poi-au-suggestions/app/logger"
	"github.com/FACorreiaa/go-poi-au-suggestions/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-au-suggestions/app/tracer"
	"github.com/FACorreiaa/go-poi-au-suggestions/config"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/api/planner"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/container"
)

func main() {
	// --- Initial Loading ---
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	// --- Logger Setup ---
	logger := setupLogger()
	slog.SetDefault(logger)

	// --- OpenTelemetry Tracer/Meter Providers ---
	otelShutdown, err := tracer.InitOtelProviders("travel-planner", fmt.Sprintf(":%s", cfg.Handlers.Prometheus.Port))
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry providers", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Metrics Setup ---
	metrics.InitAppMetrics()

	// --- Application Context & Shutdown ---
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Initialize Container ---
	c, err := container.NewContainer(ctx, &cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize container", slog.Any("error", err))
		os.Exit(1)
	}
	defer c.Close() // Ensure resources are closed on exit

	// --- Wait for Database ---
	if !c.WaitForDB(ctx) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Run Migrations ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := c.RunMigrations(dbConfig.ConnectionURL); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Router Setup ---
	planHandler := planner.NewHandler(c.Itinerary, logger)

	mainRouter := chi.NewRouter()
	mainRouter.Post("/plan", planHandler.Plan)

	// --- Server-Wide Middleware Setup ---
	rootRouter := chi.NewMux()
	rootRouter.Use(chiMiddleware.RequestID)
	rootRouter.Use(chiMiddleware.RealIP)
	rootRouter.Use(l.StructuredLogger(logger))
	rootRouter.Use(chiMiddleware.Recoverer)
	rootRouter.Use(chiMiddleware.StripSlashes)
	rootRouter.Use(chiMiddleware.Timeout(60 * time.Second))
	rootRouter.Use(chiMiddleware.Compress(5, "application/json"))
	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	rootRouter.Mount("/", mainRouter)

	// --- HTTP Server Setup ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      rootRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second, // itinerary planning calls out to the LLM and can take a while
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	// --- Start Server Goroutine & Graceful Shutdown ---
	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Error("OpenTelemetry shutdown failed", slog.Any("error", err))
	}

	logger.Info("Application shut down complete.")
}

func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
