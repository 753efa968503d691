// Package main is the entry point for the stock dashboard API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reconstruct"
	"chemdash/internal/domain/reports"
	"chemdash/internal/infrastructure/config"
	v1 "chemdash/internal/infrastructure/http/v1"
	"chemdash/internal/infrastructure/http/v1/handlers"
	"chemdash/internal/infrastructure/telemetry"
	"chemdash/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     cfg.App.Name,
		Version:     version,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.SetDefault(log)
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting chemdash server",
		"version", version,
		"env", cfg.App.Env,
		"backend", cfg.Feeds.Backend,
	)

	loc, err := cfg.Dashboard.Location()
	if err != nil {
		log.Fatalw("invalid dashboard timezone", "error", err)
	}
	classifier, err := ledger.NewClassifier(cfg.Engine.ClassifierExpr)
	if err != nil {
		log.Fatalw("invalid classifier expression", "error", err)
	}

	// --- Telemetry ---
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ExportInterval:    cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatalw("failed to set up telemetry", "error", err)
	}
	meter := providers.Meter("chemdash")
	metrics, err := telemetry.NewEngineMetrics(meter)
	if err != nil {
		log.Fatalw("failed to create metrics", "error", err)
	}

	// --- Feed backend ---
	backend, err := openBackend(ctx, cfg, loc, meter, log)
	if err != nil {
		log.Fatalw("failed to open feed backend", "backend", cfg.Feeds.Backend, "error", err)
	}

	merger := feed.NewMerger(backend.sources, log)
	if err := merger.Start(ctx); err != nil {
		log.Fatalw("failed to start feed merger", "error", err)
	}

	// --- Engine ---
	service := reports.NewService(merger, reports.Config{
		Classifier: classifier,
		Location:   loc,
		Observer:   reconstruct.Observers{reconstruct.NewLogObserver(log), metrics},
		Locations:  cfg.Dashboard.Locations,
	})

	quality := dashboard.NewQualityMonitor(metrics, backend.qualityLog, log)
	go quality.Run(ctx, merger)
	go metrics.Run(ctx, merger)

	// --- Router ---
	health := handlers.NewHealthHandler(cfg.App.Name, version, merger, backend.checks)
	if backend.info != nil {
		health.WithInfo(backend.info)
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:         log,
		Reports:        service,
		Views:          merger,
		Quality:        quality,
		History:        backend.history,
		Health:         health,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.IsEnabled(),
	})

	// --- HTTP Server ---
	// No WriteTimeout: panel streams stay open.
	server := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	// Stopping the merger closes every board subscription, which ends open
	// panel streams so Shutdown does not wait on them.
	server.RegisterOnShutdown(merger.Stop)

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	cancel()
	merger.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	backend.close()

	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warnw("telemetry shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
