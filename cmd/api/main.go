package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competitor-radar/internal/app"
	"competitor-radar/internal/cleanup"
	"competitor-radar/internal/handlers"
	"competitor-radar/internal/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "/app/config/radar.yaml")
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("Loaded configuration", map[string]interface{}{"path": configPath})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Scheduler.Start(); err != nil {
		log.Warn("Failed to start scheduler", map[string]interface{}{"error": err.Error()})
	}
	defer a.Scheduler.Stop()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	subsHandler := handlers.NewSubscriptionHandler(a.Subscriptions, a.Snapshots, a.Alerts, a.Engine, a.Heatmaps, log)
	if a.Projections != nil {
		subsHandler.WithFeedProjection(a.Projections).WithSummaryProjection(a.Projections)
	}
	var searcher handlers.AlertSearcher
	if a.Search != nil {
		searcher = a.Search
	}

	adminHandler := handlers.NewAdminHandler(a.Subscriptions, a.Alerts, a.Snapshots, a.Scheduler, a.Cleanup,
		cleanup.OptionsFromConfig(cfg.Cleanup), log).
		WithRunHistory(a.Runs).
		WithMovements(a.Snapshots)
	status, _ := a.Provider.(handlers.ProviderStatus)
	cache, _ := a.Provider.(handlers.CacheInvalidator)
	adminHandler.WithProvider(status, cache)

	router := handlers.NewRouter(cfg.Server.AllowOrigins, handlers.Handlers{
		Admin:         adminHandler,
		Subscriptions: subsHandler,
		Alerts:        handlers.NewAlertHandler(a.Generator, searcher),
	}, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
