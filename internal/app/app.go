// Package app wires the monitoring engine from configuration for the api server and the CLI.
package app

import (
	"context"
	"fmt"

	"competitor-radar/internal/alert"
	"competitor-radar/internal/cleanup"
	"competitor-radar/internal/config"
	"competitor-radar/internal/database"
	"competitor-radar/internal/heatmap"
	"competitor-radar/internal/lock"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/notify"
	"competitor-radar/internal/provider"
	"competitor-radar/internal/scheduler"
	"competitor-radar/internal/search"
	"competitor-radar/internal/snapshot"
	"competitor-radar/internal/subscription"
	"competitor-radar/internal/tracker"

	"github.com/redis/go-redis/v9"
)

// App holds every wired component. Optional parts are nil when disabled in config.
type App struct {
	Config *config.Config
	Log    logger.Logger

	DB          *database.GormDB
	Projections *database.Projections
	Redis       redis.UniversalClient
	Search      *search.AlertIndex

	Subscriptions *subscription.Store
	Snapshots     *snapshot.Store
	Alerts        *alert.GormStore
	Heatmaps      *heatmap.GormStore
	Runs          *scheduler.GormRunStore

	Provider   provider.BusinessDataProvider
	Tracker    *tracker.Tracker
	Generator  *alert.Generator
	Engine     *heatmap.Engine
	Sender     *notify.Sender
	Dispatcher *scheduler.Dispatcher
	Scheduler  *scheduler.Scheduler
	Cleanup    *cleanup.Service
}

// LoadConfig reads .env files, the YAML config and env overrides, then validates the result
func LoadConfig(path string) (*config.Config, error) {
	config.LoadDotEnv()
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New connects to the configured backends and wires the engine
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	gdb, err := database.NewGormDB(cfg.Database, cfg.Logging.Level == "debug")
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.DB = gdb
	if err := gdb.InitSchema(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	log.Info("Database connected", map[string]interface{}{"type": cfg.Database.Type})

	if cfg.Database.Type == "" || cfg.Database.Type == "postgres" {
		proj, err := database.NewProjections(cfg.Database.Postgres.DSN())
		if err != nil {
			log.Warn("Read projections unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			a.Projections = proj
		}
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, using in-process lock and no provider cache", map[string]interface{}{
				"address": cfg.Redis.Address,
				"error":   err.Error(),
			})
			_ = rdb.Close()
		} else {
			a.Redis = rdb
		}
	}

	if ms := cfg.Search.Meilisearch; ms.Enabled {
		idx := search.NewAlertIndex(ms.Host, ms.APIKey, ms.Index)
		if err := idx.InitIndex(); err != nil {
			log.Warn("Failed to initialize search index", map[string]interface{}{"error": err.Error()})
		}
		a.Search = idx
	}

	a.Subscriptions = subscription.NewStore(gdb.DB())
	a.Snapshots = snapshot.NewStore(gdb.DB())
	a.Alerts = alert.NewGormStore(gdb.DB())
	a.Heatmaps = heatmap.NewGormStore(gdb.DB())
	a.Runs = scheduler.NewGormRunStore(gdb.DB())

	prov, err := provider.New(cfg, a.Redis, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build provider: %w", err)
	}
	a.Provider = prov

	if cfg.Notifications.Enabled {
		sender, err := notify.NewSender(ctx, notify.Config{
			Region:      cfg.Notifications.Region,
			SenderEmail: cfg.Notifications.SenderEmail,
			SMSSenderID: cfg.Notifications.SMSSenderID,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build notification sender: %w", err)
		}
		a.Sender = sender
	}

	a.wireEngine()
	a.Cleanup = cleanup.NewService(gdb.DB(), log)
	if a.Search != nil {
		a.Cleanup.WithSearch(a.Search)
	}
	return a, nil
}

func (a *App) wireEngine() {
	cfg, log := a.Config, a.Log

	thresholds := tracker.ThresholdsFromConfig(cfg.Tracker.Thresholds)
	a.Tracker = tracker.NewTracker(a.Provider, a.Snapshots, a.Subscriptions, tracker.Options{
		Thresholds:   thresholds,
		FetchTimeout: cfg.Tracker.GetFetchTimeout(),
	}, log)

	a.Generator = alert.NewGenerator(a.Alerts, alert.RulesFromConfig(cfg), thresholds, log)
	if a.Search != nil {
		a.Generator.WithIndexer(a.Search)
	}

	a.Engine = heatmap.NewEngine(heatmap.ParamsFromConfig(cfg.Heatmap, cfg.Tracker.GetFetchTimeout()), a.Snapshots, a.Heatmaps, a.Subscriptions, a.Provider, log)

	var locker lock.Locker
	if a.Redis != nil {
		locker = lock.NewRedisLocker(a.Redis)
	}
	a.Scheduler = scheduler.NewScheduler(cfg.Scheduler, scheduler.Dependencies{
		Subscriptions: a.Subscriptions,
		Scanner:       a.Tracker,
		Alerts:        a.Generator,
		Heatmaps:      a.Engine,
		Runs:          a.Runs,
		Locker:        locker,
	}, log)

	if a.Sender != nil && cfg.Scheduler.DispatchEnabled {
		a.Dispatcher = scheduler.NewDispatcher(a.Alerts, a.Generator, a.Subscriptions, a.Sender, scheduler.DispatcherOptions{
			Interval:    cfg.Scheduler.GetDispatchInterval(),
			BatchSize:   cfg.Scheduler.DispatchBatchSize,
			MaxAttempts: cfg.Alerts.MaxAttempts,
			Locker:      locker,
		}, log)
		a.Scheduler.WithDispatcher(a.Dispatcher)
	}
}

// Close releases database, Redis and projection connections
func (a *App) Close() {
	if a.Projections != nil {
		_ = a.Projections.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	_ = a.Log.Sync()
}
