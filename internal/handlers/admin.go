package handlers

import (
	"context"
	"net/http"
	"time"

	"competitor-radar/internal/cleanup"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"
	"competitor-radar/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// RunTrigger starts monitoring runs and reports the last one.
// Implementations: scheduler.Scheduler
type RunTrigger interface {
	// RunNow starts a run in the background; ErrRunInProgress is returned synchronously
	RunNow(ctx context.Context, done func(*scheduler.RunSummary, error)) error
	LatestRun(ctx context.Context) (*models.MonitoringRun, error)
}

// Purger deletes the history of departed subscriptions.
// Implementations: cleanup.Service
type Purger interface {
	Purge(ctx context.Context, opts cleanup.Options) (*cleanup.Result, error)
	RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error)
}

// StatusCounter counts rows by status.
// Implementations: subscription.Store, alert.GormStore, memstore
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// SnapshotCounter counts stored snapshots.
// Implementations: snapshot.Store
type SnapshotCounter interface {
	Count(ctx context.Context) (int64, error)
}

// RunHistory lists recorded monitoring runs.
// Implementations: scheduler.GormRunStore
type RunHistory interface {
	List(ctx context.Context, limit int) ([]models.MonitoringRun, error)
}

// MovementFeed lists the latest snapshots flagged as movement.
// Implementations: snapshot.Store
type MovementFeed interface {
	RecentMovements(ctx context.Context, limit int) ([]models.CompetitorSnapshot, error)
}

// ProviderStatus reports circuit breaker and rate limit state.
// Implementations: provider.Guard, provider.Cache
type ProviderStatus interface {
	Status() map[string]interface{}
}

// CacheInvalidator drops cached provider responses.
// Implementations: provider.Cache
type CacheInvalidator interface {
	Invalidate(ctx context.Context, businessID string) error
}

// AdminHandler handles operator requests
type AdminHandler struct {
	subscriptions StatusCounter
	alerts        StatusCounter
	snapshots     SnapshotCounter
	runs          RunTrigger
	purger        Purger
	cleanupOpts   cleanup.Options
	log           logger.Logger

	history   RunHistory
	movements MovementFeed
	provider  ProviderStatus
	cache     CacheInvalidator
}

// NewAdminHandler creates a new admin handler. runs and purger may be nil when the
// scheduler or cleanup service is not wired.
func NewAdminHandler(subscriptions, alerts StatusCounter, snapshots SnapshotCounter, runs RunTrigger, purger Purger, cleanupOpts cleanup.Options, log logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &AdminHandler{
		subscriptions: subscriptions,
		alerts:        alerts,
		snapshots:     snapshots,
		runs:          runs,
		purger:        purger,
		cleanupOpts:   cleanupOpts,
		log:           log,
	}
}

// WithRunHistory enables GET /admin/runs
func (h *AdminHandler) WithRunHistory(r RunHistory) *AdminHandler {
	h.history = r
	return h
}

// WithMovements enables GET /admin/movements
func (h *AdminHandler) WithMovements(m MovementFeed) *AdminHandler {
	h.movements = m
	return h
}

// WithProvider enables the provider status and cache endpoints. status and cache may be nil.
func (h *AdminHandler) WithProvider(status ProviderStatus, cache CacheInvalidator) *AdminHandler {
	h.provider = status
	h.cache = cache
	return h
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := make(map[string]interface{})

	subs, err := h.subscriptions.CountByStatus(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	stats["subscriptions"] = subs

	alerts, err := h.alerts.CountByStatus(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	stats["alerts"] = alerts

	if h.snapshots != nil {
		total, err := h.snapshots.Count(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		stats["snapshots"] = gin.H{"total": total}
	}

	if h.runs != nil {
		last, err := h.runs.LatestRun(ctx)
		if err != nil {
			h.log.Warn("Admin: failed to load latest run", map[string]interface{}{"error": err.Error()})
		} else if last != nil {
			stats["last_run"] = last
		}
	}

	c.JSON(http.StatusOK, stats)
}

// TriggerRun starts a monitoring run in the background
func (h *AdminHandler) TriggerRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not available"})
		return
	}

	h.log.Info("Admin: manual run requested", nil)

	err := h.runs.RunNow(c.Request.Context(), func(summary *scheduler.RunSummary, err error) {
		if err != nil {
			h.log.Warn("Admin: manual run failed", map[string]interface{}{"error": err.Error()})
			return
		}
		h.log.Info("Admin: manual run completed", map[string]interface{}{
			"run_id":    summary.RunID,
			"processed": summary.Processed,
			"failed":    len(summary.Errors),
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "monitoring run started",
		"status":  "running",
	})
}

// GetLatestRun returns the summary of the most recent run
func (h *AdminHandler) GetLatestRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not available"})
		return
	}
	run, err := h.runs.LatestRun(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no monitoring run recorded"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// RunCleanup purges the history of subscriptions past retention. Dry run unless the
// request says otherwise.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	if h.purger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cleanup not available"})
		return
	}

	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := h.cleanupOpts
	if req.RetentionDays > 0 {
		opts.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		opts.MaxDeletionCount = req.MaxDeletionCount
	}
	opts.DryRun = true
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}

	h.log.Info("Admin: running cleanup", map[string]interface{}{
		"retention_days":     opts.RetentionDays,
		"max_deletion_count": opts.MaxDeletionCount,
		"dry_run":            opts.DryRun,
	})

	start := time.Now()
	result, err := h.purger.Purge(c.Request.Context(), opts)
	if err != nil {
		h.log.Error("Admin: cleanup failed", map[string]interface{}{"error": err.Error()})
		respondError(c, err)
		return
	}

	h.log.Info("Admin: cleanup completed", map[string]interface{}{
		"purged":   result.PurgedCount,
		"targets":  result.TargetCount,
		"dry_run":  result.DryRun,
		"duration": time.Since(start).String(),
	})
	c.JSON(http.StatusOK, result)
}

// GetPurgeLogs returns recent purge log entries
func (h *AdminHandler) GetPurgeLogs(c *gin.Context) {
	if h.purger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cleanup not available"})
		return
	}
	logs, err := h.purger.RecentPurges(c.Request.Context(), queryLimit(c, 100, 500))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// ListRuns returns recent monitoring runs, newest first
func (h *AdminHandler) ListRuns(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history not available"})
		return
	}
	runs, err := h.history.List(c.Request.Context(), queryLimit(c, 20, 200))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetMovements returns the latest competitor movements across all subscriptions
func (h *AdminHandler) GetMovements(c *gin.Context) {
	if h.movements == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot store not available"})
		return
	}
	snaps, err := h.movements.RecentMovements(c.Request.Context(), queryLimit(c, 100, 500))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"movements": snaps,
		"count":     len(snaps),
	})
}

// GetProviderStatus returns circuit breaker and rate limit state
func (h *AdminHandler) GetProviderStatus(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider status not available"})
		return
	}
	c.JSON(http.StatusOK, h.provider.Status())
}

// InvalidateProviderCache forces the next fetch of a business to hit the provider
func (h *AdminHandler) InvalidateProviderCache(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider cache not enabled"})
		return
	}
	businessID := c.Param("business")
	if err := h.cache.Invalidate(c.Request.Context(), businessID); err != nil {
		respondError(c, err)
		return
	}
	h.log.Info("Admin: provider cache invalidated", map[string]interface{}{"business_id": businessID})
	c.Status(http.StatusNoContent)
}
