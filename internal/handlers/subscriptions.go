package handlers

import (
	"context"
	"net/http"

	"competitor-radar/internal/database"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"

	"github.com/gin-gonic/gin"
)

// SubscriptionReader reads subscriptions.
// Implementations: subscription.Store, memstore.Subscriptions
type SubscriptionReader interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
	List(ctx context.Context, status models.SubscriptionStatus, limit int) ([]models.Subscription, error)
}

// SnapshotHistory reads the snapshot chain newest first.
// Implementations: snapshot.Store, memstore.Snapshots
type SnapshotHistory interface {
	History(ctx context.Context, subscriptionID, competitorID string, limit int) ([]models.CompetitorSnapshot, error)
}

// AlertLister lists a subscription's alerts newest first.
// Implementations: alert.GormStore, memstore.Alerts
type AlertLister interface {
	ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]models.Alert, error)
}

// AlertFeedProjection is the postgres read model of the alert feed.
// Implementations: database.Projections
type AlertFeedProjection interface {
	AlertFeed(ctx context.Context, subscriptionID string, severities []string, limit int) ([]database.AlertFeedItem, error)
}

// SummaryProjection is the postgres read model behind the subscription summary.
// Implementations: database.Projections
type SummaryProjection interface {
	AlertCounts(ctx context.Context, subscriptionID string) (map[string]int64, error)
	LatestHeatmap(ctx context.Context, subscriptionID string) (*database.HeatmapSummary, error)
}

// HeatmapService generates heatmaps and dominance indexes.
// Implementations: heatmap.Engine
type HeatmapService interface {
	Generate(ctx context.Context, subscriptionID string) (*models.VisibilityHeatmap, error)
	DominanceIndexFor(ctx context.Context, subscriptionID string) (*models.DominanceIndex, error)
}

// HeatmapHistory reads stored heatmaps.
// Implementations: heatmap.GormStore, memstore.Heatmaps
type HeatmapHistory interface {
	Latest(ctx context.Context, subscriptionID string) (*models.VisibilityHeatmap, error)
	History(ctx context.Context, subscriptionID string, limit int) ([]models.VisibilityHeatmap, error)
}

// SubscriptionHandler serves per-subscription projections
type SubscriptionHandler struct {
	subscriptions SubscriptionReader
	snapshots     SnapshotHistory
	alerts        AlertLister
	feed          AlertFeedProjection
	summary       SummaryProjection
	heatmaps      HeatmapService
	heatmapStore  HeatmapHistory
	log           logger.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptions SubscriptionReader, snapshots SnapshotHistory, alerts AlertLister, heatmaps HeatmapService, heatmapStore HeatmapHistory, log logger.Logger) *SubscriptionHandler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		snapshots:     snapshots,
		alerts:        alerts,
		heatmaps:      heatmaps,
		heatmapStore:  heatmapStore,
		log:           log,
	}
}

// WithFeedProjection serves the alert feed from the postgres projection
func (h *SubscriptionHandler) WithFeedProjection(feed AlertFeedProjection) *SubscriptionHandler {
	h.feed = feed
	return h
}

// WithSummaryProjection serves the summary counters from the postgres projection
func (h *SubscriptionHandler) WithSummaryProjection(summary SummaryProjection) *SubscriptionHandler {
	h.summary = summary
	return h
}

// ListSubscriptions returns subscriptions, optionally filtered by ?status=
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	status := models.SubscriptionStatus(c.Query("status"))
	subs, err := h.subscriptions.List(c.Request.Context(), status, queryLimit(c, 100, 500))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// GetSubscription returns one subscription
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetSnapshots returns snapshot history, optionally for one ?competitor=
func (h *SubscriptionHandler) GetSnapshots(c *gin.Context) {
	subscriptionID := c.Param("id")
	competitorID := c.Query("competitor")

	snapshots, err := h.snapshots.History(c.Request.Context(), subscriptionID, competitorID, queryLimit(c, 30, 500))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscription_id": subscriptionID,
		"competitor_id":   competitorID,
		"snapshots":       snapshots,
		"count":           len(snapshots),
	})
}

// GetAlerts returns the alert feed. ?severity=critical,warning narrows it when the
// projection is available.
func (h *SubscriptionHandler) GetAlerts(c *gin.Context) {
	subscriptionID := c.Param("id")
	limit := queryLimit(c, 50, 500)

	if h.feed != nil {
		items, err := h.feed.AlertFeed(c.Request.Context(), subscriptionID, splitList(c.Query("severity")), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"subscription_id": subscriptionID,
			"alerts":          items,
			"count":           len(items),
		})
		return
	}

	alerts, err := h.alerts.ListBySubscription(c.Request.Context(), subscriptionID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscription_id": subscriptionID,
		"alerts":          alerts,
		"count":           len(alerts),
	})
}

// GenerateHeatmap computes and stores a heatmap now
func (h *SubscriptionHandler) GenerateHeatmap(c *gin.Context) {
	hm, err := h.heatmaps.Generate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.log.Info("API: heatmap generated on demand", map[string]interface{}{
		"subscription_id": hm.SubscriptionID,
		"heatmap_id":      hm.ID,
	})
	c.JSON(http.StatusCreated, hm)
}

// GetLatestHeatmap returns the newest stored heatmap
func (h *SubscriptionHandler) GetLatestHeatmap(c *gin.Context) {
	hm, err := h.heatmapStore.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if hm == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no heatmap generated yet"})
		return
	}
	c.JSON(http.StatusOK, hm)
}

// GetHeatmapHistory returns stored heatmaps newest first
func (h *SubscriptionHandler) GetHeatmapHistory(c *gin.Context) {
	subscriptionID := c.Param("id")
	heatmaps, err := h.heatmapStore.History(c.Request.Context(), subscriptionID, queryLimit(c, 12, 100))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscription_id": subscriptionID,
		"heatmaps":        heatmaps,
		"count":           len(heatmaps),
	})
}

// GetDominanceIndex returns the competitor threat ranking
func (h *SubscriptionHandler) GetDominanceIndex(c *gin.Context) {
	idx, err := h.heatmaps.DominanceIndexFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, idx)
}

// GetSummary returns monitoring state, alert counts by status and the latest heatmap headline
func (h *SubscriptionHandler) GetSummary(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.subscriptions.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		counts  map[string]int64
		heatmap *database.HeatmapSummary
	)
	if h.summary != nil {
		if counts, err = h.summary.AlertCounts(ctx, sub.ID); err != nil {
			respondError(c, err)
			return
		}
		if heatmap, err = h.summary.LatestHeatmap(ctx, sub.ID); err != nil {
			respondError(c, err)
			return
		}
	} else {
		alerts, err := h.alerts.ListBySubscription(ctx, sub.ID, 0)
		if err != nil {
			respondError(c, err)
			return
		}
		counts = make(map[string]int64)
		for _, a := range alerts {
			counts[string(a.Status)]++
		}

		hm, err := h.heatmapStore.Latest(ctx, sub.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if hm != nil {
			heatmap = &database.HeatmapSummary{
				ID:                hm.ID,
				DominanceScore:    hm.DominanceScore,
				RadiusMeters:      hm.RadiusMeters,
				CompetitorDensity: hm.CompetitorDensity,
				AreaGrowthPercent: hm.AreaGrowthPercent,
				DominanceChange:   hm.DominanceChange,
				CreatedAt:         hm.CreatedAt,
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription_id":    sub.ID,
		"status":             sub.Status,
		"competitors":        len(sub.CompetitorIDs),
		"last_monitoring_at": sub.LastMonitoringAt,
		"next_monitoring_at": sub.NextMonitoringAt,
		"alerts_sent":        sub.AlertsSent,
		"alerts":             counts,
		"heatmap":            heatmap,
	})
}
