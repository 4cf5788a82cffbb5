// Package handlers exposes read projections and operator actions over HTTP.
package handlers

import (
	"net/http"
	"time"

	"competitor-radar/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the route handlers mounted by NewRouter
type Handlers struct {
	Admin         *AdminHandler
	Subscriptions *SubscriptionHandler
	Alerts        *AlertHandler
}

// NewRouter builds the gin engine with CORS, health and metrics endpoints
func NewRouter(allowOrigins []string, h Handlers, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	if len(allowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.GET("/health", healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	if h.Subscriptions != nil {
		subs := api.Group("/subscriptions")
		{
			subs.GET("", h.Subscriptions.ListSubscriptions)
			subs.GET("/:id", h.Subscriptions.GetSubscription)
			subs.GET("/:id/snapshots", h.Subscriptions.GetSnapshots)
			subs.GET("/:id/alerts", h.Subscriptions.GetAlerts)
			subs.GET("/:id/summary", h.Subscriptions.GetSummary)
			subs.POST("/:id/heatmap", h.Subscriptions.GenerateHeatmap)
			subs.GET("/:id/heatmap", h.Subscriptions.GetLatestHeatmap)
			subs.GET("/:id/heatmaps", h.Subscriptions.GetHeatmapHistory)
			subs.GET("/:id/dominance-index", h.Subscriptions.GetDominanceIndex)
		}
	}

	if h.Alerts != nil {
		alerts := api.Group("/alerts")
		{
			alerts.GET("/search", h.Alerts.Search)
			alerts.POST("/:id/read", h.Alerts.MarkRead)
			alerts.POST("/:id/dismiss", h.Alerts.Dismiss)
		}
	}

	if h.Admin != nil {
		admin := api.Group("/admin")
		{
			admin.GET("/stats", h.Admin.GetStats)
			admin.GET("/runs", h.Admin.ListRuns)
			admin.POST("/runs", h.Admin.TriggerRun)
			admin.GET("/runs/latest", h.Admin.GetLatestRun)
			admin.GET("/movements", h.Admin.GetMovements)
			admin.GET("/provider", h.Admin.GetProviderStatus)
			admin.DELETE("/provider/cache/:business", h.Admin.InvalidateProviderCache)
			admin.POST("/cleanup", h.Admin.RunCleanup)
			admin.GET("/cleanup/logs", h.Admin.GetPurgeLogs)
		}
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		log.Debug("HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
