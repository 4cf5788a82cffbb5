package handlers

import (
	"context"
	"net/http"
	"strings"

	"competitor-radar/internal/models"
	"competitor-radar/internal/search"

	"github.com/gin-gonic/gin"
)

// AlertTransitions moves alerts through their lifecycle.
// Implementations: alert.Generator
type AlertTransitions interface {
	MarkRead(ctx context.Context, id string) (*models.Alert, error)
	Dismiss(ctx context.Context, id string) (*models.Alert, error)
}

// AlertSearcher runs full-text alert searches.
// Implementations: search.AlertIndex
type AlertSearcher interface {
	Search(ctx context.Context, query string, filter search.AlertFilter) (*search.SearchResult, error)
}

// AlertHandler handles alert actions and search
type AlertHandler struct {
	transitions AlertTransitions
	searcher    AlertSearcher
}

// NewAlertHandler creates a new alert handler. searcher may be nil when Meilisearch is not configured.
func NewAlertHandler(transitions AlertTransitions, searcher AlertSearcher) *AlertHandler {
	return &AlertHandler{transitions: transitions, searcher: searcher}
}

// MarkRead marks an alert as read
func (h *AlertHandler) MarkRead(c *gin.Context) {
	a, err := h.transitions.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Dismiss closes an alert
func (h *AlertHandler) Dismiss(c *gin.Context) {
	a, err := h.transitions.Dismiss(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Search runs ?q= against the alert index, narrowed by subscription, severity and status
func (h *AlertHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search not configured"})
		return
	}

	filter := search.AlertFilter{
		SubscriptionID: c.Query("subscription_id"),
		Severities:     splitList(c.Query("severity")),
		Statuses:       splitList(c.Query("status")),
		Limit:          int64(queryLimit(c, 20, 100)),
	}

	result, err := h.searcher.Search(c.Request.Context(), c.Query("q"), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
