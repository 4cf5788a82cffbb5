package alert

import (
	"context"
	"fmt"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/metrics"
	"competitor-radar/internal/models"
	"competitor-radar/internal/tracker"
)

// Store persists alerts.
// Implementations: alert.GormStore, memstore.Alerts
type Store interface {
	// InsertIfAbsent inserts a when no non-dismissed alert exists for its (subscription, snapshot).
	// Otherwise the existing alert is returned with created=false.
	InsertIfAbsent(ctx context.Context, a *models.Alert) (stored *models.Alert, created bool, err error)
	Get(ctx context.Context, id string) (*models.Alert, error)
	// UpdateStatus persists lifecycle fields if the stored status still equals from
	UpdateStatus(ctx context.Context, a *models.Alert, from models.AlertStatus) error
	ListDeliverable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Alert, error)
	ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]models.Alert, error)
}

// Indexer mirrors alerts into a search index.
// Implementations: search.AlertIndex
type Indexer interface {
	IndexAlerts(ctx context.Context, alerts []models.Alert) error
}

// Generator turns scan results into alerts and drives their lifecycle
type Generator struct {
	store      Store
	rules      SeverityRules
	thresholds tracker.Thresholds
	indexer    Indexer
	now        func() time.Time
	log        logger.Logger
}

// NewGenerator creates a generator
func NewGenerator(store Store, rules SeverityRules, thresholds tracker.Thresholds, log logger.Logger) *Generator {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Generator{
		store:      store,
		rules:      rules,
		thresholds: thresholds,
		now:        time.Now,
		log:        log,
	}
}

// WithIndexer mirrors created and updated alerts into a search index
func (g *Generator) WithIndexer(idx Indexer) *Generator {
	g.indexer = idx
	return g
}

// WithClock overrides the time source
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Build creates the pending alert for a snapshot that moved
func (g *Generator) Build(snap *models.CompetitorSnapshot) *models.Alert {
	deltas := *snap.Deltas
	fired := firedMetrics(g.thresholds, snap.Deltas)
	severity, alertType := g.rules.Classify(deltas)
	key := models.AlertDedupKey(snap.SubscriptionID, snap.ID)

	return &models.Alert{
		SubscriptionID: snap.SubscriptionID,
		SnapshotID:     snap.ID,
		CompetitorID:   snap.CompetitorID,
		CompetitorName: snap.CompetitorName,
		DedupKey:       &key,
		Severity:       severity,
		Type:           alertType,
		Title:          BuildTitle(severity, snap.CompetitorName, deltas),
		Message:        BuildMessage(snap.CompetitorName, snap.VisibilityScore, deltas, fired),
		Trigger: models.AlertTrigger{
			Deltas:          deltas,
			Fired:           fired,
			VisibilityScore: snap.VisibilityScore,
		},
		Recommendations: Recommendations(fired, alertType),
		Status:          models.AlertStatusPending,
		CreatedAt:       g.now().UTC(),
	}
}

// GenerateFromScan creates one pending alert per snapshot flagged as movement. Re-running it
// against the same results creates nothing new; only newly created alerts are returned.
func (g *Generator) GenerateFromScan(ctx context.Context, subscriptionID string, results []tracker.ScanResult) ([]models.Alert, error) {
	created := make([]models.Alert, 0)

	for _, r := range results {
		snap := r.Snapshot
		if r.Failed() || snap == nil || !snap.MovementDetected || snap.Deltas == nil {
			continue
		}
		if snap.ID == "" || snap.SubscriptionID != subscriptionID {
			return created, apperrors.Validation("alert.GenerateFromScan",
				fmt.Sprintf("snapshot for competitor %s does not belong to subscription %s", snap.CompetitorID, subscriptionID))
		}

		stored, isNew, err := g.store.InsertIfAbsent(ctx, g.Build(snap))
		if err != nil {
			return created, apperrors.Persistence("alert.GenerateFromScan", err)
		}
		if !isNew {
			g.log.Debug("AlertGenerator: alert already exists for snapshot", map[string]interface{}{
				"subscription_id": subscriptionID,
				"snapshot_id":     snap.ID,
				"alert_id":        stored.ID,
			})
			continue
		}

		metrics.AlertsGenerated.WithLabelValues(string(stored.Severity)).Inc()
		g.log.Info("AlertGenerator: alert created", map[string]interface{}{
			"subscription_id": subscriptionID,
			"alert_id":        stored.ID,
			"severity":        stored.Severity,
			"competitor_id":   stored.CompetitorID,
		})
		created = append(created, *stored)
	}

	g.index(ctx, created)
	return created, nil
}

func (g *Generator) index(ctx context.Context, alerts []models.Alert) {
	if g.indexer == nil || len(alerts) == 0 {
		return
	}
	if err := g.indexer.IndexAlerts(ctx, alerts); err != nil {
		g.log.Warn("AlertGenerator: search indexing failed", map[string]interface{}{
			"count": len(alerts),
			"error": err.Error(),
		})
	}
}
