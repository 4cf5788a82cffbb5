package heatmap

import (
	"context"
	"fmt"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/geo"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/metrics"
	"competitor-radar/internal/models"
	"competitor-radar/internal/tracker"
)

// SnapshotReader reads the snapshot chain at a point in time.
// Implementations: snapshot.Store, memstore.Snapshots
type SnapshotReader interface {
	// LatestAsOf returns nil, nil when no snapshot was captured at or before asOf
	LatestAsOf(ctx context.Context, subscriptionID, competitorID string, asOf time.Time) (*models.CompetitorSnapshot, error)
}

// Store persists heatmaps.
// Implementations: heatmap.GormStore, memstore.Heatmaps
type Store interface {
	Append(ctx context.Context, h *models.VisibilityHeatmap) error
	// Latest returns nil, nil when the subscription has no heatmap yet
	Latest(ctx context.Context, subscriptionID string) (*models.VisibilityHeatmap, error)
}

// SubscriptionStore loads subscriptions and records heatmap generation.
// Implementations: subscription.Store, memstore.Subscriptions
type SubscriptionStore interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
	MarkHeatmapGenerated(ctx context.Context, id string, at time.Time) error
}

// Engine generates visibility heatmaps from the latest competitor snapshots
type Engine struct {
	params        Params
	snapshots     SnapshotReader
	heatmaps      Store
	subscriptions SubscriptionStore
	provider      tracker.BusinessDataProvider
	now           func() time.Time
	log           logger.Logger
}

// NewEngine creates a heatmap engine. provider may be nil, in which case the business
// score is computed from the metrics stored on the subscription.
func NewEngine(params Params, snapshots SnapshotReader, heatmaps Store, subscriptions SubscriptionStore, provider tracker.BusinessDataProvider, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if params.FetchTimeout <= 0 {
		params.FetchTimeout = 15 * time.Second
	}
	return &Engine{
		params:        params,
		snapshots:     snapshots,
		heatmaps:      heatmaps,
		subscriptions: subscriptions,
		provider:      provider,
		now:           time.Now,
		log:           log,
	}
}

// WithClock overrides the time source
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Params returns the engine constants
func (e *Engine) Params() Params {
	return e.params
}

// IsDue reports whether a subscription needs a fresh heatmap
func (e *Engine) IsDue(sub *models.Subscription, now time.Time) bool {
	if !sub.HasLocation() {
		return false
	}
	return sub.LastHeatmapAt == nil || !sub.LastHeatmapAt.Add(e.params.RefreshInterval).After(now)
}

// Generate loads the subscription and generates its heatmap
func (e *Engine) Generate(ctx context.Context, subscriptionID string) (*models.VisibilityHeatmap, error) {
	sub, err := e.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.Persistence("heatmap.Generate", err)
	}
	return e.GenerateForSubscription(ctx, sub)
}

// GenerateForSubscription computes and stores a heatmap. Every competitor is read at the
// same instant so the heatmap never mixes snapshots from different runs.
func (e *Engine) GenerateForSubscription(ctx context.Context, sub *models.Subscription) (*models.VisibilityHeatmap, error) {
	if !sub.HasLocation() {
		return nil, apperrors.Validation("heatmap.Generate", fmt.Sprintf("subscription %s has no business coordinates", sub.ID))
	}
	center := models.Coordinates{Lat: *sub.Latitude, Lng: *sub.Longitude}
	asOf := e.now().UTC()

	business := e.businessMetrics(ctx, sub, asOf)
	businessScore := tracker.VisibilityScore(business, asOf).Total

	competitors, err := e.loadCompetitors(ctx, sub, asOf)
	if err != nil {
		return nil, err
	}

	result := e.params.Compute(center, businessScore, competitors)
	index := DominanceIndex(Business{
		Location:    center,
		Rating:      business.Rating,
		ReviewCount: business.ReviewCount,
	}, competitors, geo.UnitForLocale(sub.Locale))

	prev, err := e.heatmaps.Latest(ctx, sub.ID)
	if err != nil {
		return nil, apperrors.Persistence("heatmap.Generate", fmt.Errorf("load previous heatmap: %w", err))
	}

	h := &models.VisibilityHeatmap{
		SubscriptionID:    sub.ID,
		CenterLat:         center.Lat,
		CenterLng:         center.Lng,
		BusinessScore:     businessScore,
		RadiusMeters:      result.Radius,
		Grid:              result.Grid,
		Competitors:       result.InRange,
		CompetitorDensity: result.Density,
		DominanceScore:    result.Dominance,
		DominanceIndex:    index,
		SnapshotsAsOf:     asOf,
		CreatedAt:         asOf,
	}
	if prev != nil {
		prevID := prev.ID
		h.PreviousHeatmapID = &prevID
		h.AreaGrowthPercent, h.DominanceChange = Growth(prev, result.Radius, result.Dominance)
	}

	if err := e.heatmaps.Append(ctx, h); err != nil {
		return nil, apperrors.Persistence("heatmap.Generate", fmt.Errorf("append heatmap: %w", err))
	}
	if err := e.subscriptions.MarkHeatmapGenerated(ctx, sub.ID, asOf); err != nil {
		return nil, apperrors.Persistence("heatmap.Generate", fmt.Errorf("mark subscription: %w", err))
	}

	metrics.HeatmapsGenerated.Inc()
	metrics.DominanceScore.Observe(result.Dominance)
	e.log.Info("HeatmapEngine: heatmap generated", map[string]interface{}{
		"subscription_id": sub.ID,
		"heatmap_id":      h.ID,
		"radius_m":        result.Radius,
		"in_range":        len(result.InRange),
		"dominance":       result.Dominance,
	})
	return h, nil
}

// businessMetrics fetches the client business, falling back to the stored subscription metrics
func (e *Engine) businessMetrics(ctx context.Context, sub *models.Subscription, asOf time.Time) *models.CompetitorData {
	stored := &models.CompetitorData{
		ID:          sub.BusinessID,
		Name:        sub.BusinessName,
		Rating:      sub.Rating,
		ReviewCount: sub.ReviewCount,
		PhotoCount:  sub.PhotoCount,
	}
	if e.provider == nil || sub.BusinessID == "" {
		return stored
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.params.FetchTimeout)
	defer cancel()

	data, err := e.provider.Fetch(fetchCtx, sub.BusinessID)
	if err != nil || data == nil {
		fields := map[string]interface{}{
			"subscription_id": sub.ID,
			"business_id":     sub.BusinessID,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		e.log.Warn("HeatmapEngine: business fetch failed, using stored metrics", fields)
		return stored
	}
	return data
}

func (e *Engine) loadCompetitors(ctx context.Context, sub *models.Subscription, asOf time.Time) ([]Competitor, error) {
	out := make([]Competitor, 0, len(sub.CompetitorIDs))
	for _, id := range sub.CompetitorIDs {
		snap, err := e.snapshots.LatestAsOf(ctx, sub.ID, id, asOf)
		if err != nil {
			return nil, apperrors.Persistence("heatmap.Generate", fmt.Errorf("load snapshot of %s: %w", id, err))
		}
		if snap == nil || snap.Metrics.Coordinates == nil {
			continue
		}
		out = append(out, Competitor{
			ID:          id,
			Name:        snap.CompetitorName,
			Location:    *snap.Metrics.Coordinates,
			Score:       snap.VisibilityScore,
			Rating:      snap.Rating,
			ReviewCount: snap.ReviewCount,
			SnapshotID:  snap.ID,
		})
	}
	return out, nil
}

// DominanceIndexFor computes the gravitational index from the latest snapshots without storing a heatmap
func (e *Engine) DominanceIndexFor(ctx context.Context, subscriptionID string) (*models.DominanceIndex, error) {
	sub, err := e.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.HasLocation() {
		return nil, apperrors.Validation("heatmap.DominanceIndex", fmt.Sprintf("subscription %s has no business coordinates", sub.ID))
	}
	asOf := e.now().UTC()
	business := e.businessMetrics(ctx, sub, asOf)
	competitors, err := e.loadCompetitors(ctx, sub, asOf)
	if err != nil {
		return nil, err
	}
	index := DominanceIndex(Business{
		Location:    models.Coordinates{Lat: *sub.Latitude, Lng: *sub.Longitude},
		Rating:      business.Rating,
		ReviewCount: business.ReviewCount,
	}, competitors, geo.UnitForLocale(sub.Locale))
	return &index, nil
}
