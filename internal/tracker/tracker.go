package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/metrics"
	"competitor-radar/internal/models"
)

// BusinessDataProvider fetches the current public metrics of a business.
// Implementations: provider.HTTPProvider, provider.PageProvider, provider.Static
type BusinessDataProvider interface {
	Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error)
}

// SnapshotStore persists the append-only snapshot chain.
// Implementations: snapshot.Store, memstore.Snapshots
type SnapshotStore interface {
	Append(ctx context.Context, snap *models.CompetitorSnapshot) error
	// Latest returns nil, nil when the pair has no snapshot yet
	Latest(ctx context.Context, subscriptionID, competitorID string) (*models.CompetitorSnapshot, error)
}

// SubscriptionReader loads a subscription by id.
// Implementations: subscription.Store, memstore.Subscriptions
type SubscriptionReader interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
}

// Options tune a Tracker
type Options struct {
	Thresholds   Thresholds
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Tracker scans tracked competitors and records their snapshots
type Tracker struct {
	provider      BusinessDataProvider
	snapshots     SnapshotStore
	subscriptions SubscriptionReader
	thresholds    Thresholds
	fetchTimeout  time.Duration
	now           func() time.Time
	log           logger.Logger
}

// NewTracker creates a tracker
func NewTracker(provider BusinessDataProvider, snapshots SnapshotStore, subscriptions SubscriptionReader, opts Options, log logger.Logger) *Tracker {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Tracker{
		provider:      provider,
		snapshots:     snapshots,
		subscriptions: subscriptions,
		thresholds:    opts.Thresholds,
		fetchTimeout:  opts.FetchTimeout,
		now:           opts.Now,
		log:           log,
	}
}

// Thresholds returns the movement thresholds in use
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// ScanResult is the outcome of scanning one competitor
type ScanResult struct {
	CompetitorID string                     `json:"competitor_id"`
	Snapshot     *models.CompetitorSnapshot `json:"snapshot,omitempty"`
	Err          error                      `json:"-"`
	Error        string                     `json:"error,omitempty"`
}

// Failed reports whether the competitor could not be scanned
func (r ScanResult) Failed() bool {
	return r.Err != nil
}

// BatchResult holds the per-competitor results of one subscription scan
type BatchResult struct {
	SubscriptionID string       `json:"subscription_id"`
	Results        []ScanResult `json:"results"`
}

// Snapshots returns the snapshots created by the batch
func (b *BatchResult) Snapshots() []*models.CompetitorSnapshot {
	out := make([]*models.CompetitorSnapshot, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Snapshot != nil {
			out = append(out, r.Snapshot)
		}
	}
	return out
}

// Failures maps competitor id to error message
func (b *BatchResult) Failures() map[string]string {
	out := make(map[string]string)
	for _, r := range b.Results {
		if r.Err != nil {
			out[r.CompetitorID] = r.Err.Error()
		}
	}
	return out
}

// Scan fetches one competitor, diffs it against its latest snapshot and appends a new one.
// Provider failures are returned as DataSourceError, store failures as PersistenceError.
func (t *Tracker) Scan(ctx context.Context, subscriptionID, competitorID string) (*models.CompetitorSnapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	data, err := t.provider.Fetch(fetchCtx, competitorID)
	cancel()
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.ProviderFetchFailures.WithLabelValues(reason).Inc()
		return nil, apperrors.DataSource("tracker.Scan", fmt.Errorf("competitor %s: %w", competitorID, err))
	}
	if data == nil {
		metrics.ProviderFetchFailures.WithLabelValues("empty").Inc()
		return nil, apperrors.DataSource("tracker.Scan", fmt.Errorf("competitor %s: empty response", competitorID))
	}

	now := t.now().UTC()
	breakdown := VisibilityScore(data, now)

	prev, err := t.snapshots.Latest(ctx, subscriptionID, competitorID)
	if err != nil {
		return nil, apperrors.Persistence("tracker.Scan", fmt.Errorf("load previous snapshot: %w", err))
	}

	name := data.Name
	if name == "" {
		name = competitorID
	}
	snap := &models.CompetitorSnapshot{
		SubscriptionID:  subscriptionID,
		CompetitorID:    competitorID,
		CompetitorName:  name,
		Rating:          data.Rating,
		ReviewCount:     data.ReviewCount,
		PhotoCount:      data.PhotoCount,
		HasWebsite:      data.HasWebsite || data.Website != "",
		VisibilityScore: breakdown.Total,
		ScoreBreakdown:  breakdown,
		Metrics:         *data,
		RawPayload:      data.Raw,
		CapturedAt:      now,
	}

	if prev != nil {
		// chains stay strictly ordered even if the clock did not advance
		if !snap.CapturedAt.After(prev.CapturedAt) {
			snap.CapturedAt = prev.CapturedAt.Add(time.Millisecond)
		}
		prevID := prev.ID
		snap.PreviousSnapshotID = &prevID
		snap.Deltas = ComputeDeltas(prev, snap)
		snap.MovementDetected = t.thresholds.IsMovement(snap.Deltas)
	}

	if err := t.snapshots.Append(ctx, snap); err != nil {
		return nil, apperrors.Persistence("tracker.Scan", fmt.Errorf("append snapshot: %w", err))
	}

	metrics.SnapshotsCreated.Inc()
	if snap.MovementDetected {
		metrics.MovementsDetected.Inc()
		t.log.Info("Tracker: movement detected", map[string]interface{}{
			"subscription_id": subscriptionID,
			"competitor_id":   competitorID,
			"score_delta":     snap.Deltas.Score,
			"review_delta":    snap.Deltas.Reviews,
		})
	}
	return snap, nil
}

// ScanAll scans every competitor tracked by the subscription
func (t *Tracker) ScanAll(ctx context.Context, subscriptionID string) (*BatchResult, error) {
	sub, err := t.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.Persistence("tracker.ScanAll", err)
	}
	return t.ScanSubscription(ctx, sub)
}

// ScanSubscription scans the competitors of an already loaded subscription.
// A fetch failure is recorded on its item and the batch continues; a persistence
// failure stops the batch and is returned with the results gathered so far.
func (t *Tracker) ScanSubscription(ctx context.Context, sub *models.Subscription) (*BatchResult, error) {
	if err := ValidateCompetitors(sub.CompetitorIDs); err != nil {
		return nil, err
	}

	batch := &BatchResult{
		SubscriptionID: sub.ID,
		Results:        make([]ScanResult, 0, len(sub.CompetitorIDs)),
	}

	for _, competitorID := range sub.CompetitorIDs {
		snap, err := t.Scan(ctx, sub.ID, competitorID)
		if err != nil {
			if apperrors.IsPersistence(err) {
				return batch, err
			}
			t.log.Warn("Tracker: competitor scan failed", map[string]interface{}{
				"subscription_id": sub.ID,
				"competitor_id":   competitorID,
				"error":           err.Error(),
			})
			batch.Results = append(batch.Results, ScanResult{CompetitorID: competitorID, Err: err, Error: err.Error()})
			continue
		}
		batch.Results = append(batch.Results, ScanResult{CompetitorID: competitorID, Snapshot: snap})
	}

	t.log.Debug("Tracker: subscription scanned", map[string]interface{}{
		"subscription_id": sub.ID,
		"competitors":     len(sub.CompetitorIDs),
		"failures":        len(batch.Failures()),
	})
	return batch, nil
}

// ValidateCompetitors enforces 1 to 5 distinct, non-empty competitor ids
func ValidateCompetitors(ids []string) error {
	if len(ids) < models.MinTrackedCompetitors || len(ids) > models.MaxTrackedCompetitors {
		return apperrors.Validation("tracker.ValidateCompetitors",
			fmt.Sprintf("subscription must track between %d and %d competitors, got %d",
				models.MinTrackedCompetitors, models.MaxTrackedCompetitors, len(ids)))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return apperrors.Validation("tracker.ValidateCompetitors", "empty competitor id")
		}
		if seen[id] {
			return apperrors.Validation("tracker.ValidateCompetitors", fmt.Sprintf("duplicate competitor id %q", id))
		}
		seen[id] = true
	}
	return nil
}
