// Package memstore holds in-memory stores used by tests and the simulate command.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/models"

	"github.com/google/uuid"
)

// Subscriptions is an in-memory subscription store
type Subscriptions struct {
	mu   sync.RWMutex
	subs map[string]*models.Subscription
}

// NewSubscriptions creates a store seeded with subs
func NewSubscriptions(subs ...models.Subscription) *Subscriptions {
	s := &Subscriptions{subs: make(map[string]*models.Subscription)}
	for i := range subs {
		_ = s.Create(context.Background(), &subs[i])
	}
	return s
}

func (s *Subscriptions) Create(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.FrequencyDays <= 0 {
		sub.FrequencyDays = models.DefaultFrequencyDays
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *Subscriptions) Get(_ context.Context, id string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, apperrors.NotFound("subscription.Get", "subscription "+id)
	}
	cp := *sub
	return &cp, nil
}

func (s *Subscriptions) Due(_ context.Context, now time.Time) ([]models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Subscription, 0)
	for _, sub := range s.subs {
		if sub.IsDue(now) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Subscriptions) MarkMonitored(_ context.Context, id string, at, next time.Time) error {
	return s.update(id, func(sub *models.Subscription) {
		sub.LastMonitoringAt = &at
		sub.NextMonitoringAt = &next
	})
}

func (s *Subscriptions) MarkHeatmapGenerated(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(sub *models.Subscription) {
		sub.LastHeatmapAt = &at
		sub.HeatmapsGenerated++
	})
}

func (s *Subscriptions) IncrementAlertsSent(_ context.Context, id string) error {
	return s.update(id, func(sub *models.Subscription) {
		sub.AlertsSent++
	})
}

func (s *Subscriptions) List(_ context.Context, status models.SubscriptionStatus, limit int) ([]models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if status == "" || sub.Status == status {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Subscriptions) CountByStatus(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64)
	for _, sub := range s.subs {
		out[string(sub.Status)]++
	}
	return out, nil
}

func (s *Subscriptions) update(id string, fn func(*models.Subscription)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return apperrors.NotFound("subscription.update", "subscription "+id)
	}
	fn(sub)
	return nil
}

// Snapshots is an in-memory append-only snapshot store
type Snapshots struct {
	mu    sync.RWMutex
	items []models.CompetitorSnapshot

	// FailAppend makes Append fail, for persistence error tests
	FailAppend error
}

func NewSnapshots() *Snapshots {
	return &Snapshots{}
}

func (s *Snapshots) Append(_ context.Context, snap *models.CompetitorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	if snap.ID != "" {
		return errors.New("snapshot already persisted")
	}
	snap.ID = uuid.NewString()
	s.items = append(s.items, *snap)
	return nil
}

func (s *Snapshots) Latest(ctx context.Context, subscriptionID, competitorID string) (*models.CompetitorSnapshot, error) {
	return s.latest(subscriptionID, competitorID, nil)
}

func (s *Snapshots) LatestAsOf(_ context.Context, subscriptionID, competitorID string, asOf time.Time) (*models.CompetitorSnapshot, error) {
	return s.latest(subscriptionID, competitorID, &asOf)
}

func (s *Snapshots) latest(subscriptionID, competitorID string, asOf *time.Time) (*models.CompetitorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.CompetitorSnapshot
	for i := range s.items {
		it := &s.items[i]
		if it.SubscriptionID != subscriptionID || it.CompetitorID != competitorID {
			continue
		}
		if asOf != nil && it.CapturedAt.After(*asOf) {
			continue
		}
		if best == nil || it.CapturedAt.After(best.CapturedAt) {
			best = it
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *Snapshots) History(_ context.Context, subscriptionID, competitorID string, limit int) ([]models.CompetitorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CompetitorSnapshot, 0)
	for _, it := range s.items {
		if it.SubscriptionID == subscriptionID && (competitorID == "" || it.CompetitorID == competitorID) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored snapshot in insertion order
func (s *Snapshots) All() []models.CompetitorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CompetitorSnapshot(nil), s.items...)
}

// Alerts is an in-memory alert store
type Alerts struct {
	mu    sync.RWMutex
	items map[string]*models.Alert
	order []string
}

func NewAlerts() *Alerts {
	return &Alerts{items: make(map[string]*models.Alert)}
}

func (s *Alerts) InsertIfAbsent(_ context.Context, a *models.Alert) (*models.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		it := s.items[id]
		if it.SubscriptionID == a.SubscriptionID && it.SnapshotID == a.SnapshotID && it.Status != models.AlertStatusDismissed {
			cp := *it
			return &cp, false, nil
		}
	}
	a.ID = uuid.NewString()
	cp := *a
	s.items[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return a, true, nil
}

func (s *Alerts) Get(_ context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFound("alert.Get", "alert "+id)
	}
	cp := *a
	return &cp, nil
}

func (s *Alerts) UpdateStatus(_ context.Context, a *models.Alert, from models.AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[a.ID]
	if !ok || stored.Status != from {
		return apperrors.Validation("alert.UpdateStatus", "alert "+a.ID+" is no longer "+string(from))
	}
	cp := *a
	s.items[a.ID] = &cp
	return nil
}

func (s *Alerts) ListDeliverable(_ context.Context, now time.Time, maxAttempts, limit int) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0)
	for _, id := range s.order {
		a := s.items[id]
		if a.Status != models.AlertStatusPending || a.NotifyAttempts >= maxAttempts {
			continue
		}
		if a.NextNotifyAt != nil && a.NextNotifyAt.After(now) {
			continue
		}
		out = append(out, *a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Alerts) ListBySubscription(_ context.Context, subscriptionID string, limit int) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.items[s.order[i]]
		if a.SubscriptionID == subscriptionID {
			out = append(out, *a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Alerts) CountByStatus(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64)
	for _, a := range s.items {
		out[string(a.Status)]++
	}
	return out, nil
}

// All returns every alert in insertion order
func (s *Alerts) All() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// Heatmaps is an in-memory heatmap store
type Heatmaps struct {
	mu    sync.RWMutex
	items []models.VisibilityHeatmap
}

func NewHeatmaps() *Heatmaps {
	return &Heatmaps{}
}

func (s *Heatmaps) Append(_ context.Context, h *models.VisibilityHeatmap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID != "" {
		return errors.New("heatmap already persisted")
	}
	h.ID = uuid.NewString()
	s.items = append(s.items, *h)
	return nil
}

func (s *Heatmaps) Latest(_ context.Context, subscriptionID string) (*models.VisibilityHeatmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].SubscriptionID == subscriptionID {
			cp := s.items[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Heatmaps) History(_ context.Context, subscriptionID string, limit int) ([]models.VisibilityHeatmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.VisibilityHeatmap, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].SubscriptionID == subscriptionID {
			out = append(out, s.items[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Runs is an in-memory monitoring run log
type Runs struct {
	mu    sync.RWMutex
	items []models.MonitoringRun
}

func NewRuns() *Runs {
	return &Runs{}
}

func (s *Runs) Save(_ context.Context, run *models.MonitoringRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	for i := range s.items {
		if s.items[i].ID == run.ID {
			s.items[i] = *run
			return nil
		}
	}
	s.items = append(s.items, *run)
	return nil
}

func (s *Runs) Latest(_ context.Context) (*models.MonitoringRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return nil, nil
	}
	cp := s.items[len(s.items)-1]
	return &cp, nil
}
