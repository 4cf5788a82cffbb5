// Package subscription persists monitoring subscriptions.
package subscription

import (
	"context"
	"errors"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the GORM subscription store
type Store struct {
	db *gorm.DB
}

// NewStore creates a new subscription store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a subscription, assigning an id and the default frequency
func (s *Store) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.FrequencyDays <= 0 {
		sub.FrequencyDays = models.DefaultFrequencyDays
	}
	if sub.Status == "" {
		sub.Status = models.SubscriptionStatusTrial
	}
	return s.db.WithContext(ctx).Create(sub).Error
}

// Get loads a subscription by id
func (s *Store) Get(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("subscription.Get", "subscription "+id)
	} else if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Due returns monitored subscriptions whose next monitoring time has passed or was never set
func (s *Store) Due(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ?", models.MonitoredStatuses).
		Where("next_monitoring_at IS NULL OR next_monitoring_at <= ?", now).
		Order("next_monitoring_at ASC").
		Find(&subs).Error
	return subs, err
}

// MarkMonitored records a completed cycle and schedules the next one
func (s *Store) MarkMonitored(ctx context.Context, id string, at, next time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_monitoring_at": at,
			"next_monitoring_at": next,
		}).Error
}

// MarkHeatmapGenerated stamps the heatmap time and bumps the counter
func (s *Store) MarkHeatmapGenerated(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_heatmap_at":    at,
			"heatmaps_generated": gorm.Expr("heatmaps_generated + ?", 1),
		}).Error
}

// IncrementAlertsSent bumps the delivered alert counter
func (s *Store) IncrementAlertsSent(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		UpdateColumn("alerts_sent", gorm.Expr("alerts_sent + ?", 1)).Error
}

// List returns subscriptions, optionally filtered by status
func (s *Store) List(ctx context.Context, status models.SubscriptionStatus, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var subs []models.Subscription
	err := q.Order("created_at DESC").Limit(limit).Find(&subs).Error
	return subs, err
}

// CountByStatus returns subscription counts keyed by status
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
