package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists alerts with GORM
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new alert store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InsertIfAbsent checks for a non-dismissed alert on the same (subscription, snapshot) and
// inserts inside one transaction. The unique dedup_key index catches concurrent writers.
func (s *GormStore) InsertIfAbsent(ctx context.Context, a *models.Alert) (*models.Alert, bool, error) {
	if a.DedupKey == nil {
		key := models.AlertDedupKey(a.SubscriptionID, a.SnapshotID)
		a.DedupKey = &key
	}

	var existing models.Alert
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found []models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subscription_id = ? AND snapshot_id = ? AND status <> ?", a.SubscriptionID, a.SnapshotID, models.AlertStatusDismissed).
			Limit(1).
			Find(&found).Error; err != nil {
			return err
		}
		if len(found) > 0 {
			existing = found[0]
			return nil
		}

		a.ID = uuid.NewString()
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		created = true
		return nil
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost the race against a concurrent run
		a.ID = ""
		if err := s.db.WithContext(ctx).
			Where("dedup_key = ?", *a.DedupKey).
			First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}
	if err != nil {
		a.ID = ""
		return nil, false, err
	}
	if created {
		return a, true, nil
	}
	return &existing, false, nil
}

// Get loads an alert by id
func (s *GormStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("alert.Get", "alert "+id)
	} else if err != nil {
		return nil, apperrors.Persistence("alert.Get", err)
	}
	return &a, nil
}

// UpdateStatus writes lifecycle fields when the stored status still equals from
func (s *GormStore) UpdateStatus(ctx context.Context, a *models.Alert, from models.AlertStatus) error {
	result := s.db.WithContext(ctx).
		Model(a).
		Where("status = ?", from).
		Select("status", "dedup_key", "notification", "notify_attempts", "next_notify_at", "sent_at", "read_at", "dismissed_at").
		Updates(a)
	if result.Error != nil {
		return apperrors.Persistence("alert.UpdateStatus", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Validation("alert.UpdateStatus", fmt.Sprintf("alert %s is no longer %s", a.ID, from))
	}
	return nil
}

// ListDeliverable returns pending alerts whose next delivery attempt is due
func (s *GormStore) ListDeliverable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("status = ? AND notify_attempts < ?", models.AlertStatusPending, maxAttempts).
		Where("next_notify_at IS NULL OR next_notify_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// ListBySubscription returns the alert feed of a subscription, newest first
func (s *GormStore) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// CountByStatus returns alert counts keyed by status
func (s *GormStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
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
