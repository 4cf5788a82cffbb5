package snapshot

import (
	"context"
	"errors"
	"time"

	"competitor-radar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the append-only GORM store for competitor snapshots
type Store struct {
	db *gorm.DB
}

// NewStore creates a new snapshot store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append inserts a new snapshot and assigns its id. Snapshots are never updated.
func (s *Store) Append(ctx context.Context, snap *models.CompetitorSnapshot) error {
	if snap.ID != "" {
		return errors.New("snapshot already persisted")
	}
	snap.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		snap.ID = ""
		return err
	}
	return nil
}

// Latest returns the most recent snapshot of a (subscription, competitor) pair, or nil
func (s *Store) Latest(ctx context.Context, subscriptionID, competitorID string) (*models.CompetitorSnapshot, error) {
	var last models.CompetitorSnapshot
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND competitor_id = ?", subscriptionID, competitorID).
		Order("captured_at DESC").
		First(&last).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &last, nil
}

// LatestAsOf returns the most recent snapshot captured at or before asOf, or nil
func (s *Store) LatestAsOf(ctx context.Context, subscriptionID, competitorID string, asOf time.Time) (*models.CompetitorSnapshot, error) {
	var last models.CompetitorSnapshot
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND competitor_id = ? AND captured_at <= ?", subscriptionID, competitorID, asOf).
		Order("captured_at DESC").
		First(&last).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &last, nil
}

// History returns the snapshot chain of a subscription, newest first. An empty
// competitorID returns every competitor of the subscription.
func (s *Store) History(ctx context.Context, subscriptionID, competitorID string, limit int) ([]models.CompetitorSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	q := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID)
	if competitorID != "" {
		q = q.Where("competitor_id = ?", competitorID)
	}

	var snapshots []models.CompetitorSnapshot
	err := q.Order("captured_at DESC").Limit(limit).Find(&snapshots).Error
	return snapshots, err
}

// RecentMovements returns the latest snapshots flagged as movement across all subscriptions
func (s *Store) RecentMovements(ctx context.Context, limit int) ([]models.CompetitorSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var snapshots []models.CompetitorSnapshot
	err := s.db.WithContext(ctx).
		Where("movement_detected = ?", true).
		Order("captured_at DESC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}

// Count returns the total number of snapshots
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.CompetitorSnapshot{}).Count(&n).Error
	return n, err
}
