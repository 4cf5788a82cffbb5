package heatmap

import (
	"context"
	"errors"

	"competitor-radar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore persists heatmaps with GORM. Heatmaps are immutable once written.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new heatmap store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append inserts a heatmap and assigns its id
func (s *GormStore) Append(ctx context.Context, h *models.VisibilityHeatmap) error {
	if h.ID != "" {
		return errors.New("heatmap already persisted")
	}
	h.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		h.ID = ""
		return err
	}
	return nil
}

// Latest returns the newest heatmap of a subscription, or nil
func (s *GormStore) Latest(ctx context.Context, subscriptionID string) (*models.VisibilityHeatmap, error) {
	var h models.VisibilityHeatmap
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &h, nil
}

// History returns the heatmaps of a subscription, newest first
func (s *GormStore) History(ctx context.Context, subscriptionID string, limit int) ([]models.VisibilityHeatmap, error) {
	if limit <= 0 {
		limit = 12
	}
	var heatmaps []models.VisibilityHeatmap
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&heatmaps).Error
	return heatmaps, err
}
