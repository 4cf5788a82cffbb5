package scheduler

import (
	"context"
	"errors"

	"competitor-radar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRunStore persists monitoring runs
type GormRunStore struct {
	db *gorm.DB
}

// NewGormRunStore creates a run store
func NewGormRunStore(db *gorm.DB) *GormRunStore {
	return &GormRunStore{db: db}
}

// Save inserts or updates a run record
func (s *GormRunStore) Save(ctx context.Context, run *models.MonitoringRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Save(run).Error
}

// Latest returns the most recently started run, or nil when none exists
func (s *GormRunStore) Latest(ctx context.Context) (*models.MonitoringRun, error) {
	var run models.MonitoringRun
	err := s.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns recent runs, newest first
func (s *GormRunStore) List(ctx context.Context, limit int) ([]models.MonitoringRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.MonitoringRun
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
