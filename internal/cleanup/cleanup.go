// Package cleanup purges the monitoring history of subscriptions that left the service.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"competitor-radar/internal/config"
	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"

	"gorm.io/gorm"
)

// purgeableStatuses are the subscription states whose history may be deleted
var purgeableStatuses = []models.SubscriptionStatus{
	models.SubscriptionStatusCancelled,
	models.SubscriptionStatusExpired,
}

// SearchPurger removes a subscription's documents from the search index.
// Implementations: search.AlertIndex
type SearchPurger interface {
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// Options holds configuration for a purge
type Options struct {
	RetentionDays    int  // days a subscription must be cancelled or expired before its history is deleted
	MaxDeletionCount int  // safety limit on subscriptions purged in one run
	DryRun           bool // only report what would be deleted
}

// OptionsFromConfig converts the YAML cleanup section
func OptionsFromConfig(c config.CleanupConfig) Options {
	return Options{
		RetentionDays:    c.RetentionDays,
		MaxDeletionCount: c.MaxDeletionCount,
		DryRun:           c.DryRun,
	}
}

// Result holds the result of a purge
type Result struct {
	TargetCount      int       `json:"target_count"`
	PurgedCount      int       `json:"purged_count"`
	ErrorCount       int       `json:"error_count"`
	SnapshotsDeleted int64     `json:"snapshots_deleted"`
	AlertsDeleted    int64     `json:"alerts_deleted"`
	HeatmapsDeleted  int64     `json:"heatmaps_deleted"`
	DryRun           bool      `json:"dry_run"`
	Cutoff           time.Time `json:"cutoff"`
	ExecutedAt       time.Time `json:"executed_at"`
	Subscriptions    []string  `json:"subscriptions"`
	Errors           []string  `json:"errors,omitempty"`
}

// Service deletes snapshots, alerts and heatmaps of long-departed subscriptions.
// The subscription row itself is kept so billing history stays intact.
type Service struct {
	db     *gorm.DB
	search SearchPurger
	now    func() time.Time
	log    logger.Logger
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{db: db, now: time.Now, log: log}
}

// WithSearch also removes purged alerts from the search index
func (s *Service) WithSearch(p SearchPurger) *Service {
	s.search = p
	return s
}

// WithClock overrides the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// FindExpired returns cancelled or expired subscriptions older than the cutoff that were not
// purged since their last status change
func (s *Service) FindExpired(ctx context.Context, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ? AND status_changed_at < ?", purgeableStatuses, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM purge_logs p WHERE p.subscription_id = subscriptions.id AND p.purged_at >= subscriptions.status_changed_at)").
		Order("status_changed_at").
		Find(&subs).Error
	if err != nil {
		return nil, apperrors.Persistence("cleanup.FindExpired", err)
	}
	return subs, nil
}

// Purge deletes the history of every expired subscription, each in its own transaction
func (s *Service) Purge(ctx context.Context, opts Options) (*Result, error) {
	if opts.RetentionDays <= 0 {
		return nil, apperrors.Validation("cleanup.Purge", "retention days must be positive")
	}

	now := s.now().UTC()
	result := &Result{
		DryRun:        opts.DryRun,
		Cutoff:        now.AddDate(0, 0, -opts.RetentionDays),
		ExecutedAt:    now,
		Subscriptions: []string{},
	}

	expired, err := s.FindExpired(ctx, result.Cutoff)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)
	if result.TargetCount == 0 {
		s.log.Info("Cleanup: no expired subscriptions", map[string]interface{}{"cutoff": result.Cutoff})
		return result, nil
	}

	if opts.MaxDeletionCount > 0 && result.TargetCount > opts.MaxDeletionCount {
		return nil, apperrors.Validation("cleanup.Purge",
			fmt.Sprintf("%d subscriptions exceed max deletion limit of %d", result.TargetCount, opts.MaxDeletionCount))
	}

	s.log.Info("Cleanup: starting purge", map[string]interface{}{
		"targets":        result.TargetCount,
		"retention_days": opts.RetentionDays,
		"dry_run":        opts.DryRun,
	})

	for i := range expired {
		sub := &expired[i]
		if opts.DryRun {
			s.log.Info("Cleanup: [DRY-RUN] would purge subscription", map[string]interface{}{
				"subscription_id": sub.ID,
				"status":          sub.Status,
			})
			result.Subscriptions = append(result.Subscriptions, sub.ID)
			result.PurgedCount++
			continue
		}

		entry, err := s.purgeOne(ctx, sub, models.PurgeReasonRetention, now)
		if err != nil {
			msg := fmt.Sprintf("purge subscription %s: %v", sub.ID, err)
			s.log.Error("Cleanup: purge failed", map[string]interface{}{"subscription_id": sub.ID, "error": err.Error()})
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}

		result.Subscriptions = append(result.Subscriptions, sub.ID)
		result.PurgedCount++
		result.SnapshotsDeleted += entry.SnapshotsDeleted
		result.AlertsDeleted += entry.AlertsDeleted
		result.HeatmapsDeleted += entry.HeatmapsDeleted
	}

	s.log.Info("Cleanup: purge completed", map[string]interface{}{
		"purged":  result.PurgedCount,
		"targets": result.TargetCount,
		"errors":  result.ErrorCount,
		"dry_run": opts.DryRun,
	})
	return result, nil
}

func (s *Service) purgeOne(ctx context.Context, sub *models.Subscription, reason string, now time.Time) (*models.PurgeLog, error) {
	entry := &models.PurgeLog{
		SubscriptionID:     sub.ID,
		BusinessName:       sub.BusinessName,
		SubscriptionStatus: sub.Status,
		Reason:             reason,
		PurgedAt:           now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("subscription_id = ?", sub.ID).Delete(&models.CompetitorSnapshot{})
		if res.Error != nil {
			return fmt.Errorf("delete snapshots: %w", res.Error)
		}
		entry.SnapshotsDeleted = res.RowsAffected

		res = tx.Where("subscription_id = ?", sub.ID).Delete(&models.Alert{})
		if res.Error != nil {
			return fmt.Errorf("delete alerts: %w", res.Error)
		}
		entry.AlertsDeleted = res.RowsAffected

		res = tx.Where("subscription_id = ?", sub.ID).Delete(&models.VisibilityHeatmap{})
		if res.Error != nil {
			return fmt.Errorf("delete heatmaps: %w", res.Error)
		}
		entry.HeatmapsDeleted = res.RowsAffected

		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create purge log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Persistence("cleanup.Purge", err)
	}

	if s.search != nil {
		if err := s.search.DeleteSubscription(ctx, sub.ID); err != nil {
			s.log.Warn("Cleanup: search index purge failed", map[string]interface{}{
				"subscription_id": sub.ID,
				"error":           err.Error(),
			})
		}
	}

	s.log.Info("Cleanup: subscription purged", map[string]interface{}{
		"subscription_id": sub.ID,
		"snapshots":       entry.SnapshotsDeleted,
		"alerts":          entry.AlertsDeleted,
		"heatmaps":        entry.HeatmapsDeleted,
	})
	return entry, nil
}

// RecentPurges returns the latest purge log entries
func (s *Service) RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.PurgeLog
	if err := s.db.WithContext(ctx).Order("purged_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, apperrors.Persistence("cleanup.RecentPurges", err)
	}
	return logs, nil
}
