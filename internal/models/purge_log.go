package models

import "time"

// PurgeLog records a subscription whose monitoring data was physically deleted
type PurgeLog struct {
	ID                 uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	SubscriptionID     string             `gorm:"type:varchar(36);not null;index" json:"subscription_id"`
	BusinessName       string             `gorm:"type:varchar(255)" json:"business_name"`
	SubscriptionStatus SubscriptionStatus `gorm:"type:varchar(20)" json:"subscription_status"`
	SnapshotsDeleted   int64              `json:"snapshots_deleted"`
	AlertsDeleted      int64              `json:"alerts_deleted"`
	HeatmapsDeleted    int64              `json:"heatmaps_deleted"`
	Reason             string             `gorm:"type:varchar(50);not null" json:"reason"`
	PurgedAt           time.Time          `gorm:"not null;autoCreateTime;index" json:"purged_at"`
}

// TableName specifies the table name
func (PurgeLog) TableName() string {
	return "purge_logs"
}

// Purge reasons
const (
	PurgeReasonRetention = "retention_expired"
	PurgeReasonManual    = "manual_purge"
)

// AllModels lists every persisted model for schema migration
func AllModels() []interface{} {
	return []interface{}{
		&Subscription{},
		&CompetitorSnapshot{},
		&Alert{},
		&VisibilityHeatmap{},
		&MonitoringRun{},
		&PurgeLog{},
	}
}
