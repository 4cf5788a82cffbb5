package models

import "time"

// Run trigger sources
const (
	RunTriggerCron   = "cron"
	RunTriggerManual = "manual"
	RunTriggerCLI    = "cli"
)

// MonitoringRun records the summary of one scheduler run
type MonitoringRun struct {
	ID                string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Trigger           string            `gorm:"type:varchar(20);not null" json:"trigger"`
	StartedAt         time.Time         `gorm:"not null;index" json:"started_at"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty"`
	Processed         int               `json:"processed"`
	Skipped           int               `json:"skipped"`
	SnapshotsCreated  int               `json:"snapshots_created"`
	AlertsGenerated   int               `json:"alerts_generated"`
	HeatmapsGenerated int               `json:"heatmaps_generated"`
	Errors            map[string]string `gorm:"type:text;serializer:json" json:"errors,omitempty"`
}

// TableName specifies the table name
func (MonitoringRun) TableName() string {
	return "monitoring_runs"
}

// Failed returns the number of subscriptions whose cycle failed
func (r *MonitoringRun) Failed() int {
	return len(r.Errors)
}
