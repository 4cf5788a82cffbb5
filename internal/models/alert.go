package models

import (
	"fmt"
	"time"
)

// AlertSeverity classifies how significant a competitor movement is
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// AlertType describes what an alert is about
type AlertType string

const (
	AlertTypeCompetitorMovement AlertType = "competitor_movement"
	AlertTypePositionRisk       AlertType = "position_risk"
)

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusPending   AlertStatus = "pending"
	AlertStatusSent      AlertStatus = "sent"
	AlertStatusRead      AlertStatus = "read"
	AlertStatusDismissed AlertStatus = "dismissed"
)

// Trigger metric names
const (
	MetricScore   = "score"
	MetricReviews = "reviews"
	MetricPhotos  = "photos"
	MetricRating  = "rating"
	MetricWebsite = "website"
)

// AlertTrigger records the deltas that caused an alert
type AlertTrigger struct {
	Deltas          SnapshotDeltas `json:"deltas"`
	Fired           []string       `json:"fired"`
	VisibilityScore float64        `json:"visibility_score"`
}

// NotificationInfo records the outcome of the latest delivery attempt
type NotificationInfo struct {
	Channels      []string   `json:"channels,omitempty"`
	Attempted     bool       `json:"attempted"`
	LastError     string     `json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// Alert is derived from a snapshot whose deltas crossed a threshold
type Alert struct {
	ID             string `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubscriptionID string `gorm:"type:varchar(36);not null;index:idx_alert_feed" json:"subscription_id"`
	SnapshotID     string `gorm:"type:varchar(36);not null;index" json:"snapshot_id"`
	CompetitorID   string `gorm:"type:varchar(128);not null" json:"competitor_id"`
	CompetitorName string `gorm:"type:varchar(255)" json:"competitor_name"`

	// DedupKey is set while the alert is not dismissed; the unique index allows many NULLs
	DedupKey *string `gorm:"type:varchar(80);uniqueIndex" json:"-"`

	Severity        AlertSeverity    `gorm:"type:varchar(20);not null;index" json:"severity"`
	Type            AlertType        `gorm:"type:varchar(40);not null" json:"type"`
	Title           string           `gorm:"type:varchar(255);not null" json:"title"`
	Message         string           `gorm:"type:text" json:"message"`
	Trigger         AlertTrigger     `gorm:"type:text;serializer:json" json:"trigger"`
	Recommendations []string         `gorm:"type:text;serializer:json" json:"recommendations"`
	Status          AlertStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	Notification    NotificationInfo `gorm:"type:text;serializer:json" json:"notification"`
	NotifyAttempts  int              `json:"notify_attempts"`
	NextNotifyAt    *time.Time       `gorm:"index" json:"next_notify_at,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;index:idx_alert_feed,priority:2" json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

// TableName specifies the table name
func (Alert) TableName() string {
	return "alerts"
}

// AlertDedupKey builds the idempotency key for a (subscription, snapshot) pair
func AlertDedupKey(subscriptionID, snapshotID string) string {
	return fmt.Sprintf("%s:%s", subscriptionID, snapshotID)
}

// MaxNotificationAttempts before an alert stays pending without further delivery
const MaxNotificationAttempts = 5

// NextNotificationDelay returns the backoff before the next delivery attempt
func NextNotificationDelay(attempts int) time.Duration {
	// 5min, 15min, 1h, 4h, 12h
	delays := []time.Duration{
		5 * time.Minute,
		15 * time.Minute,
		1 * time.Hour,
		4 * time.Hour,
		12 * time.Hour,
	}

	if attempts < 0 {
		return delays[0]
	}
	if attempts >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempts]
}
