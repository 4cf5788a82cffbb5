package models

import "time"

// SubscriptionStatus is the billing-driven state of a monitoring subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
)

const (
	DefaultFrequencyDays  = 30
	MinTrackedCompetitors = 1
	MaxTrackedCompetitors = 5
)

// MonitoredStatuses are the statuses that keep a subscription in the due set
var MonitoredStatuses = []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusTrial}

// AlertChannels describes where alerts for a subscription are delivered
type AlertChannels struct {
	Emails   []string `json:"emails,omitempty"`
	Phones   []string `json:"phones,omitempty"`
	TopicARN string   `json:"topic_arn,omitempty"`
}

// Channel names recorded on alerts
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// Names lists the configured channel kinds
func (c AlertChannels) Names() []string {
	names := make([]string, 0, 3)
	if len(c.Emails) > 0 {
		names = append(names, ChannelEmail)
	}
	if len(c.Phones) > 0 {
		names = append(names, ChannelSMS)
	}
	if c.TopicARN != "" {
		names = append(names, ChannelPush)
	}
	return names
}

// IsEmpty reports whether no delivery channel is configured
func (c AlertChannels) IsEmpty() bool {
	return len(c.Names()) == 0
}

// Subscription is a business's enrollment in competitor monitoring
type Subscription struct {
	ID           string `gorm:"type:varchar(36);primaryKey" json:"id"`
	BusinessID   string `gorm:"type:varchar(128);not null;index" json:"business_id"`
	BusinessName string `gorm:"type:varchar(255)" json:"business_name"`

	// Business location and own metrics, used by the heatmap engine
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	PhotoCount  int      `json:"photo_count"`
	Locale      string   `gorm:"type:varchar(8)" json:"locale,omitempty"`

	Status          SubscriptionStatus `gorm:"type:varchar(20);not null;index:idx_subscription_due" json:"status"`
	StatusChangedAt *time.Time         `json:"status_changed_at,omitempty"`
	CompetitorIDs   []string           `gorm:"type:text;serializer:json" json:"competitor_ids"`
	FrequencyDays   int                `json:"frequency_days"`

	LastMonitoringAt *time.Time `json:"last_monitoring_at,omitempty"`
	NextMonitoringAt *time.Time `gorm:"index:idx_subscription_due,priority:2" json:"next_monitoring_at,omitempty"`
	LastHeatmapAt    *time.Time `json:"last_heatmap_at,omitempty"`

	AlertChannels     AlertChannels `gorm:"type:text;serializer:json" json:"alert_channels"`
	AlertsSent        int           `json:"alerts_sent"`
	HeatmapsGenerated int           `json:"heatmaps_generated"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsMonitored reports whether the subscription status keeps monitoring running
func (s *Subscription) IsMonitored() bool {
	for _, st := range MonitoredStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// IsDue reports whether the subscription should be processed at now
func (s *Subscription) IsDue(now time.Time) bool {
	if !s.IsMonitored() {
		return false
	}
	return s.NextMonitoringAt == nil || !s.NextMonitoringAt.After(now)
}

// Frequency returns the monitoring interval, falling back to the default
func (s *Subscription) Frequency() time.Duration {
	days := s.FrequencyDays
	if days <= 0 {
		days = DefaultFrequencyDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// HasLocation reports whether business coordinates are known
func (s *Subscription) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}
