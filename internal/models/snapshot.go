package models

import (
	"time"

	"gorm.io/datatypes"
)

// Coordinates is a WGS84 point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CompetitorData is the measured state of a business as returned by a data provider
type CompetitorData struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Rating      float64      `json:"rating"`
	ReviewCount int          `json:"review_count"`
	PhotoCount  int          `json:"photo_count"`
	HasWebsite  bool         `json:"has_website"`
	Phone       string       `json:"phone,omitempty"`
	Website     string       `json:"website,omitempty"`
	Address     string       `json:"address,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Categories  []string     `json:"categories,omitempty"`
	Hours       []string     `json:"hours,omitempty"`
	LastUpdated *time.Time   `json:"last_updated,omitempty"`

	// Raw is the provider payload as received
	Raw []byte `json:"-"`
}

// ScoreBreakdown holds the additive components of a visibility score
type ScoreBreakdown struct {
	Rating       float64 `json:"rating"`
	Reviews      float64 `json:"reviews"`
	Photos       float64 `json:"photos"`
	Completeness float64 `json:"completeness"`
	Recency      float64 `json:"recency"`
	Total        float64 `json:"total"`
}

// SnapshotDeltas are the changes of a snapshot relative to its predecessor
type SnapshotDeltas struct {
	Score        float64 `json:"score"`
	Rating       float64 `json:"rating"`
	Reviews      int     `json:"reviews"`
	Photos       int     `json:"photos"`
	WebsiteAdded bool    `json:"website_added"`
}

// CompetitorSnapshot is an immutable point-in-time record of one competitor.
// Snapshots for a (subscription, competitor) pair form a chain through PreviousSnapshotID.
type CompetitorSnapshot struct {
	ID             string `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubscriptionID string `gorm:"type:varchar(36);not null;index:idx_snapshot_chain" json:"subscription_id"`
	CompetitorID   string `gorm:"type:varchar(128);not null;index:idx_snapshot_chain,priority:2" json:"competitor_id"`
	CompetitorName string `gorm:"type:varchar(255)" json:"competitor_name"`

	Rating          float64        `json:"rating"`
	ReviewCount     int            `json:"review_count"`
	PhotoCount      int            `json:"photo_count"`
	HasWebsite      bool           `json:"has_website"`
	VisibilityScore float64        `json:"visibility_score"`
	ScoreBreakdown  ScoreBreakdown `gorm:"type:text;serializer:json" json:"score_breakdown"`
	Metrics         CompetitorData `gorm:"type:text;serializer:json" json:"metrics"`
	RawPayload      datatypes.JSON `json:"raw_payload,omitempty"`

	PreviousSnapshotID *string         `gorm:"type:varchar(36)" json:"previous_snapshot_id,omitempty"`
	Deltas             *SnapshotDeltas `gorm:"type:text;serializer:json" json:"deltas,omitempty"`
	MovementDetected   bool            `json:"movement_detected"`

	CapturedAt time.Time `gorm:"not null;index:idx_snapshot_chain,priority:3" json:"captured_at"`
}

// TableName specifies the table name
func (CompetitorSnapshot) TableName() string {
	return "competitor_snapshots"
}

// HasBaseline reports whether the snapshot was diffed against a predecessor
func (s *CompetitorSnapshot) HasBaseline() bool {
	return s.PreviousSnapshotID != nil && s.Deltas != nil
}
