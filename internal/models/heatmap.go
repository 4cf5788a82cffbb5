package models

import "time"

// GridPoint is one probe of the visibility grid
type GridPoint struct {
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Score float64 `json:"score"`
}

// NearbyCompetitor is a competitor inside the influence radius
type NearbyCompetitor struct {
	CompetitorID    string  `json:"competitor_id"`
	Name            string  `json:"name"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	DistanceMeters  float64 `json:"distance_meters"`
	VisibilityScore float64 `json:"visibility_score"`
	Rating          float64 `json:"rating"`
	ReviewCount     int     `json:"review_count"`
	SnapshotID      string  `json:"snapshot_id,omitempty"`
}

// CompetitorThreat ranks one competitor by gravitational attraction
type CompetitorThreat struct {
	CompetitorID string  `json:"competitor_id"`
	Name         string  `json:"name"`
	Distance     float64 `json:"distance"`
	Attraction   float64 `json:"attraction"`
}

// DominanceIndex is the gravitational market-share estimate of a business
type DominanceIndex struct {
	Unit            string             `json:"unit"`
	ClientPower     float64            `json:"client_power"`
	TotalAttraction float64            `json:"total_attraction"`
	Index           float64            `json:"index"`
	PrincipalThreat *CompetitorThreat  `json:"principal_threat,omitempty"`
	Threats         []CompetitorThreat `json:"threats"`
}

// VisibilityHeatmap is an immutable estimate of a business's market dominance
type VisibilityHeatmap struct {
	ID             string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubscriptionID string  `gorm:"type:varchar(36);not null;index:idx_heatmap_history" json:"subscription_id"`
	CenterLat      float64 `json:"center_lat"`
	CenterLng      float64 `json:"center_lng"`
	BusinessScore  float64 `json:"business_score"`
	RadiusMeters   float64 `json:"radius_meters"`

	Grid              []GridPoint        `gorm:"type:text;serializer:json" json:"grid"`
	Competitors       []NearbyCompetitor `gorm:"type:text;serializer:json" json:"competitors"`
	CompetitorDensity float64            `json:"competitor_density"`
	DominanceScore    float64            `json:"dominance_score"`
	DominanceIndex    DominanceIndex     `gorm:"type:text;serializer:json" json:"dominance_index"`

	PreviousHeatmapID *string  `gorm:"type:varchar(36)" json:"previous_heatmap_id,omitempty"`
	AreaGrowthPercent *float64 `json:"area_growth_percent,omitempty"`
	DominanceChange   *float64 `json:"dominance_change,omitempty"`

	SnapshotsAsOf time.Time `json:"snapshots_as_of"`
	CreatedAt     time.Time `gorm:"not null;index:idx_heatmap_history,priority:2" json:"created_at"`
}

// TableName specifies the table name
func (VisibilityHeatmap) TableName() string {
	return "visibility_heatmaps"
}
