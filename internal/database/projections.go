package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Projections serves dashboard read models straight from postgres
type Projections struct {
	conn *sql.DB
}

// NewProjections opens a lib/pq connection
func NewProjections(dsn string) (*Projections, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return &Projections{conn: conn}, nil
}

// NewProjectionsFromDB wraps an existing connection
func NewProjectionsFromDB(conn *sql.DB) *Projections {
	return &Projections{conn: conn}
}

// Close closes the connection
func (p *Projections) Close() error {
	return p.conn.Close()
}

// AlertFeedItem is one line of the alert feed
type AlertFeedItem struct {
	ID             string    `json:"id"`
	CompetitorName string    `json:"competitor_name"`
	Severity       string    `json:"severity"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
}

// AlertFeed returns the newest alerts of a subscription, optionally narrowed to severities
func (p *Projections) AlertFeed(ctx context.Context, subscriptionID string, severities []string, limit int) ([]AlertFeedItem, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, competitor_name, severity, type, status, title, created_at
	FROM alerts
	WHERE subscription_id = $1
	  AND (cardinality($2::text[]) = 0 OR severity = ANY($2))
	ORDER BY created_at DESC
	LIMIT $3
	`
	rows, err := p.conn.QueryContext(ctx, query, subscriptionID, pq.Array(severities), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]AlertFeedItem, 0)
	for rows.Next() {
		var it AlertFeedItem
		var name sql.NullString
		if err := rows.Scan(&it.ID, &name, &it.Severity, &it.Type, &it.Status, &it.Title, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.CompetitorName = name.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// AlertCounts returns alert counts keyed by status for a subscription
func (p *Projections) AlertCounts(ctx context.Context, subscriptionID string) (map[string]int64, error) {
	rows, err := p.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM alerts WHERE subscription_id = $1 GROUP BY status`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// HeatmapSummary is the headline of the latest heatmap
type HeatmapSummary struct {
	ID                string    `json:"id"`
	DominanceScore    float64   `json:"dominance_score"`
	RadiusMeters      float64   `json:"radius_meters"`
	CompetitorDensity float64   `json:"competitor_density"`
	AreaGrowthPercent *float64  `json:"area_growth_percent,omitempty"`
	DominanceChange   *float64  `json:"dominance_change,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// LatestHeatmap returns the newest heatmap summary, or nil when none exists
func (p *Projections) LatestHeatmap(ctx context.Context, subscriptionID string) (*HeatmapSummary, error) {
	query := `
	SELECT id, dominance_score, radius_meters, competitor_density,
	       area_growth_percent, dominance_change, created_at
	FROM visibility_heatmaps
	WHERE subscription_id = $1
	ORDER BY created_at DESC
	LIMIT 1
	`
	var s HeatmapSummary
	var growth, change sql.NullFloat64
	err := p.conn.QueryRowContext(ctx, query, subscriptionID).Scan(
		&s.ID, &s.DominanceScore, &s.RadiusMeters, &s.CompetitorDensity, &growth, &change, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if growth.Valid {
		s.AreaGrowthPercent = &growth.Float64
	}
	if change.Valid {
		s.DominanceChange = &change.Float64
	}
	return &s, nil
}
