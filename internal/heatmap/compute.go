// Package heatmap estimates a business's dominance over its local market.
package heatmap

import (
	"math"
	"sort"
	"time"

	"competitor-radar/internal/config"
	"competitor-radar/internal/geo"
	"competitor-radar/internal/models"
)

// Params are the geospatial constants of the engine
type Params struct {
	MinRadius       float64
	MaxRadius       float64
	CardinalOffset  float64
	DiagonalOffset  float64
	ProbeRange      float64
	ProbePenalty    float64
	RefreshInterval time.Duration
	// FetchTimeout bounds each provider call for the client business
	FetchTimeout time.Duration
}

// DefaultParams returns the canonical constants
func DefaultParams() Params {
	return Params{
		MinRadius:       500,
		MaxRadius:       2000,
		CardinalOffset:  0.005,
		DiagonalOffset:  0.004,
		ProbeRange:      500,
		ProbePenalty:    10,
		RefreshInterval: 30 * 24 * time.Hour,
		FetchTimeout:    15 * time.Second,
	}
}

// ParamsFromConfig converts the YAML heatmap section. fetchTimeout is the tracker's
// per-call provider timeout.
func ParamsFromConfig(c config.HeatmapConfig, fetchTimeout time.Duration) Params {
	return Params{
		MinRadius:       c.MinRadiusMeters,
		MaxRadius:       c.MaxRadiusMeters,
		CardinalOffset:  c.CardinalOffsetDeg,
		DiagonalOffset:  c.DiagonalOffsetDeg,
		ProbeRange:      c.ProbeCompetitorRange,
		ProbePenalty:    c.ProbePenalty,
		RefreshInterval: c.GetRefreshInterval(),
		FetchTimeout:    fetchTimeout,
	}
}

// Competitor is a tracked competitor with a known location
type Competitor struct {
	ID          string
	Name        string
	Location    models.Coordinates
	Score       float64
	Rating      float64
	ReviewCount int
	SnapshotID  string
}

// Result is the outcome of one heatmap computation
type Result struct {
	Radius      float64
	InRange     []models.NearbyCompetitor
	Dominance   float64
	Grid        []models.GridPoint
	Density     float64
	BusinessPos models.Coordinates
}

// InfluenceRadius interpolates the radius linearly from the business score
func (p Params) InfluenceRadius(score float64) float64 {
	r := p.MinRadius + (score/100)*(p.MaxRadius-p.MinRadius)
	return math.Max(p.MinRadius, math.Min(p.MaxRadius, r))
}

// FilterWithinRadius keeps competitors within radius meters of center, nearest first
func FilterWithinRadius(center models.Coordinates, competitors []Competitor, radius float64) []models.NearbyCompetitor {
	out := make([]models.NearbyCompetitor, 0, len(competitors))
	for _, c := range competitors {
		d := geo.DistanceMeters(center, c.Location)
		if d > radius {
			continue
		}
		out = append(out, models.NearbyCompetitor{
			CompetitorID:    c.ID,
			Name:            c.Name,
			Lat:             c.Location.Lat,
			Lng:             c.Location.Lng,
			DistanceMeters:  round2(d),
			VisibilityScore: c.Score,
			Rating:          c.Rating,
			ReviewCount:     c.ReviewCount,
			SnapshotID:      c.SnapshotID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out
}

// DominanceScore rates the business against the competitors in range, 0 to 100.
// No competitor in range means the market is uncontested.
func DominanceScore(businessScore float64, inRange []models.NearbyCompetitor) float64 {
	if len(inRange) == 0 {
		return 100
	}

	total := 0.0
	for _, c := range inRange {
		total += c.VisibilityScore
	}
	avg := total / float64(len(inRange))

	relative := 100.0
	if avg > 0 {
		relative = math.Min(100, businessScore/avg*100)
	}
	penalty := math.Min(30, float64(len(inRange))*5)

	return round2(clamp(relative-penalty, 0, 100))
}

// probe offsets in units of (cardinal, diagonal) degrees
var probes = []struct {
	label    string
	dLat     float64
	dLng     float64
	diagonal bool
}{
	{"C", 0, 0, false},
	{"N", 1, 0, false},
	{"NE", 1, 1, true},
	{"E", 0, 1, false},
	{"SE", -1, 1, true},
	{"S", -1, 0, false},
	{"SW", -1, -1, true},
	{"W", 0, -1, false},
	{"NW", 1, -1, true},
}

// VisibilityGrid samples the business's visibility at the center and 8 compass probes
func (p Params) VisibilityGrid(center models.Coordinates, businessScore float64, competitors []Competitor) []models.GridPoint {
	grid := make([]models.GridPoint, 0, len(probes))
	for _, pr := range probes {
		step := p.CardinalOffset
		if pr.diagonal {
			step = p.DiagonalOffset
		}
		point := geo.Offset(center, pr.dLat*step, pr.dLng*step)

		d := geo.DistanceMeters(center, point)
		score := businessScore * (1 - math.Min(d/config.RadiusCeilingMeters, 0.5))
		for _, c := range competitors {
			if geo.DistanceMeters(point, c.Location) <= p.ProbeRange {
				score -= p.ProbePenalty
			}
		}

		grid = append(grid, models.GridPoint{
			Label: pr.label,
			Lat:   point.Lat,
			Lng:   point.Lng,
			Score: round2(math.Max(0, score)),
		})
	}
	return grid
}

// CompetitorDensity is the number of in-range competitors per square kilometer
func CompetitorDensity(count int, radiusMeters float64) float64 {
	if radiusMeters <= 0 {
		return 0
	}
	areaKm2 := math.Pi * radiusMeters * radiusMeters / 1e6
	return round2(float64(count) / areaKm2)
}

// Compute runs the full heatmap computation for a business
func (p Params) Compute(center models.Coordinates, businessScore float64, competitors []Competitor) Result {
	radius := p.InfluenceRadius(businessScore)
	inRange := FilterWithinRadius(center, competitors, radius)
	return Result{
		Radius:      radius,
		InRange:     inRange,
		Dominance:   DominanceScore(businessScore, inRange),
		Grid:        p.VisibilityGrid(center, businessScore, competitors),
		Density:     CompetitorDensity(len(inRange), radius),
		BusinessPos: center,
	}
}

// Growth links a new heatmap to its predecessor
func Growth(prev *models.VisibilityHeatmap, radius, dominance float64) (areaGrowth, dominanceChange *float64) {
	if prev == nil {
		return nil, nil
	}
	change := round2(dominance - prev.DominanceScore)
	dominanceChange = &change
	if prev.RadiusMeters > 0 {
		growth := round2((radius - prev.RadiusMeters) / prev.RadiusMeters * 100)
		areaGrowth = &growth
	}
	return areaGrowth, dominanceChange
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
