package tracker

import (
	"competitor-radar/internal/config"
	"competitor-radar/internal/models"
)

// Thresholds decide when a snapshot counts as movement. Comparisons are inclusive
// and apply to signed deltas, so only competitor gains fire.
type Thresholds struct {
	ScoreDelta  float64
	ReviewDelta int
	PhotoDelta  int
	RatingDelta float64
}

// DefaultThresholds returns the canonical movement thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{ScoreDelta: 5, ReviewDelta: 10, PhotoDelta: 5, RatingDelta: 0.3}
}

// ThresholdsFromConfig converts the YAML threshold section
func ThresholdsFromConfig(c config.MovementThresholds) Thresholds {
	return Thresholds{
		ScoreDelta:  c.ScoreDelta,
		ReviewDelta: c.ReviewDelta,
		PhotoDelta:  c.PhotoDelta,
		RatingDelta: c.RatingDelta,
	}
}

// Fired lists the metrics whose delta crossed its threshold
func (t Thresholds) Fired(d *models.SnapshotDeltas) []string {
	if d == nil {
		return nil
	}
	var fired []string
	if d.Score >= t.ScoreDelta {
		fired = append(fired, models.MetricScore)
	}
	if d.Reviews >= t.ReviewDelta {
		fired = append(fired, models.MetricReviews)
	}
	if d.Photos >= t.PhotoDelta {
		fired = append(fired, models.MetricPhotos)
	}
	if d.Rating >= t.RatingDelta {
		fired = append(fired, models.MetricRating)
	}
	if d.WebsiteAdded {
		fired = append(fired, models.MetricWebsite)
	}
	return fired
}

// IsMovement reports whether any threshold fired. Nil deltas (no baseline) never move.
func (t Thresholds) IsMovement(d *models.SnapshotDeltas) bool {
	return len(t.Fired(d)) > 0
}

// ComputeDeltas diffs the current measurement against its predecessor
func ComputeDeltas(prev, cur *models.CompetitorSnapshot) *models.SnapshotDeltas {
	if prev == nil || cur == nil {
		return nil
	}
	return &models.SnapshotDeltas{
		Score:        round2(cur.VisibilityScore - prev.VisibilityScore),
		Rating:       round2(cur.Rating - prev.Rating),
		Reviews:      cur.ReviewCount - prev.ReviewCount,
		Photos:       cur.PhotoCount - prev.PhotoCount,
		WebsiteAdded: !prev.HasWebsite && cur.HasWebsite,
	}
}
