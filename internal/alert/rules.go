package alert

import (
	"fmt"
	"strings"

	"competitor-radar/internal/config"
	"competitor-radar/internal/models"
	"competitor-radar/internal/tracker"
)

// SeverityRules classify a movement. Critical wins over warning; everything else is info.
type SeverityRules struct {
	CriticalScoreDelta  float64
	CriticalReviewDelta int
	WarningScoreDelta   float64
	WarningReviewDelta  int
	WarningPhotoDelta   int
}

// DefaultSeverityRules returns the canonical severity table
func DefaultSeverityRules() SeverityRules {
	return SeverityRules{
		CriticalScoreDelta:  10,
		CriticalReviewDelta: 20,
		WarningScoreDelta:   5,
		WarningReviewDelta:  10,
		WarningPhotoDelta:   5,
	}
}

// RulesFromConfig derives the severity table. Warning cutoffs reuse the movement thresholds.
func RulesFromConfig(cfg *config.Config) SeverityRules {
	t := cfg.Tracker.Thresholds
	return SeverityRules{
		CriticalScoreDelta:  cfg.Alerts.CriticalScoreDelta,
		CriticalReviewDelta: cfg.Alerts.CriticalReviewDelta,
		WarningScoreDelta:   t.ScoreDelta,
		WarningReviewDelta:  t.ReviewDelta,
		WarningPhotoDelta:   t.PhotoDelta,
	}
}

// Classify returns the severity and type of a movement
func (r SeverityRules) Classify(d models.SnapshotDeltas) (models.AlertSeverity, models.AlertType) {
	switch {
	case d.Score >= r.CriticalScoreDelta || d.Reviews >= r.CriticalReviewDelta:
		return models.SeverityCritical, models.AlertTypePositionRisk
	case d.Score >= r.WarningScoreDelta || d.Reviews >= r.WarningReviewDelta || d.Photos >= r.WarningPhotoDelta:
		return models.SeverityWarning, models.AlertTypeCompetitorMovement
	default:
		return models.SeverityInfo, models.AlertTypeCompetitorMovement
	}
}

// recommendationRules maps a fired metric to a suggested action, in output order
var recommendationRules = []struct {
	metric string
	action string
}{
	{models.MetricReviews, "Increase review-acquisition efforts: ask recent customers for a review and reply to every new one"},
	{models.MetricScore, "Audit your business profile: refresh the description, categories and opening hours"},
	{models.MetricRating, "Read the competitor's latest reviews and address the complaints your own customers repeat"},
	{models.MetricPhotos, "Upload recent photos of your products, team and premises"},
	{models.MetricWebsite, "Link your website from your business profile and check that it loads quickly on mobile"},
}

const positionRiskAction = "Schedule a strategy review: this competitor is closing the gap on your local ranking"

// Recommendations returns the deterministic action list for the fired metrics
func Recommendations(fired []string, alertType models.AlertType) []string {
	set := make(map[string]bool, len(fired))
	for _, f := range fired {
		set[f] = true
	}

	out := make([]string, 0, len(recommendationRules)+1)
	if alertType == models.AlertTypePositionRisk {
		out = append(out, positionRiskAction)
	}
	for _, rule := range recommendationRules {
		if set[rule.metric] {
			out = append(out, rule.action)
		}
	}
	return out
}

// BuildTitle summarises the alert in one line
func BuildTitle(severity models.AlertSeverity, competitor string, d models.SnapshotDeltas) string {
	switch severity {
	case models.SeverityCritical:
		return fmt.Sprintf("%s is threatening your position (%+.1f visibility, %+d reviews)", competitor, d.Score, d.Reviews)
	case models.SeverityWarning:
		return fmt.Sprintf("%s is gaining visibility (%+.1f points)", competitor, d.Score)
	default:
		return fmt.Sprintf("%s updated their public profile", competitor)
	}
}

// BuildMessage lists the deltas that fired
func BuildMessage(competitor string, score float64, d models.SnapshotDeltas, fired []string) string {
	parts := make([]string, 0, len(fired))
	for _, f := range fired {
		switch f {
		case models.MetricScore:
			parts = append(parts, fmt.Sprintf("visibility score %+.2f (now %.2f)", d.Score, score))
		case models.MetricReviews:
			parts = append(parts, fmt.Sprintf("%+d reviews", d.Reviews))
		case models.MetricPhotos:
			parts = append(parts, fmt.Sprintf("%+d photos", d.Photos))
		case models.MetricRating:
			parts = append(parts, fmt.Sprintf("rating %+.2f", d.Rating))
		case models.MetricWebsite:
			parts = append(parts, "added a website")
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s changed since the last scan.", competitor)
	}
	return fmt.Sprintf("%s changed since the last scan: %s.", competitor, strings.Join(parts, ", "))
}

// firedMetrics lists the metrics that crossed a movement threshold
func firedMetrics(t tracker.Thresholds, d *models.SnapshotDeltas) []string {
	fired := t.Fired(d)
	if fired == nil {
		fired = []string{}
	}
	return fired
}
