package alert

import (
	"testing"

	"competitor-radar/internal/config"
	"competitor-radar/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	rules := DefaultSeverityRules()

	tests := []struct {
		name         string
		deltas       models.SnapshotDeltas
		wantSeverity models.AlertSeverity
		wantType     models.AlertType
	}{
		{"score 12 reviews 3", models.SnapshotDeltas{Score: 12, Reviews: 3}, models.SeverityCritical, models.AlertTypePositionRisk},
		{"score 6 reviews 0", models.SnapshotDeltas{Score: 6}, models.SeverityWarning, models.AlertTypeCompetitorMovement},
		{"score boundary 10", models.SnapshotDeltas{Score: 10}, models.SeverityCritical, models.AlertTypePositionRisk},
		{"score just below 10", models.SnapshotDeltas{Score: 9.99}, models.SeverityWarning, models.AlertTypeCompetitorMovement},
		{"review boundary 20", models.SnapshotDeltas{Reviews: 20}, models.SeverityCritical, models.AlertTypePositionRisk},
		{"reviews 10", models.SnapshotDeltas{Reviews: 10}, models.SeverityWarning, models.AlertTypeCompetitorMovement},
		{"photos 5", models.SnapshotDeltas{Photos: 5}, models.SeverityWarning, models.AlertTypeCompetitorMovement},
		{"rating only", models.SnapshotDeltas{Rating: 0.4}, models.SeverityInfo, models.AlertTypeCompetitorMovement},
		{"website only", models.SnapshotDeltas{WebsiteAdded: true}, models.SeverityInfo, models.AlertTypeCompetitorMovement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, alertType := rules.Classify(tt.deltas)
			assert.Equal(t, tt.wantSeverity, severity)
			assert.Equal(t, tt.wantType, alertType)
		})
	}
}

func TestRulesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Alerts.CriticalScoreDelta = 15
	cfg.Alerts.CriticalReviewDelta = 40
	cfg.Tracker.Thresholds.ScoreDelta = 7

	rules := RulesFromConfig(cfg)
	assert.Equal(t, 15.0, rules.CriticalScoreDelta)
	assert.Equal(t, 40, rules.CriticalReviewDelta)
	assert.Equal(t, 7.0, rules.WarningScoreDelta)

	severity, _ := rules.Classify(models.SnapshotDeltas{Score: 12})
	assert.Equal(t, models.SeverityWarning, severity)
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name      string
		fired     []string
		alertType models.AlertType
		want      []string
	}{
		{
			name:      "reviews first then score",
			fired:     []string{models.MetricScore, models.MetricReviews},
			alertType: models.AlertTypeCompetitorMovement,
			want:      []string{recommendationRules[0].action, recommendationRules[1].action},
		},
		{
			name:      "position risk leads",
			fired:     []string{models.MetricPhotos},
			alertType: models.AlertTypePositionRisk,
			want:      []string{positionRiskAction, recommendationRules[3].action},
		},
		{
			name:      "nothing fired",
			alertType: models.AlertTypeCompetitorMovement,
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommendations(tt.fired, tt.alertType))
		})
	}
}

func TestBuildTitleAndMessage(t *testing.T) {
	d := models.SnapshotDeltas{Score: 12, Reviews: 3}

	assert.Equal(t, "Rival is threatening your position (+12.0 visibility, +3 reviews)",
		BuildTitle(models.SeverityCritical, "Rival", d))
	assert.Equal(t, "Rival is gaining visibility (+12.0 points)", BuildTitle(models.SeverityWarning, "Rival", d))
	assert.Equal(t, "Rival updated their public profile", BuildTitle(models.SeverityInfo, "Rival", d))

	msg := BuildMessage("Rival", 71.5, d, []string{models.MetricScore, models.MetricWebsite})
	assert.Equal(t, "Rival changed since the last scan: visibility score +12.00 (now 71.50), added a website.", msg)
	assert.Equal(t, "Rival changed since the last scan.", BuildMessage("Rival", 71.5, d, nil))
}
