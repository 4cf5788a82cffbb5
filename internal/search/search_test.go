package search

import (
	"testing"
	"time"

	"competitor-radar/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAlertFilter_String(t *testing.T) {
	since := time.Unix(1760000000, 0)

	tests := []struct {
		name   string
		filter AlertFilter
		want   string
	}{
		{"empty", AlertFilter{}, ""},
		{"subscription", AlertFilter{SubscriptionID: "sub-1"}, `subscription_id = "sub-1"`},
		{
			name:   "single severity",
			filter: AlertFilter{Severities: []string{"critical"}},
			want:   `severity = "critical"`,
		},
		{
			name:   "combined",
			filter: AlertFilter{SubscriptionID: "sub-1", Statuses: []string{"pending", "sent"}, Since: &since},
			want:   `subscription_id = "sub-1" AND (status = "pending" OR status = "sent") AND created_at >= 1760000000`,
		},
		{
			name:   "quotes escaped",
			filter: AlertFilter{SubscriptionID: `a"b`},
			want:   `subscription_id = "a\"b"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.String())
		})
	}
}

func TestNewAlertDocument(t *testing.T) {
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	doc := NewAlertDocument(models.Alert{
		ID:             "a-1",
		SubscriptionID: "sub-1",
		CompetitorName: "Rival",
		Severity:       models.SeverityWarning,
		Status:         models.AlertStatusPending,
		Trigger:        models.AlertTrigger{Deltas: models.SnapshotDeltas{Score: 6, Reviews: 2}},
		CreatedAt:      created,
	})

	assert.Equal(t, "warning", doc.Severity)
	assert.Equal(t, 6.0, doc.ScoreDelta)
	assert.Equal(t, 2, doc.ReviewDelta)
	assert.Equal(t, created, doc.CreatedTime())
}

func TestDocumentFromHit(t *testing.T) {
	hit := map[string]interface{}{
		"id":              "a-1",
		"severity":        "critical",
		"score_delta":     12.5,
		"review_delta":    float64(30),
		"created_at":      float64(1760000000),
		"recommendations": []interface{}{"one", "two"},
	}
	doc := documentFromHit(hit)

	assert.Equal(t, "a-1", doc.ID)
	assert.Equal(t, 12.5, doc.ScoreDelta)
	assert.Equal(t, 30, doc.ReviewDelta)
	assert.Equal(t, int64(1760000000), doc.CreatedAt)
	assert.Equal(t, []string{"one", "two"}, doc.Recommendations)
}
