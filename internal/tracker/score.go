package tracker

import (
	"math"
	"time"

	"competitor-radar/internal/models"
)

// Visibility score component caps
const (
	maxRatingPoints       = 30.0
	maxReviewPoints       = 25.0
	maxPhotoPoints        = 15.0
	pointsPerCompleteItem = 4.0
	recentUpdatePoints    = 10.0
	staleUpdatePoints     = 5.0

	recentUpdateWindow = 30 * 24 * time.Hour
	staleUpdateWindow  = 90 * 24 * time.Hour
)

// VisibilityScore computes the 0-100 visibility score of a business at now
func VisibilityScore(d *models.CompetitorData, now time.Time) models.ScoreBreakdown {
	var b models.ScoreBreakdown
	if d == nil {
		return b
	}

	rating := math.Max(0, math.Min(d.Rating, 5))
	b.Rating = rating / 5.0 * maxRatingPoints

	reviews := math.Max(0, float64(d.ReviewCount))
	b.Reviews = math.Min(maxReviewPoints, math.Log(reviews+1)*5)

	photos := math.Max(0, float64(d.PhotoCount))
	b.Photos = math.Min(maxPhotoPoints, photos*0.5)

	b.Completeness = float64(completeFields(d)) * pointsPerCompleteItem
	b.Recency = recencyPoints(d.LastUpdated, now)

	total := b.Rating + b.Reviews + b.Photos + b.Completeness + b.Recency
	b.Total = round2(math.Max(0, math.Min(100, total)))
	return b
}

// completeFields counts phone, website, address, categories, hours
func completeFields(d *models.CompetitorData) int {
	n := 0
	if d.Phone != "" {
		n++
	}
	if d.HasWebsite || d.Website != "" {
		n++
	}
	if d.Address != "" {
		n++
	}
	if len(d.Categories) > 0 {
		n++
	}
	if len(d.Hours) > 0 {
		n++
	}
	return n
}

func recencyPoints(lastUpdated *time.Time, now time.Time) float64 {
	if lastUpdated == nil {
		return 0
	}
	age := now.Sub(*lastUpdated)
	switch {
	case age < recentUpdateWindow:
		return recentUpdatePoints
	case age < staleUpdateWindow:
		return staleUpdatePoints
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
