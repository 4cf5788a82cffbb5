package config

import (
	"fmt"

	"github.com/robfig/cron/v3"

	apperrors "competitor-radar/internal/errors"
)

// Validate checks thresholds and geospatial constants. Any error is a ConfigurationError
// and is meant to stop the process at startup.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mysql", "postgres":
	default:
		return apperrors.Configuration("database.type", fmt.Sprintf("unsupported database type %q", c.Database.Type))
	}

	t := c.Tracker.Thresholds
	if t.ScoreDelta <= 0 {
		return apperrors.Configuration("tracker.thresholds.score_delta", "must be positive")
	}
	if t.ReviewDelta <= 0 {
		return apperrors.Configuration("tracker.thresholds.review_delta", "must be positive")
	}
	if t.PhotoDelta <= 0 {
		return apperrors.Configuration("tracker.thresholds.photo_delta", "must be positive")
	}
	if t.RatingDelta <= 0 {
		return apperrors.Configuration("tracker.thresholds.rating_delta", "must be positive")
	}
	if c.Tracker.FetchTimeoutSeconds <= 0 {
		return apperrors.Configuration("tracker.fetch_timeout_seconds", "must be positive")
	}

	if c.Alerts.CriticalScoreDelta < t.ScoreDelta {
		return apperrors.Configuration("alerts.critical_score_delta", "must not be below tracker.thresholds.score_delta")
	}
	if c.Alerts.CriticalReviewDelta < t.ReviewDelta {
		return apperrors.Configuration("alerts.critical_review_delta", "must not be below tracker.thresholds.review_delta")
	}

	h := c.Heatmap
	if h.MinRadiusMeters < RadiusFloorMeters {
		return apperrors.Configuration("heatmap.min_radius_meters", fmt.Sprintf("must be at least %.0f", RadiusFloorMeters))
	}
	if h.MaxRadiusMeters > RadiusCeilingMeters {
		return apperrors.Configuration("heatmap.max_radius_meters", fmt.Sprintf("must be at most %.0f", RadiusCeilingMeters))
	}
	if h.MaxRadiusMeters <= h.MinRadiusMeters {
		return apperrors.Configuration("heatmap.max_radius_meters", "must be greater than min_radius_meters")
	}
	if h.RefreshDays <= 0 {
		return apperrors.Configuration("heatmap.refresh_days", "must be positive")
	}
	if h.CardinalOffsetDeg <= 0 || h.DiagonalOffsetDeg <= 0 {
		return apperrors.Configuration("heatmap.probe_offsets", "must be positive")
	}
	if h.ProbeCompetitorRange <= 0 || h.ProbePenalty < 0 {
		return apperrors.Configuration("heatmap.probe_penalty", "range must be positive and penalty non-negative")
	}

	if c.Scheduler.Concurrency <= 0 {
		return apperrors.Configuration("scheduler.concurrency", "must be positive")
	}
	if c.Scheduler.Enabled {
		spec, err := c.Scheduler.Spec()
		if err != nil {
			return apperrors.Configuration("scheduler.daily_run_time", err.Error())
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return apperrors.Configuration("scheduler.cron_spec", err.Error())
		}
	}

	switch c.Provider.Type {
	case "http", "page":
	default:
		return apperrors.Configuration("provider.type", fmt.Sprintf("unsupported provider type %q", c.Provider.Type))
	}

	return nil
}
