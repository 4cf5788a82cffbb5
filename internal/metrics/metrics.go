package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_runs_total",
			Help: "Total number of monitoring runs by trigger",
		},
		[]string{"trigger"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radar_run_duration_seconds",
			Help:    "Duration of monitoring runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	SubscriptionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_subscriptions_processed_total",
			Help: "Subscriptions processed by outcome",
		},
		[]string{"outcome"},
	)

	SnapshotsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radar_snapshots_created_total",
			Help: "Competitor snapshots persisted",
		},
	)

	MovementsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radar_movements_detected_total",
			Help: "Snapshots flagged as competitor movement",
		},
	)

	ProviderFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_provider_fetch_failures_total",
			Help: "Failed business data fetches by reason",
		},
		[]string{"reason"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_alerts_generated_total",
			Help: "Alerts created by severity",
		},
		[]string{"severity"},
	)

	NotificationsAttempted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_notifications_attempted_total",
			Help: "Alert delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	HeatmapsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radar_heatmaps_generated_total",
			Help: "Visibility heatmaps persisted",
		},
	)

	DominanceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radar_dominance_score",
			Help:    "Distribution of computed dominance scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
)
