package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"competitor-radar/internal/alert"
	"competitor-radar/internal/config"
	"competitor-radar/internal/geo"
	"competitor-radar/internal/heatmap"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/memstore"
	"competitor-radar/internal/models"
	"competitor-radar/internal/provider"
	"competitor-radar/internal/scheduler"
	"competitor-radar/internal/tracker"
)

// Clock is a settable time source shared by every in-memory component
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current simulated time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Memory is the engine wired over in-memory stores and a static provider
type Memory struct {
	Clock         *Clock
	Provider      *provider.Static
	Subscriptions *memstore.Subscriptions
	Snapshots     *memstore.Snapshots
	Alerts        *memstore.Alerts
	Heatmaps      *memstore.Heatmaps
	Runs          *memstore.Runs

	Tracker   *tracker.Tracker
	Generator *alert.Generator
	Engine    *heatmap.Engine
	Scheduler *scheduler.Scheduler
}

// NewMemory wires the engine without any external backend
func NewMemory(cfg *config.Config, clock *Clock, log logger.Logger) *Memory {
	m := &Memory{
		Clock:         clock,
		Provider:      provider.NewStatic(),
		Subscriptions: memstore.NewSubscriptions(),
		Snapshots:     memstore.NewSnapshots(),
		Alerts:        memstore.NewAlerts(),
		Heatmaps:      memstore.NewHeatmaps(),
		Runs:          memstore.NewRuns(),
	}

	thresholds := tracker.ThresholdsFromConfig(cfg.Tracker.Thresholds)
	m.Tracker = tracker.NewTracker(m.Provider, m.Snapshots, m.Subscriptions, tracker.Options{
		Thresholds:   thresholds,
		FetchTimeout: cfg.Tracker.GetFetchTimeout(),
		Now:          clock.Now,
	}, log)
	m.Generator = alert.NewGenerator(m.Alerts, alert.RulesFromConfig(cfg), thresholds, log).WithClock(clock.Now)
	m.Engine = heatmap.NewEngine(heatmap.ParamsFromConfig(cfg.Heatmap, cfg.Tracker.GetFetchTimeout()), m.Snapshots, m.Heatmaps, m.Subscriptions, m.Provider, log).
		WithClock(clock.Now)
	m.Scheduler = scheduler.NewScheduler(cfg.Scheduler, scheduler.Dependencies{
		Subscriptions: m.Subscriptions,
		Scanner:       m.Tracker,
		Alerts:        m.Generator,
		Heatmaps:      m.Engine,
		Runs:          m.Runs,
	}, log).WithClock(clock.Now)
	return m
}

// SimulationReport is the outcome of Simulate
type SimulationReport struct {
	Runs           []*scheduler.RunSummary   `json:"runs"`
	Alerts         []models.Alert            `json:"alerts"`
	Heatmap        *models.VisibilityHeatmap `json:"heatmap"`
	DominanceIndex *models.DominanceIndex    `json:"dominance_index"`
}

// demo market around one client business
var (
	demoCenter = models.Coordinates{Lat: 40.7128, Lng: -74.0060}

	demoCompetitors = []struct {
		id       string
		name     string
		bearing  float64
		distance float64
		data     models.CompetitorData
	}{
		{"harbor-coffee", "Harbor Coffee", 0, 400, models.CompetitorData{Rating: 4.4, ReviewCount: 180, PhotoCount: 12, Website: "https://harbor.example.com"}},
		{"bean-there", "Bean There", 90, 1200, models.CompetitorData{Rating: 4.1, ReviewCount: 90, PhotoCount: 8, Phone: "+12125550142"}},
		{"daily-grind", "Daily Grind", 180, 2600, models.CompetitorData{Rating: 3.9, ReviewCount: 40, PhotoCount: 3}},
	}
)

// SeedDemo enrolls a demo subscription with three competitors
func (m *Memory) SeedDemo(ctx context.Context) (*models.Subscription, error) {
	updated := m.Clock.Now().Add(-7 * 24 * time.Hour)
	m.Provider.Set("client", models.CompetitorData{
		Name:        "Corner Bakery",
		Rating:      4.6,
		ReviewCount: 240,
		PhotoCount:  30,
		Phone:       "+12125550100",
		Website:     "https://corner.example.com",
		Address:     "12 Hudson St, New York, NY",
		Coordinates: &demoCenter,
		Categories:  []string{"bakery", "cafe"},
		Hours:       []string{"Mo-Su 07:00-19:00"},
		LastUpdated: &updated,
	})

	ids := make([]string, 0, len(demoCompetitors))
	for _, c := range demoCompetitors {
		data := c.data
		data.Name = c.name
		loc := geo.DestinationMeters(demoCenter, c.bearing, c.distance)
		data.Coordinates = &loc
		m.Provider.Set(c.id, data)
		ids = append(ids, c.id)
	}

	lat, lng := demoCenter.Lat, demoCenter.Lng
	sub := &models.Subscription{
		BusinessID:    "client",
		BusinessName:  "Corner Bakery",
		Latitude:      &lat,
		Longitude:     &lng,
		Locale:        "en-US",
		Status:        models.SubscriptionStatusActive,
		CompetitorIDs: ids,
		AlertChannels: models.AlertChannels{Emails: []string{"owner@corner.example.com"}},
	}
	if err := m.Subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Simulate runs two monitoring cycles a month apart. Between them one competitor
// gains reviews and another adds photos.
func Simulate(ctx context.Context, cfg *config.Config, log logger.Logger) (*SimulationReport, error) {
	clock := NewClock(time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC))
	m := NewMemory(cfg, clock, log)

	sub, err := m.SeedDemo(ctx)
	if err != nil {
		return nil, err
	}

	report := &SimulationReport{}
	first, err := m.Scheduler.RunOnce(ctx, models.RunTriggerCLI)
	if err != nil {
		return nil, fmt.Errorf("first run: %w", err)
	}
	report.Runs = append(report.Runs, first)

	m.bump("harbor-coffee", func(d *models.CompetitorData) { d.ReviewCount += 25 })
	m.bump("bean-there", func(d *models.CompetitorData) { d.PhotoCount += 6 })
	clock.Advance(sub.Frequency())

	second, err := m.Scheduler.RunOnce(ctx, models.RunTriggerCLI)
	if err != nil {
		return nil, fmt.Errorf("second run: %w", err)
	}
	report.Runs = append(report.Runs, second)

	if report.Alerts, err = m.Alerts.ListBySubscription(ctx, sub.ID, 0); err != nil {
		return nil, err
	}
	if report.Heatmap, err = m.Heatmaps.Latest(ctx, sub.ID); err != nil {
		return nil, err
	}
	if report.DominanceIndex, err = m.Engine.DominanceIndexFor(ctx, sub.ID); err != nil {
		return nil, err
	}
	return report, nil
}

func (m *Memory) bump(id string, fn func(d *models.CompetitorData)) {
	d, err := m.Provider.Fetch(context.Background(), id)
	if err != nil {
		return
	}
	fn(d)
	m.Provider.Set(id, *d)
}
