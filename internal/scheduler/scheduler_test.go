package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"competitor-radar/internal/alert"
	"competitor-radar/internal/config"
	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/heatmap"
	"competitor-radar/internal/lock"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/memstore"
	"competitor-radar/internal/models"
	"competitor-radar/internal/provider"
	"competitor-radar/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test fixtures
// ============================================================================

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock         *clock
	provider      *provider.Static
	subscriptions *memstore.Subscriptions
	snapshots     *memstore.Snapshots
	alerts        *memstore.Alerts
	heatmaps      *memstore.Heatmaps
	runs          *memstore.Runs
	generator     *alert.Generator
	scheduler     *Scheduler
}

func ptr[T any](v T) *T { return &v }

func newHarness(t *testing.T, subs ...models.Subscription) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)

	h := &harness{
		clock:         &clock{now: time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)},
		provider:      provider.NewStatic(),
		subscriptions: memstore.NewSubscriptions(subs...),
		snapshots:     memstore.NewSnapshots(),
		alerts:        memstore.NewAlerts(),
		heatmaps:      memstore.NewHeatmaps(),
		runs:          memstore.NewRuns(),
	}

	trk := tracker.NewTracker(h.provider, h.snapshots, h.subscriptions, tracker.Options{Now: h.clock.Now}, log)
	h.generator = alert.NewGenerator(h.alerts, alert.DefaultSeverityRules(), tracker.DefaultThresholds(), log).
		WithClock(h.clock.Now)
	engine := heatmap.NewEngine(heatmap.DefaultParams(), h.snapshots, h.heatmaps, h.subscriptions, nil, log).
		WithClock(h.clock.Now)

	h.scheduler = NewScheduler(config.SchedulerConfig{Concurrency: 2}, Dependencies{
		Subscriptions: h.subscriptions,
		Scanner:       trk,
		Alerts:        h.generator,
		Heatmaps:      engine,
		Runs:          h.runs,
	}, log).WithClock(h.clock.Now)
	return h
}

func competitor(reviews int) models.CompetitorData {
	return models.CompetitorData{
		Name:        "Rival Cafe",
		Rating:      4.2,
		ReviewCount: reviews,
		PhotoCount:  8,
		Phone:       "+1 555 0100",
		Coordinates: &models.Coordinates{Lat: 40.001, Lng: -75.0},
	}
}

// MockScanner is a Func-field Scanner
type MockScanner struct {
	ScanSubscriptionFunc func(ctx context.Context, sub *models.Subscription) (*tracker.BatchResult, error)
}

func (m *MockScanner) ScanSubscription(ctx context.Context, sub *models.Subscription) (*tracker.BatchResult, error) {
	return m.ScanSubscriptionFunc(ctx, sub)
}

// MockAlertGenerator is a Func-field AlertGenerator
type MockAlertGenerator struct {
	GenerateFromScanFunc func(ctx context.Context, subscriptionID string, results []tracker.ScanResult) ([]models.Alert, error)
}

func (m *MockAlertGenerator) GenerateFromScan(ctx context.Context, subscriptionID string, results []tracker.ScanResult) ([]models.Alert, error) {
	if m.GenerateFromScanFunc == nil {
		return nil, nil
	}
	return m.GenerateFromScanFunc(ctx, subscriptionID, results)
}

// ============================================================================
// Due set
// ============================================================================

func TestRunOnce_DueSet(t *testing.T) {
	now := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	h := newHarness(t,
		models.Subscription{ID: "yesterday", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}, NextMonitoringAt: &yesterday},
		models.Subscription{ID: "tomorrow", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}, NextMonitoringAt: &tomorrow},
		models.Subscription{ID: "never", Status: models.SubscriptionStatusTrial, CompetitorIDs: []string{"c1"}},
		models.Subscription{ID: "cancelled", Status: models.SubscriptionStatusCancelled, CompetitorIDs: []string{"c1"}},
	)
	h.provider.Set("c1", competitor(10))

	due, err := h.scheduler.DueSubscriptions(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"yesterday", "never"}, ids)

	summary, err := h.scheduler.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.SnapshotsCreated)
	assert.Empty(t, summary.Errors)

	for _, id := range []string{"yesterday", "never"} {
		sub, err := h.subscriptions.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, sub.LastMonitoringAt)
		assert.Equal(t, now, *sub.LastMonitoringAt)
		assert.Equal(t, now.Add(30*24*time.Hour), *sub.NextMonitoringAt)
	}

	untouched, err := h.subscriptions.Get(context.Background(), "tomorrow")
	require.NoError(t, err)
	assert.Nil(t, untouched.LastMonitoringAt)
}

func TestRunOnce_RespectsFrequency(t *testing.T) {
	h := newHarness(t, models.Subscription{
		ID:            "weekly",
		Status:        models.SubscriptionStatusActive,
		CompetitorIDs: []string{"c1"},
		FrequencyDays: 7,
	})
	h.provider.Set("c1", competitor(10))

	_, err := h.scheduler.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)

	sub, err := h.subscriptions.Get(context.Background(), "weekly")
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(7*24*time.Hour), *sub.NextMonitoringAt)
}

// ============================================================================
// End to end cycle
// ============================================================================

func TestRunOnce_ChainAlertsAndIdempotentRerun(t *testing.T) {
	h := newHarness(t, models.Subscription{
		ID:            "sub-1",
		Status:        models.SubscriptionStatusActive,
		CompetitorIDs: []string{"c1"},
		Latitude:      ptr(40.0),
		Longitude:     ptr(-75.0),
		Rating:        4.5,
		ReviewCount:   120,
	})
	ctx := context.Background()
	h.provider.Set("c1", competitor(10))

	first, err := h.scheduler.RunOnce(ctx, models.RunTriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SnapshotsCreated)
	assert.Equal(t, 0, first.AlertsGenerated)
	assert.Equal(t, 1, first.HeatmapsGenerated)

	// same instant: nothing is due any more
	again, err := h.scheduler.RunOnce(ctx, models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
	assert.Len(t, h.snapshots.All(), 1)

	// the next cycle sees 30 more reviews
	h.clock.Advance(31 * 24 * time.Hour)
	h.provider.Set("c1", competitor(40))

	second, err := h.scheduler.RunOnce(ctx, models.RunTriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 1, second.AlertsGenerated)
	assert.Equal(t, 1, second.HeatmapsGenerated)

	snaps := h.snapshots.All()
	require.Len(t, snaps, 2)
	require.NotNil(t, snaps[1].PreviousSnapshotID)
	assert.Equal(t, snaps[0].ID, *snaps[1].PreviousSnapshotID)
	assert.Equal(t, 30, snaps[1].Deltas.Reviews)

	alerts := h.alerts.All()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, snaps[1].ID, alerts[0].SnapshotID)

	sub, err := h.subscriptions.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sub.HeatmapsGenerated)

	latest, err := h.runs.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.RunID, latest.ID)
	assert.NotNil(t, latest.FinishedAt)
}

func TestRunOnce_HeatmapOnlyWhenStale(t *testing.T) {
	recent := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, models.Subscription{
		ID:            "sub-1",
		Status:        models.SubscriptionStatusActive,
		CompetitorIDs: []string{"c1"},
		Latitude:      ptr(40.0),
		Longitude:     ptr(-75.0),
		LastHeatmapAt: &recent,
	})
	h.provider.Set("c1", competitor(10))

	summary, err := h.scheduler.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.HeatmapsGenerated)
}

// ============================================================================
// Fault isolation
// ============================================================================

func TestRunOnce_FetchFailureStillReschedules(t *testing.T) {
	h := newHarness(t, models.Subscription{
		ID:            "sub-1",
		Status:        models.SubscriptionStatusActive,
		CompetitorIDs: []string{"c1", "c2"},
	})
	h.provider.Set("c1", competitor(10))
	h.provider.Fail("c2", errors.New("upstream 503"))

	summary, err := h.scheduler.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.SnapshotsCreated)
	assert.Empty(t, summary.Errors)

	sub, err := h.subscriptions.Get(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.NotNil(t, sub.NextMonitoringAt)
}

func TestRunOnce_FailedSubscriptionIsNotRescheduled(t *testing.T) {
	subs := memstore.NewSubscriptions(
		models.Subscription{ID: "good", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}},
		models.Subscription{ID: "bad", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}},
		models.Subscription{ID: "panics", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}},
	)
	scanner := &MockScanner{
		ScanSubscriptionFunc: func(_ context.Context, sub *models.Subscription) (*tracker.BatchResult, error) {
			switch sub.ID {
			case "bad":
				return nil, apperrors.Persistence("tracker.Scan", errors.New("disk full"))
			case "panics":
				panic("unexpected nil")
			}
			return &tracker.BatchResult{SubscriptionID: sub.ID}, nil
		},
	}

	s := NewScheduler(config.SchedulerConfig{Concurrency: 3}, Dependencies{
		Subscriptions: subs,
		Scanner:       scanner,
		Alerts:        &MockAlertGenerator{},
	}, logger.NewTestLogger(t))

	summary, err := s.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Errors, 2)
	assert.Contains(t, summary.Errors["bad"], "disk full")
	assert.Contains(t, summary.Errors["panics"], "panic")

	good, _ := subs.Get(context.Background(), "good")
	assert.NotNil(t, good.NextMonitoringAt)
	bad, _ := subs.Get(context.Background(), "bad")
	assert.Nil(t, bad.NextMonitoringAt)

	// the failed subscriptions are retried on the next run
	due, err := s.DueSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestRunOnce_AlertFailureFailsCycle(t *testing.T) {
	subs := memstore.NewSubscriptions(
		models.Subscription{ID: "sub-1", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}},
	)
	s := NewScheduler(config.SchedulerConfig{}, Dependencies{
		Subscriptions: subs,
		Scanner: &MockScanner{ScanSubscriptionFunc: func(_ context.Context, sub *models.Subscription) (*tracker.BatchResult, error) {
			return &tracker.BatchResult{SubscriptionID: sub.ID}, nil
		}},
		Alerts: &MockAlertGenerator{GenerateFromScanFunc: func(context.Context, string, []tracker.ScanResult) ([]models.Alert, error) {
			return nil, apperrors.Persistence("alert.GenerateFromScan", errors.New("connection reset"))
		}},
	}, logger.NewNoOpLogger())

	summary, err := s.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Contains(t, summary.Errors["sub-1"], "alerts")
}

// ============================================================================
// Concurrency and locking
// ============================================================================

func TestRunOnce_BoundedConcurrency(t *testing.T) {
	var seed []models.Subscription
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		seed = append(seed, models.Subscription{ID: id, Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}})
	}
	subs := memstore.NewSubscriptions(seed...)

	var inFlight, peak int32
	scanner := &MockScanner{
		ScanSubscriptionFunc: func(_ context.Context, sub *models.Subscription) (*tracker.BatchResult, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return &tracker.BatchResult{SubscriptionID: sub.ID}, nil
		},
	}

	s := NewScheduler(config.SchedulerConfig{Concurrency: 2}, Dependencies{
		Subscriptions: subs,
		Scanner:       scanner,
		Alerts:        &MockAlertGenerator{},
	}, logger.NewNoOpLogger())

	summary, err := s.RunOnce(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Processed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunOnce_LockHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	release, err := locker.Acquire(context.Background(), RunLockKey, time.Minute)
	require.NoError(t, err)

	s := NewScheduler(config.SchedulerConfig{}, Dependencies{
		Subscriptions: memstore.NewSubscriptions(),
		Scanner:       &MockScanner{},
		Alerts:        &MockAlertGenerator{},
		Locker:        locker,
	}, logger.NewNoOpLogger())

	_, err = s.RunOnce(context.Background(), models.RunTriggerCron)
	assert.ErrorIs(t, err, ErrRunInProgress)

	release()
	summary, err := s.RunOnce(context.Background(), models.RunTriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
}

func TestStartRun_LockHeldFailsSynchronously(t *testing.T) {
	locker := lock.NewLocalLocker()
	s := NewScheduler(config.SchedulerConfig{}, Dependencies{
		Subscriptions: memstore.NewSubscriptions(),
		Scanner:       &MockScanner{},
		Alerts:        &MockAlertGenerator{},
		Locker:        locker,
	}, logger.NewNoOpLogger())

	release, err := locker.Acquire(context.Background(), RunLockKey, time.Minute)
	require.NoError(t, err)

	called := false
	err = s.StartRun(context.Background(), models.RunTriggerManual, func(*RunSummary, error) { called = true })
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.False(t, called)
	release()

	done := make(chan *RunSummary, 1)
	require.NoError(t, s.StartRun(context.Background(), models.RunTriggerManual, func(summary *RunSummary, err error) {
		assert.NoError(t, err)
		done <- summary
	}))

	select {
	case summary := <-done:
		assert.Equal(t, models.RunTriggerManual, summary.Trigger)
	case <-time.After(5 * time.Second):
		t.Fatal("background run did not finish")
	}

	// the background run releases the lock after done returns
	require.Eventually(t, func() bool {
		again, err := locker.Acquire(context.Background(), RunLockKey, time.Minute)
		if err != nil {
			return false
		}
		again()
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunSummary_RecordCopiesErrors(t *testing.T) {
	summary := &RunSummary{
		RunID:   "run-1",
		Trigger: models.RunTriggerCron,
		Errors:  map[string]string{"sub-1": "provider down"},
	}

	run := summary.Record()
	summary.Errors["sub-2"] = "timeout"
	delete(summary.Errors, "sub-1")

	assert.Equal(t, map[string]string{"sub-1": "provider down"}, run.Errors)
}

func TestRunOnce_CancelledContextSkips(t *testing.T) {
	subs := memstore.NewSubscriptions(
		models.Subscription{ID: "a", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}},
		models.Subscription{ID: "b", Status: models.SubscriptionStatusActive, CompetitorIDs: []string{"c1"}},
	)
	s := NewScheduler(config.SchedulerConfig{}, Dependencies{
		Subscriptions: subs,
		Scanner:       &MockScanner{},
		Alerts:        &MockAlertGenerator{},
	}, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.RunOnce(ctx, models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 2, summary.Skipped)
}

func TestStart_DisabledIsNoop(t *testing.T) {
	s := NewScheduler(config.SchedulerConfig{Enabled: false}, Dependencies{}, logger.NewNoOpLogger())
	require.NoError(t, s.Start())
	s.Stop()
}

func TestStart_InvalidRunTime(t *testing.T) {
	s := NewScheduler(config.SchedulerConfig{Enabled: true, DailyRunTime: "25:00"}, Dependencies{}, logger.NewNoOpLogger())
	assert.Error(t, s.Start())
}
