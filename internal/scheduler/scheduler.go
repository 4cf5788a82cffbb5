package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"competitor-radar/internal/config"
	"competitor-radar/internal/lock"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/metrics"
	"competitor-radar/internal/models"
	"competitor-radar/internal/tracker"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// RunLockKey serialises monitoring runs across triggers and replicas
const RunLockKey = "radar:monitoring-run"

// ErrRunInProgress is returned when another run holds the run lock
var ErrRunInProgress = errors.New("monitoring run already in progress")

// SubscriptionStore lists due subscriptions and reschedules them.
// Implementations: subscription.Store, memstore.Subscriptions
type SubscriptionStore interface {
	Due(ctx context.Context, now time.Time) ([]models.Subscription, error)
	MarkMonitored(ctx context.Context, id string, at, next time.Time) error
}

// Scanner records a snapshot per tracked competitor
type Scanner interface {
	ScanSubscription(ctx context.Context, sub *models.Subscription) (*tracker.BatchResult, error)
}

// AlertGenerator turns scan results into alerts
type AlertGenerator interface {
	GenerateFromScan(ctx context.Context, subscriptionID string, results []tracker.ScanResult) ([]models.Alert, error)
}

// HeatmapGenerator refreshes the visibility heatmap when it is stale
type HeatmapGenerator interface {
	IsDue(sub *models.Subscription, now time.Time) bool
	GenerateForSubscription(ctx context.Context, sub *models.Subscription) (*models.VisibilityHeatmap, error)
}

// RunStore keeps the monitoring run log
type RunStore interface {
	Save(ctx context.Context, run *models.MonitoringRun) error
	Latest(ctx context.Context) (*models.MonitoringRun, error)
}

// Dependencies are the collaborators of a Scheduler. Heatmaps, Runs and Locker are optional.
type Dependencies struct {
	Subscriptions SubscriptionStore
	Scanner       Scanner
	Alerts        AlertGenerator
	Heatmaps      HeatmapGenerator
	Runs          RunStore
	Locker        lock.Locker
}

// RunSummary reports the outcome of one monitoring run
type RunSummary struct {
	RunID             string            `json:"run_id"`
	Trigger           string            `json:"trigger"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	Processed         int               `json:"processed"`
	Skipped           int               `json:"skipped"`
	SnapshotsCreated  int               `json:"snapshots_created"`
	AlertsGenerated   int               `json:"alerts_generated"`
	HeatmapsGenerated int               `json:"heatmaps_generated"`
	Errors            map[string]string `json:"errors"`
}

// Record converts the summary into its persisted form
func (s *RunSummary) Record() *models.MonitoringRun {
	errs := make(map[string]string, len(s.Errors))
	for k, v := range s.Errors {
		errs[k] = v
	}
	run := &models.MonitoringRun{
		ID:                s.RunID,
		Trigger:           s.Trigger,
		StartedAt:         s.StartedAt,
		Processed:         s.Processed,
		Skipped:           s.Skipped,
		SnapshotsCreated:  s.SnapshotsCreated,
		AlertsGenerated:   s.AlertsGenerated,
		HeatmapsGenerated: s.HeatmapsGenerated,
		Errors:            errs,
	}
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		run.FinishedAt = &finished
	}
	return run
}

// Scheduler runs the monitoring cycle over due subscriptions
type Scheduler struct {
	cron        *cron.Cron
	cfg         config.SchedulerConfig
	deps        Dependencies
	dispatcher  *Dispatcher
	concurrency int
	lockTTL     time.Duration
	now         func() time.Time
	log         logger.Logger

	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg config.SchedulerConfig, deps Dependencies, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	lockTTL := cfg.GetLockTTL()
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	return &Scheduler{
		cron:        cron.New(),
		cfg:         cfg,
		deps:        deps,
		concurrency: concurrency,
		lockTTL:     lockTTL,
		now:         time.Now,
		log:         log,
	}
}

// WithDispatcher attaches the notification dispatcher started alongside the cron trigger
func (s *Scheduler) WithDispatcher(d *Dispatcher) *Scheduler {
	s.dispatcher = d
	return s
}

// WithClock overrides the time source
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the cron trigger and starts the dispatcher
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("Scheduler: monitoring runs are disabled in configuration", nil)
		return nil
	}

	spec, err := s.cfg.Spec()
	if err != nil {
		return fmt.Errorf("scheduler spec: %w", err)
	}

	_, err = s.cron.AddFunc(spec, func() {
		summary, err := s.RunOnce(context.Background(), models.RunTriggerCron)
		if err != nil {
			s.log.Warn("Scheduler: scheduled run did not complete", map[string]interface{}{"error": err.Error()})
			return
		}
		s.log.Info("Scheduler: scheduled run completed", map[string]interface{}{
			"run_id":    summary.RunID,
			"processed": summary.Processed,
			"failed":    len(summary.Errors),
		})
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	if s.dispatcher != nil {
		s.dispatcher.Start()
	}
	s.isRunning = true
	s.log.Info("Scheduler: started", map[string]interface{}{
		"cron":        spec,
		"concurrency": s.concurrency,
	})
	return nil
}

// Stop stops the cron trigger and waits for a run in flight to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
	s.isRunning = false
	s.log.Info("Scheduler: stopped", nil)
}

// RunNow starts a manual run in the background. It fails with ErrRunInProgress when
// another run holds the lock.
func (s *Scheduler) RunNow(ctx context.Context, done func(*RunSummary, error)) error {
	s.log.Info("Scheduler: manual trigger", nil)
	return s.StartRun(ctx, models.RunTriggerManual, done)
}

// DueSubscriptions returns the subscriptions due for monitoring now
func (s *Scheduler) DueSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	return s.deps.Subscriptions.Due(ctx, s.now().UTC())
}

// LatestRun returns the most recent run record, or nil when none was kept
func (s *Scheduler) LatestRun(ctx context.Context) (*models.MonitoringRun, error) {
	if s.deps.Runs == nil {
		return nil, nil
	}
	return s.deps.Runs.Latest(ctx)
}

// cycleResult holds the counts of one subscription cycle
type cycleResult struct {
	snapshots int
	alerts    int
	heatmaps  int
}

// acquireRun takes the run lock. When the lock backend itself fails the run proceeds
// unlocked and release is a no-op.
func (s *Scheduler) acquireRun(ctx context.Context) (func(), error) {
	release, err := s.deps.Locker.Acquire(ctx, RunLockKey, s.lockTTL)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		return nil, ErrRunInProgress
	case err != nil:
		// the due-gate still keeps overlapping runs idempotent
		s.log.Warn("Scheduler: run lock unavailable, continuing without it", map[string]interface{}{"error": err.Error()})
		return func() {}, nil
	default:
		return release, nil
	}
}

// RunOnce processes every due subscription once. A failing subscription is recorded in
// the summary and left unscheduled; the others proceed.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (*RunSummary, error) {
	release, err := s.acquireRun(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.run(ctx, trigger)
}

// StartRun takes the run lock now and processes due subscriptions in the background.
// ErrRunInProgress is returned before anything starts; done, when set, receives the outcome.
func (s *Scheduler) StartRun(ctx context.Context, trigger string, done func(*RunSummary, error)) error {
	release, err := s.acquireRun(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer release()
		// detached from ctx; the run outlives the request that started it
		summary, err := s.run(context.Background(), trigger)
		if done != nil {
			done(summary, err)
		}
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context, trigger string) (*RunSummary, error) {
	start := s.now().UTC()
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
		Errors:    make(map[string]string),
	}
	metrics.RunsTotal.WithLabelValues(trigger).Inc()

	due, err := s.deps.Subscriptions.Due(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("load due subscriptions: %w", err)
	}
	s.saveRun(ctx, summary)

	s.log.Info("Scheduler: run started", map[string]interface{}{
		"run_id":  summary.RunID,
		"trigger": trigger,
		"due":     len(due),
	})

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
	)

	for i := range due {
		sub := due[i]

		acquired := false
		if ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case sem <- struct{}{}:
				acquired = true
			}
		}
		if !acquired {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			metrics.SubscriptionsProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.processSubscription(ctx, &sub, start)

			mu.Lock()
			defer mu.Unlock()
			summary.SnapshotsCreated += res.snapshots
			summary.AlertsGenerated += res.alerts
			summary.HeatmapsGenerated += res.heatmaps
			if err != nil {
				summary.Errors[sub.ID] = err.Error()
				metrics.SubscriptionsProcessed.WithLabelValues("failed").Inc()
				s.log.Warn("Scheduler: subscription cycle failed", map[string]interface{}{
					"run_id":          summary.RunID,
					"subscription_id": sub.ID,
					"error":           err.Error(),
				})
				return
			}
			summary.Processed++
			metrics.SubscriptionsProcessed.WithLabelValues("ok").Inc()
		}()
	}
	wg.Wait()

	summary.FinishedAt = s.now().UTC()
	metrics.RunDuration.Observe(summary.FinishedAt.Sub(start).Seconds())
	s.saveRun(ctx, summary)

	s.log.Info("Scheduler: run finished", map[string]interface{}{
		"run_id":             summary.RunID,
		"processed":          summary.Processed,
		"failed":             len(summary.Errors),
		"skipped":            summary.Skipped,
		"snapshots_created":  summary.SnapshotsCreated,
		"alerts_generated":   summary.AlertsGenerated,
		"heatmaps_generated": summary.HeatmapsGenerated,
	})
	return summary, nil
}

// processSubscription runs scan, alerts and heatmap refresh for one subscription, then
// reschedules it. Any error leaves NextMonitoringAt untouched.
func (s *Scheduler) processSubscription(ctx context.Context, sub *models.Subscription, now time.Time) (res cycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	batch, err := s.deps.Scanner.ScanSubscription(ctx, sub)
	if batch != nil {
		res.snapshots = len(batch.Snapshots())
	}
	if err != nil {
		return res, fmt.Errorf("scan: %w", err)
	}

	alerts, err := s.deps.Alerts.GenerateFromScan(ctx, sub.ID, batch.Results)
	res.alerts = len(alerts)
	if err != nil {
		return res, fmt.Errorf("alerts: %w", err)
	}

	if s.deps.Heatmaps != nil && s.deps.Heatmaps.IsDue(sub, now) {
		if _, err := s.deps.Heatmaps.GenerateForSubscription(ctx, sub); err != nil {
			return res, fmt.Errorf("heatmap: %w", err)
		}
		res.heatmaps = 1
	}

	if err := s.deps.Subscriptions.MarkMonitored(ctx, sub.ID, now, now.Add(sub.Frequency())); err != nil {
		return res, fmt.Errorf("reschedule: %w", err)
	}
	return res, nil
}

func (s *Scheduler) saveRun(ctx context.Context, summary *RunSummary) {
	if s.deps.Runs == nil {
		return
	}
	if err := s.deps.Runs.Save(ctx, summary.Record()); err != nil {
		s.log.Warn("Scheduler: failed to save run record", map[string]interface{}{
			"run_id": summary.RunID,
			"error":  err.Error(),
		})
	}
}
