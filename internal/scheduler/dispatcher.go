package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"competitor-radar/internal/alert"
	"competitor-radar/internal/lock"
	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"
)

// DispatchLockKey keeps one dispatch pass running across replicas
const DispatchLockKey = "radar:alert-dispatch"

// AlertQueue lists pending alerts whose next delivery attempt is due
type AlertQueue interface {
	ListDeliverable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Alert, error)
}

// Deliverer sends one pending alert and records the attempt.
// Implementations: alert.Generator
type Deliverer interface {
	Deliver(ctx context.Context, a *models.Alert, channels models.AlertChannels, sender alert.NotificationSender) (bool, error)
}

// SubscriptionDirectory resolves alert channels and counts sent alerts
type SubscriptionDirectory interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
	IncrementAlertsSent(ctx context.Context, id string) error
}

// DispatcherOptions tune a Dispatcher
type DispatcherOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// Locker defaults to an in-process locker; replicas must share one
	Locker  lock.Locker
	LockTTL time.Duration
}

// DispatchResult counts the outcome of one dispatch pass
type DispatchResult struct {
	Sent     int `json:"sent"`
	Deferred int `json:"deferred"`
	Failed   int `json:"failed"`
}

// Dispatcher polls pending alerts and hands them to the notification sender
type Dispatcher struct {
	queue         AlertQueue
	deliverer     Deliverer
	subscriptions SubscriptionDirectory
	sender        alert.NotificationSender
	opts          DispatcherOptions
	now           func() time.Time
	log           logger.Logger

	mu        sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	isRunning bool
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(queue AlertQueue, deliverer Deliverer, subscriptions SubscriptionDirectory, sender alert.NotificationSender, opts DispatcherOptions, log logger.Logger) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = models.MaxNotificationAttempts
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{
		queue:         queue,
		deliverer:     deliverer,
		subscriptions: subscriptions,
		sender:        sender,
		opts:          opts,
		now:           time.Now,
		log:           log,
	}
}

// Start starts the polling loop
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		d.log.Debug("Dispatcher: already running", nil)
		return
	}
	d.stopChan = make(chan struct{})
	d.done = make(chan struct{})
	d.isRunning = true
	d.log.Info("Dispatcher: started", map[string]interface{}{
		"interval":     d.opts.Interval.String(),
		"batch_size":   d.opts.BatchSize,
		"max_attempts": d.opts.MaxAttempts,
	})

	go d.run(d.stopChan, d.done)
}

// Stop stops the polling loop and waits for the current pass
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}
	close(d.stopChan)
	<-d.done
	d.isRunning = false
	d.log.Info("Dispatcher: stopped", nil)
}

func (d *Dispatcher) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.log.Warn("Dispatcher: pass failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// DispatchOnce delivers one batch of due alerts. Errors on single alerts are counted
// and logged; only a failure to list the queue is returned. A pass held by another
// dispatcher yields an empty result.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult

	release, err := d.opts.Locker.Acquire(ctx, DispatchLockKey, d.opts.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		d.log.Debug("Dispatcher: another pass holds the lock", nil)
		return result, nil
	}
	if err != nil {
		return result, err
	}
	defer release()

	alerts, err := d.queue.ListDeliverable(ctx, d.now().UTC(), d.opts.MaxAttempts, d.opts.BatchSize)
	if err != nil {
		return result, err
	}

	subs := make(map[string]*models.Subscription)
	for i := range alerts {
		if ctx.Err() != nil {
			break
		}
		a := &alerts[i]

		sub, ok := subs[a.SubscriptionID]
		if !ok {
			sub, err = d.subscriptions.Get(ctx, a.SubscriptionID)
			if err != nil {
				result.Failed++
				d.log.Warn("Dispatcher: subscription lookup failed", map[string]interface{}{
					"alert_id":        a.ID,
					"subscription_id": a.SubscriptionID,
					"error":           err.Error(),
				})
				continue
			}
			subs[a.SubscriptionID] = sub
		}

		sent, err := d.deliverer.Deliver(ctx, a, sub.AlertChannels, d.sender)
		if err != nil {
			result.Failed++
			d.log.Warn("Dispatcher: delivery failed", map[string]interface{}{
				"alert_id": a.ID,
				"error":    err.Error(),
			})
			continue
		}
		if !sent {
			result.Deferred++
			d.log.Debug("Dispatcher: delivery deferred", map[string]interface{}{
				"alert_id": a.ID,
				"attempts": a.NotifyAttempts,
			})
			continue
		}

		result.Sent++
		if err := d.subscriptions.IncrementAlertsSent(ctx, a.SubscriptionID); err != nil {
			d.log.Warn("Dispatcher: failed to count sent alert", map[string]interface{}{
				"subscription_id": a.SubscriptionID,
				"error":           err.Error(),
			})
		}
	}

	if len(alerts) > 0 {
		d.log.Info("Dispatcher: pass completed", map[string]interface{}{
			"sent":     result.Sent,
			"deferred": result.Deferred,
			"failed":   result.Failed,
		})
	}
	return result, nil
}
