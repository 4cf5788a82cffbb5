package alert

import (
	"context"
	"fmt"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/metrics"
	"competitor-radar/internal/models"
)

// NotificationSender delivers an alert over the given channels and reports whether
// delivery was attempted.
// Implementations: notify.Sender
type NotificationSender interface {
	Send(ctx context.Context, a *models.Alert, channels models.AlertChannels) (attempted bool)
}

// allowed lists the forward-only lifecycle moves
var allowed = map[models.AlertStatus][]models.AlertStatus{
	models.AlertStatusPending: {models.AlertStatusSent, models.AlertStatusRead, models.AlertStatusDismissed},
	models.AlertStatusSent:    {models.AlertStatusRead, models.AlertStatusDismissed},
	models.AlertStatusRead:    {models.AlertStatusDismissed},
}

// CanTransition reports whether an alert may move from one status to another
func CanTransition(from, to models.AlertStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (g *Generator) transition(ctx context.Context, id string, to models.AlertStatus, apply func(a *models.Alert)) (*models.Alert, error) {
	a, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := a.Status
	if !CanTransition(from, to) {
		return nil, apperrors.Validation("alert.transition", fmt.Sprintf("cannot move alert %s from %s to %s", id, from, to))
	}

	apply(a)
	a.Status = to
	if err := g.store.UpdateStatus(ctx, a, from); err != nil {
		return nil, err
	}

	g.index(ctx, []models.Alert{*a})
	return a, nil
}

// MarkRead moves a pending or sent alert to read
func (g *Generator) MarkRead(ctx context.Context, id string) (*models.Alert, error) {
	return g.transition(ctx, id, models.AlertStatusRead, func(a *models.Alert) {
		now := g.now().UTC()
		a.ReadAt = &now
	})
}

// MarkSent moves a pending alert to sent and records the channels used
func (g *Generator) MarkSent(ctx context.Context, id string, channels []string) (*models.Alert, error) {
	return g.transition(ctx, id, models.AlertStatusSent, func(a *models.Alert) {
		now := g.now().UTC()
		a.SentAt = &now
		a.Notification.Channels = channels
		a.Notification.Attempted = true
		a.Notification.LastAttemptAt = &now
		a.Notification.LastError = ""
		a.NextNotifyAt = nil
	})
}

// Dismiss closes an alert for good. It releases the idempotency key so a later
// scan of the same snapshot may raise a fresh alert.
func (g *Generator) Dismiss(ctx context.Context, id string) (*models.Alert, error) {
	return g.transition(ctx, id, models.AlertStatusDismissed, func(a *models.Alert) {
		now := g.now().UTC()
		a.DismissedAt = &now
		a.DedupKey = nil
		a.NextNotifyAt = nil
	})
}

// Deliver sends a pending alert. An attempted delivery marks it sent; otherwise the
// attempt is recorded and the next one is scheduled with backoff.
func (g *Generator) Deliver(ctx context.Context, a *models.Alert, channels models.AlertChannels, sender NotificationSender) (bool, error) {
	if a.Status != models.AlertStatusPending {
		return false, apperrors.Validation("alert.Deliver", fmt.Sprintf("alert %s is %s, not pending", a.ID, a.Status))
	}

	names := channels.Names()
	attempted := len(names) > 0 && sender.Send(ctx, a, channels)

	now := g.now().UTC()
	a.NotifyAttempts++
	a.Notification.LastAttemptAt = &now
	a.Notification.Attempted = attempted
	a.Notification.Channels = names

	if attempted {
		metrics.NotificationsAttempted.WithLabelValues("sent").Inc()
		a.Status = models.AlertStatusSent
		a.SentAt = &now
		a.NextNotifyAt = nil
		a.Notification.LastError = ""
	} else {
		metrics.NotificationsAttempted.WithLabelValues("not_attempted").Inc()
		next := now.Add(models.NextNotificationDelay(a.NotifyAttempts - 1))
		a.NextNotifyAt = &next
		if len(names) == 0 {
			a.Notification.LastError = "no alert channels configured"
		} else {
			a.Notification.LastError = "delivery not attempted"
		}
	}

	if err := g.store.UpdateStatus(ctx, a, models.AlertStatusPending); err != nil {
		return false, err
	}
	if attempted {
		g.index(ctx, []models.Alert{*a})
	}
	return attempted, nil
}
