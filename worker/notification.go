// Copyright 2025 The Rouse Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

type notificationMetrics struct {
	sent   *prometheus.CounterVec
	failed *prometheus.CounterVec
	dead   prometheus.Counter
}

func newNotificationMetrics(r prometheus.Registerer) *notificationMetrics {
	return &notificationMetrics{
		sent: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "rouse_notifications_sent_total",
			Help: "Total number of notifications delivered, by channel.",
		}, []string{"channel"}),
		failed: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "rouse_notifications_failed_total",
			Help: "Total number of failed delivery attempts, by channel.",
		}, []string{"channel"}),
		dead: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_notifications_dead_total",
			Help: "Total number of notifications abandoned after exhausting retries or hitting a non-retryable error.",
		}),
	}
}

// Notification drains the notifications queue through the channel adapter
// registry, applying the retry policy to failures.
type Notification struct {
	queue    provider.NotificationQueue
	registry notify.Registry
	events   provider.EventPublisher

	clock    quartz.Clock
	interval time.Duration
	metrics  *notificationMetrics
	logger   *slog.Logger
}

// NewNotification creates the notification worker.
func NewNotification(
	queue provider.NotificationQueue,
	registry notify.Registry,
	events provider.EventPublisher,
	clock quartz.Clock,
	interval time.Duration,
	reg prometheus.Registerer,
	logger *slog.Logger,
) *Notification {
	return &Notification{
		queue:    queue,
		registry: registry,
		events:   events,
		clock:    clock,
		interval: interval,
		metrics:  newNotificationMetrics(reg),
		logger:   logger.With("component", "notification_worker"),
	}
}

// Run polls for pending notifications until the context is cancelled.
func (w *Notification) Run(ctx context.Context) error {
	return pollLoop(ctx, w.clock, w.interval, w.logger, w.RunOnce)
}

// RunOnce attempts every notification due now. Delivery is at least once: a
// crash after Notify but before MarkSent re-delivers on the next poll.
func (w *Notification) RunOnce(ctx context.Context) error {
	now := w.clock.Now().UTC()
	pending, err := w.queue.PollPending(ctx, now)
	if err != nil {
		return err
	}
	for _, n := range pending {
		if err := w.deliver(ctx, n, now); err != nil {
			w.logger.Error("failed to process notification",
				"id", n.ID, "alert_id", n.AlertID, "channel", n.Channel, "err", err)
		}
	}
	return nil
}

func (w *Notification) deliver(ctx context.Context, n *provider.PendingNotification, now time.Time) error {
	notifier, ok := w.registry.For(n.Channel)
	if !ok {
		return w.fail(ctx, n, errNoNotifier{n.Channel}, now)
	}

	externalID, err := notifier.Notify(ctx, n)
	if err != nil {
		return w.fail(ctx, n, err, now)
	}

	if err := w.queue.MarkSent(ctx, n.ID); err != nil {
		return err
	}
	w.metrics.sent.WithLabelValues(string(n.Channel)).Inc()
	w.publish(ctx, types.NotificationSent{
		AlertID:    n.AlertID,
		Channel:    n.Channel,
		Target:     n.Target,
		ExternalID: externalID,
		OccurredAt: now,
	})
	return nil
}

// fail applies the retry policy: retryable errors reschedule with backoff
// until MaxAttempts, everything else goes dead immediately.
func (w *Notification) fail(ctx context.Context, n *provider.PendingNotification, cause error, now time.Time) error {
	w.metrics.failed.WithLabelValues(string(n.Channel)).Inc()

	attempts := n.RetryCount + 1
	terminal := !notify.Retryable(cause) || attempts >= notify.MaxAttempts

	var err error
	if terminal {
		err = w.queue.MarkDead(ctx, n.ID, cause.Error())
		w.metrics.dead.Inc()
	} else {
		next := now.Add(notify.RetryBackoff(n.RetryCount))
		err = w.queue.MarkFailed(ctx, n.ID, cause.Error(), next)
	}
	if err != nil {
		return err
	}

	w.publish(ctx, types.NotificationFailed{
		AlertID:    n.AlertID,
		Channel:    n.Channel,
		Target:     n.Target,
		Error:      cause.Error(),
		Terminal:   terminal,
		OccurredAt: now,
	})
	return nil
}

func (w *Notification) publish(ctx context.Context, e types.Event) {
	if err := w.events.Publish(ctx, e); err != nil {
		w.logger.Warn("failed to publish event", "type", e.Type(), "err", err)
	}
}

type errNoNotifier struct {
	channel types.Channel
}

func (e errNoNotifier) Error() string {
	return "no notifier configured for channel " + string(e.channel)
}
