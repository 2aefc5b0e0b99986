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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/schedule"
	"github.com/rouselabs/rouse/types"
)

const (
	policyCacheSize = 128
	policyCacheTTL  = time.Minute
)

type escalationMetrics struct {
	fired     prometheus.Counter
	exhausted prometheus.Counter
	skipped   prometheus.Counter
}

func newEscalationMetrics(r prometheus.Registerer) *escalationMetrics {
	return &escalationMetrics{
		fired: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_escalation_steps_fired_total",
			Help: "Total number of escalation steps fired.",
		}),
		exhausted: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_escalations_exhausted_total",
			Help: "Total number of escalations that ran out of steps and repeats.",
		}),
		skipped: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_escalation_steps_skipped_total",
			Help: "Total number of due steps retired without firing, e.g. for alerts no longer firing.",
		}),
	}
}

// Escalation drains the escalation_steps queue: it resolves each due step's
// targets to concrete recipients, fans notifications out per recipient and
// channel, and schedules the policy's next step.
type Escalation struct {
	queue         provider.EscalationQueue
	notifications provider.NotificationQueue
	alerts        provider.AlertRepository
	policies      provider.PolicyRepository
	users         provider.UserRepository
	teams         provider.TeamRepository
	schedules     *schedule.Service
	events        provider.EventPublisher

	// Policies change rarely but are read on every due step; entries expire
	// rather than being invalidated on write.
	cache *expirable.LRU[types.PolicyID, *escalation.Policy]

	clock    quartz.Clock
	interval time.Duration
	metrics  *escalationMetrics
	logger   *slog.Logger
}

// NewEscalation creates the escalation worker.
func NewEscalation(
	queue provider.EscalationQueue,
	notifications provider.NotificationQueue,
	alerts provider.AlertRepository,
	policies provider.PolicyRepository,
	users provider.UserRepository,
	teams provider.TeamRepository,
	schedules *schedule.Service,
	events provider.EventPublisher,
	clock quartz.Clock,
	interval time.Duration,
	reg prometheus.Registerer,
	logger *slog.Logger,
) *Escalation {
	return &Escalation{
		queue:         queue,
		notifications: notifications,
		alerts:        alerts,
		policies:      policies,
		users:         users,
		teams:         teams,
		schedules:     schedules,
		events:        events,
		cache:         expirable.NewLRU[types.PolicyID, *escalation.Policy](policyCacheSize, nil, policyCacheTTL),
		clock:         clock,
		interval:      interval,
		metrics:       newEscalationMetrics(reg),
		logger:        logger.With("component", "escalation_worker"),
	}
}

// Run polls for due steps until the context is cancelled.
func (w *Escalation) Run(ctx context.Context) error {
	return pollLoop(ctx, w.clock, w.interval, w.logger, w.RunOnce)
}

// RunOnce processes every step due now. A failing step is logged and left
// pending for the next poll; it never blocks the remaining due steps.
func (w *Escalation) RunOnce(ctx context.Context) error {
	now := w.clock.Now().UTC()
	due, err := w.queue.PollDue(ctx, now)
	if err != nil {
		return err
	}
	for _, p := range due {
		if err := w.fire(ctx, p, now); err != nil {
			w.logger.Error("failed to fire escalation step",
				"id", p.ID, "alert_id", p.AlertID, "step", p.StepOrder, "err", err)
		}
	}
	return nil
}

func (w *Escalation) fire(ctx context.Context, p *provider.PendingEscalation, now time.Time) error {
	alert, err := w.alerts.Get(ctx, p.AlertID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			w.logger.Warn("escalation step for unknown alert", "alert_id", p.AlertID)
			w.metrics.skipped.Inc()
			return w.queue.MarkFired(ctx, p.ID)
		}
		return err
	}
	// Cancellation normally retires steps of acknowledged and resolved
	// alerts before they come due; a step that raced past it is retired
	// here instead of paging someone about a closed incident.
	if alert.Status != types.StatusFiring {
		w.metrics.skipped.Inc()
		return w.queue.MarkFired(ctx, p.ID)
	}

	policy, err := w.policy(ctx, p.PolicyID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			w.logger.Warn("escalation step for deleted policy", "policy_id", p.PolicyID)
			w.metrics.skipped.Inc()
			return w.queue.MarkFired(ctx, p.ID)
		}
		return err
	}
	idx := stepIndex(policy, p.StepOrder)
	if idx < 0 {
		w.logger.Warn("escalation step no longer in policy",
			"policy_id", p.PolicyID, "step", p.StepOrder)
		w.metrics.skipped.Inc()
		return w.queue.MarkFired(ctx, p.ID)
	}
	step := policy.Steps[idx]

	payload := renderPayload(alert)
	targets := make([]string, 0, len(step.Targets))
	for _, t := range step.Targets {
		targets = append(targets, t.String())
		recipients, err := w.resolveTarget(ctx, t, now)
		if err != nil {
			w.logger.Warn("failed to resolve escalation target",
				"alert_id", alert.ID, "target", t.String(), "err", err)
			continue
		}
		for _, userID := range recipients {
			if err := w.notifyUser(ctx, alert, userID, step.Channels, payload, now); err != nil {
				w.logger.Warn("failed to enqueue notifications",
					"alert_id", alert.ID, "user_id", userID, "err", err)
			}
		}
	}

	w.publish(ctx, types.AlertEscalated{
		AlertID:    alert.ID,
		Step:       p.StepOrder,
		Targets:    targets,
		OccurredAt: now,
	})
	if err := w.queue.MarkFired(ctx, p.ID); err != nil {
		return err
	}
	w.metrics.fired.Inc()

	next, ok := policy.NextStep(idx, p.Repetition)
	if !ok {
		w.metrics.exhausted.Inc()
		w.publish(ctx, types.EscalationExhausted{
			AlertID:    alert.ID,
			PolicyID:   policy.ID,
			OccurredAt: now,
		})
		return nil
	}
	repetition := p.Repetition
	if stepIndex(policy, next.Order) <= idx {
		repetition++
	}
	return w.queue.Enqueue(ctx, provider.NewPendingEscalation(
		alert.ID, policy.ID, next.Order, repetition, now.Add(next.Wait())))
}

// resolveTarget expands a step target into user ids. On-call targets follow
// the schedule at the instant the step fires, not the instant it was
// enqueued.
func (w *Escalation) resolveTarget(ctx context.Context, t escalation.Target, now time.Time) ([]types.UserID, error) {
	switch t.Kind {
	case escalation.TargetUser:
		return []types.UserID{*t.UserID}, nil
	case escalation.TargetTeam:
		team, err := w.teams.Get(ctx, *t.TeamID)
		if err != nil {
			return nil, err
		}
		return team.Members, nil
	case escalation.TargetOnCall:
		sched, err := w.schedules.Get(ctx, *t.ScheduleID)
		if err != nil {
			return nil, err
		}
		if t.Modifier == escalation.ModifierNext {
			return []types.UserID{sched.NextOnCall(now)}, nil
		}
		return []types.UserID{sched.WhoIsOnCall(now)}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

// notifyUser enqueues one notification per channel the user is reachable on.
func (w *Escalation) notifyUser(ctx context.Context, alert *types.Alert, userID types.UserID, channels []types.Channel, payload string, now time.Time) error {
	user, err := w.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range channels {
		addr := user.ContactFor(c)
		if addr == "" {
			w.logger.Debug("user has no address for channel",
				"user_id", userID, "channel", c)
			continue
		}
		n := provider.NewPendingNotification(alert.ID, c, addr, payload, now)
		if err := w.notifications.Enqueue(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (w *Escalation) policy(ctx context.Context, id types.PolicyID) (*escalation.Policy, error) {
	if p, ok := w.cache.Get(id); ok {
		return p, nil
	}
	p, err := w.policies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w.cache.Add(id, p)
	return p, nil
}

func (w *Escalation) publish(ctx context.Context, e types.Event) {
	if err := w.events.Publish(ctx, e); err != nil {
		w.logger.Warn("failed to publish event", "type", e.Type(), "err", err)
	}
}

func stepIndex(p *escalation.Policy, order int) int {
	for i, s := range p.Steps {
		if s.Order == order {
			return i
		}
	}
	return -1
}

// renderPayload is the message text sent on every channel. Channel adapters
// wrap it in their own framing.
func renderPayload(a *types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(a.Severity)), a.Summary)
	if len(a.Labels) > 0 {
		keys := make([]string, 0, len(a.Labels))
		for k := range a.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+a.Labels[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(pairs, ", "))
	}
	fmt.Fprintf(&b, " source=%s", a.Source)
	return b.String()
}
