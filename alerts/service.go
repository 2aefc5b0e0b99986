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

// Package alerts is the alert application service: it ingests raw alerts
// with fingerprint dedup, drives acknowledge/resolve transitions, and feeds
// the escalation queue.
//
// Every mutation follows the same discipline: mutate the aggregate in
// memory, cancel pending escalations, persist, then publish. An event is
// never published before the state change it describes is durable.
package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rouselabs/rouse/dispatch"
	"github.com/rouselabs/rouse/noise"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// numStripes arbitrates concurrent service calls per alert. Two calls for
// the same fingerprint or id serialize on the same stripe.
const numStripes = 64

// Service orchestrates the alert lifecycle.
type Service struct {
	alerts      provider.AlertRepository
	policies    provider.PolicyRepository
	escalations provider.EscalationQueue
	events      provider.EventPublisher
	router      *dispatch.Router
	grouper     *Grouper
	noise       *noise.Service

	stripes [numStripes]sync.Mutex
	metrics *metrics
	logger  *slog.Logger
}

// Options carries the optional collaborators of the service.
type Options struct {
	// Grouper clusters new alerts; nil disables grouping.
	Grouper *Grouper
	// Noise records fires and responses; nil disables noise tracking.
	Noise *noise.Service
}

// NewService creates the alert service.
func NewService(
	alerts provider.AlertRepository,
	policies provider.PolicyRepository,
	escalations provider.EscalationQueue,
	events provider.EventPublisher,
	router *dispatch.Router,
	opts Options,
	reg prometheus.Registerer,
	logger *slog.Logger,
) *Service {
	return &Service{
		alerts:      alerts,
		policies:    policies,
		escalations: escalations,
		events:      events,
		router:      router,
		grouper:     opts.Grouper,
		noise:       opts.Noise,
		metrics:     newMetrics(reg),
		logger:      logger.With("component", "alerts"),
	}
}

func (s *Service) lock(key string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(key)%numStripes]
}

// Receive ingests a raw alert. A status of "resolved" resolves the alert
// with that fingerprint; a known fingerprint deduplicates; anything else
// creates a new alert and enqueues its first escalation step. The returned
// id is the affected alert's, existing or new.
func (s *Service) Receive(ctx context.Context, raw types.RawAlert, now time.Time) (types.AlertID, error) {
	fp := types.FingerprintLabels(raw.Labels)

	mu := s.lock(fp.String())
	mu.Lock()
	defer mu.Unlock()

	if raw.Resolved() {
		return s.resolveByFingerprint(ctx, fp, raw.Source, now)
	}

	existing, err := s.alerts.FindByFingerprint(ctx, fp)
	switch {
	case err == nil:
		s.metrics.deduplicated.Inc()
		s.publish(ctx, []types.Event{types.AlertDeduplicated{
			AlertID:     existing.ID,
			Fingerprint: fp,
			OccurredAt:  now.UTC(),
		}})
		s.recordFire(ctx, fp)
		return existing.ID, nil
	case !errors.Is(err, provider.ErrNotFound):
		return types.AlertID{}, err
	}

	alert, events := types.NewAlert(raw.ExternalID, types.Source(raw.Source), types.ParseSeverity(raw.Severity), raw.Labels, raw.Summary, now)
	if err := s.alerts.Save(ctx, alert); err != nil {
		return types.AlertID{}, err
	}
	s.metrics.received.WithLabelValues(string(alert.Severity)).Inc()
	s.publish(ctx, events)
	s.recordFire(ctx, fp)

	if s.grouper != nil {
		if _, err := s.grouper.Assign(ctx, alert); err != nil {
			s.logger.Warn("failed to group alert", "alert_id", alert.ID, "err", err)
		}
	}

	if err := s.enqueueFirstStep(ctx, alert, now); err != nil {
		return types.AlertID{}, err
	}
	return alert.ID, nil
}

// resolveByFingerprint handles an inbound resolution signal. Unknown
// fingerprints fail with ErrNotFound; the alert was never seen firing.
func (s *Service) resolveByFingerprint(ctx context.Context, fp types.Fingerprint, source string, now time.Time) (types.AlertID, error) {
	alert, err := s.alerts.FindByFingerprint(ctx, fp)
	if err != nil {
		return types.AlertID{}, err
	}
	if err := s.applyResolve(ctx, alert, "source:"+source, now); err != nil {
		return types.AlertID{}, err
	}
	return alert.ID, nil
}

// enqueueFirstStep routes the alert to a policy and schedules its first
// escalation step. An unrouted alert is stored but never escalates.
func (s *Service) enqueueFirstStep(ctx context.Context, alert *types.Alert, now time.Time) error {
	policyID, ok := s.router.Match(alert.Labels)
	if !ok {
		s.logger.Debug("no route matched", "alert_id", alert.ID)
		return nil
	}
	policy, err := s.policies.Get(ctx, policyID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			s.logger.Warn("route references unknown policy", "policy_id", policyID)
			return nil
		}
		return err
	}
	first := policy.FirstStep()
	pending := provider.NewPendingEscalation(alert.ID, policy.ID, first.Order, 0, now.Add(first.Wait()))
	if err := s.escalations.Enqueue(ctx, pending); err != nil {
		return err
	}
	s.metrics.escalations.Inc()
	return nil
}

// Acknowledge marks an alert as owned by a user and cancels its pending
// escalations. Acknowledging an acknowledged alert is a no-op; a resolved
// one fails with types.ErrAlertAlreadyResolved.
func (s *Service) Acknowledge(ctx context.Context, id types.AlertID, userID types.UserID, now time.Time) error {
	mu := s.lock(id.String())
	mu.Lock()
	defer mu.Unlock()

	alert, err := s.alerts.Get(ctx, id)
	if err != nil {
		return err
	}
	events, err := alert.Acknowledge(userID, now)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := s.escalations.CancelForAlert(ctx, alert.ID); err != nil {
		return err
	}
	if err := s.alerts.Save(ctx, alert); err != nil {
		return err
	}
	s.metrics.acknowledged.Inc()
	s.publish(ctx, events)
	return nil
}

// Resolve marks an alert resolved. Resolving a resolved alert is a no-op.
func (s *Service) Resolve(ctx context.Context, id types.AlertID, resolvedBy string, now time.Time) error {
	mu := s.lock(id.String())
	mu.Lock()
	defer mu.Unlock()

	alert, err := s.alerts.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.applyResolve(ctx, alert, resolvedBy, now)
}

func (s *Service) applyResolve(ctx context.Context, alert *types.Alert, resolvedBy string, now time.Time) error {
	events := alert.Resolve(resolvedBy, now)
	if len(events) == 0 {
		return nil
	}
	if err := s.escalations.CancelForAlert(ctx, alert.ID); err != nil {
		return err
	}
	if err := s.alerts.Save(ctx, alert); err != nil {
		return err
	}
	s.metrics.resolved.Inc()
	s.publish(ctx, events)

	if s.noise != nil {
		err := s.noise.RecordResponse(ctx, alert.Fingerprint, alert.CreatedAt, alert.AcknowledgedAt, *alert.ResolvedAt)
		if err != nil {
			s.logger.Warn("failed to record noise response", "alert_id", alert.ID, "err", err)
		}
	}
	return nil
}

// Get loads a single alert.
func (s *Service) Get(ctx context.Context, id types.AlertID) (*types.Alert, error) {
	return s.alerts.Get(ctx, id)
}

// List queries alerts by filter.
func (s *Service) List(ctx context.Context, f types.AlertFilter) ([]*types.Alert, error) {
	return s.alerts.List(ctx, f)
}

// recordFire is best effort: a broken noise counter must not fail ingestion.
func (s *Service) recordFire(ctx context.Context, fp types.Fingerprint) {
	if s.noise == nil {
		return
	}
	if err := s.noise.RecordFire(ctx, fp); err != nil {
		s.logger.Warn("failed to record fire", "fingerprint", fp, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, events []types.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish events", "err", err, "count", len(events))
	}
}
