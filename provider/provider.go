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

// Package provider defines the persistence and messaging ports of the
// engine, plus the rows of the two timer queues. Implementations live in
// sub-packages.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/types"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// QueueStatus is the lifecycle state of a queue row. Sent, fired, dead and
// cancelled are terminal; failed rows are re-promoted to pending once the
// retry policy has rewritten next_attempt_at.
type QueueStatus string

const (
	StatusPending   QueueStatus = "pending"
	StatusSent      QueueStatus = "sent"
	StatusFired     QueueStatus = "fired"
	StatusFailed    QueueStatus = "failed"
	StatusDead      QueueStatus = "dead"
	StatusCancelled QueueStatus = "cancelled"
)

// PendingEscalation is one scheduled escalation step for an alert. Row ids
// are ULIDs so that id order roughly follows creation order.
type PendingEscalation struct {
	ID         string         `json:"id"`
	AlertID    types.AlertID  `json:"alert_id"`
	PolicyID   types.PolicyID `json:"policy_id"`
	StepOrder  int            `json:"step_order"`
	Repetition int            `json:"repetition"`
	FiresAt    time.Time      `json:"fires_at"`
	Status     QueueStatus    `json:"status"`
}

// NewPendingEscalation schedules a policy step for an alert.
func NewPendingEscalation(alertID types.AlertID, policyID types.PolicyID, stepOrder, repetition int, firesAt time.Time) *PendingEscalation {
	return &PendingEscalation{
		ID:         ulid.Make().String(),
		AlertID:    alertID,
		PolicyID:   policyID,
		StepOrder:  stepOrder,
		Repetition: repetition,
		FiresAt:    firesAt,
		Status:     StatusPending,
	}
}

// PendingNotification is one outbound delivery unit: a payload for a single
// target on a single channel.
type PendingNotification struct {
	ID            string        `json:"id"`
	AlertID       types.AlertID `json:"alert_id"`
	Channel       types.Channel `json:"channel"`
	Target        string        `json:"target"`
	Payload       string        `json:"payload"`
	Status        QueueStatus   `json:"status"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	RetryCount    int           `json:"retry_count"`
	LastError     string        `json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewPendingNotification enqueues a payload for immediate delivery.
func NewPendingNotification(alertID types.AlertID, channel types.Channel, target, payload string, now time.Time) *PendingNotification {
	return &PendingNotification{
		ID:            ulid.Make().String(),
		AlertID:       alertID,
		Channel:       channel,
		Target:        target,
		Payload:       payload,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// AlertRepository stores alert aggregates. Save upserts by id.
type AlertRepository interface {
	Save(ctx context.Context, a *types.Alert) error
	Get(ctx context.Context, id types.AlertID) (*types.Alert, error)
	FindByFingerprint(ctx context.Context, fp types.Fingerprint) (*types.Alert, error)
	List(ctx context.Context, f types.AlertFilter) ([]*types.Alert, error)
}

// GroupRepository stores alert groups. FindLatest returns the most recently
// extended group for a key; callers decide whether its window is still open.
type GroupRepository interface {
	Save(ctx context.Context, g *types.AlertGroup) error
	Get(ctx context.Context, id types.GroupID) (*types.AlertGroup, error)
	FindLatest(ctx context.Context, groupingKey string) (*types.AlertGroup, error)
}

// PolicyRepository stores escalation policies.
type PolicyRepository interface {
	Save(ctx context.Context, p *escalation.Policy) error
	Get(ctx context.Context, id types.PolicyID) (*escalation.Policy, error)
	List(ctx context.Context) ([]*escalation.Policy, error)
	Delete(ctx context.Context, id types.PolicyID) error
}

// NoiseRepository stores per-fingerprint noise scores. Get returns a zeroed
// score rather than ErrNotFound for unseen fingerprints.
type NoiseRepository interface {
	Get(ctx context.Context, fp types.Fingerprint) (*types.NoiseScore, error)
	Save(ctx context.Context, n *types.NoiseScore) error
	// Noisiest returns scores with at least minFires fires, highest score
	// first.
	Noisiest(ctx context.Context, minFires uint64) ([]*types.NoiseScore, error)
}

// UserRepository stores users; the notification worker resolves channel
// addresses through it.
type UserRepository interface {
	Save(ctx context.Context, u *types.User) error
	Get(ctx context.Context, id types.UserID) (*types.User, error)
	List(ctx context.Context) ([]*types.User, error)
}

// TeamRepository stores teams for target fan-out.
type TeamRepository interface {
	Save(ctx context.Context, t *types.Team) error
	Get(ctx context.Context, id types.TeamID) (*types.Team, error)
}

// EscalationQueue is the escalation_steps timer queue.
type EscalationQueue interface {
	Enqueue(ctx context.Context, p *PendingEscalation) error
	// PollDue returns pending rows with fires_at <= now, soonest first.
	PollDue(ctx context.Context, now time.Time) ([]*PendingEscalation, error)
	MarkFired(ctx context.Context, id string) error
	// CancelForAlert cancels every pending row of the alert. Idempotent;
	// fired and cancelled rows are left alone.
	CancelForAlert(ctx context.Context, id types.AlertID) error
}

// NotificationQueue is the notifications timer queue.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n *PendingNotification) error
	// PollPending returns pending rows with next_attempt_at <= now, soonest
	// first.
	PollPending(ctx context.Context, now time.Time) ([]*PendingNotification, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed records the error, bumps retry_count and re-marks the row
	// pending at nextAttempt.
	MarkFailed(ctx context.Context, id, errMsg string, nextAttempt time.Time) error
	MarkDead(ctx context.Context, id, errMsg string) error
}

// EventPublisher delivers domain events to subscribers after the state
// change they describe has been persisted.
type EventPublisher interface {
	Publish(ctx context.Context, events ...types.Event) error
}

// StoredEvent is one persisted row of the event feed.
type StoredEvent struct {
	ID         int64  `db:"id" json:"id"`
	EventType  string `db:"event_type" json:"event_type"`
	Data       string `db:"data" json:"-"`
	OccurredAt string `db:"occurred_at" json:"occurred_at"`
}

// MarshalJSON inlines the stored payload instead of re-escaping it.
func (e StoredEvent) MarshalJSON() ([]byte, error) {
	type alias StoredEvent
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias(e), json.RawMessage(e.Data)})
}

// EventLog reads back the persisted event feed, newest first.
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]StoredEvent, error)
}
