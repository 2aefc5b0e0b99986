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

package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event type tags. These are wire-stable: subscribers and the events table
// key off them, so they must never change across versions.
const (
	EventAlertReceived       = "alert.received"
	EventAlertDeduplicated   = "alert.deduplicated"
	EventAlertAcknowledged   = "alert.acknowledged"
	EventAlertEscalated      = "alert.escalated"
	EventAlertResolved       = "alert.resolved"
	EventNotificationSent    = "notification.sent"
	EventNotificationFailed  = "notification.failed"
	EventOnCallChanged       = "oncall.changed"
	EventEscalationExhausted = "escalation.exhausted"
)

// Event is the closed union of domain events. Every state-changing operation
// returns the events it produced; services persist first, then publish.
type Event interface {
	// Type returns the stable discriminator tag.
	Type() string
	// Time returns when the event occurred, in UTC.
	Time() time.Time
}

// MarshalEvent serializes an event as a JSON envelope carrying the
// discriminator under "type" alongside the payload fields.
func MarshalEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(strconv.Quote(e.Type()))
	return json.Marshal(fields)
}

// AlertReceived is emitted when a previously unseen alert enters the system.
type AlertReceived struct {
	AlertID    AlertID   `json:"alert_id"`
	Source     string    `json:"source"`
	Severity   Severity  `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AlertReceived) Type() string    { return EventAlertReceived }
func (e AlertReceived) Time() time.Time { return e.OccurredAt }

// AlertDeduplicated is emitted when an inbound alert matched an existing
// fingerprint and was folded into it.
type AlertDeduplicated struct {
	AlertID     AlertID     `json:"alert_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func (e AlertDeduplicated) Type() string    { return EventAlertDeduplicated }
func (e AlertDeduplicated) Time() time.Time { return e.OccurredAt }

// AlertAcknowledged is emitted when a user takes ownership of an alert.
type AlertAcknowledged struct {
	AlertID    AlertID   `json:"alert_id"`
	UserID     UserID    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AlertAcknowledged) Type() string    { return EventAlertAcknowledged }
func (e AlertAcknowledged) Time() time.Time { return e.OccurredAt }

// AlertEscalated is emitted when an escalation step fires.
type AlertEscalated struct {
	AlertID    AlertID   `json:"alert_id"`
	Step       int       `json:"step"`
	Targets    []string  `json:"targets"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AlertEscalated) Type() string    { return EventAlertEscalated }
func (e AlertEscalated) Time() time.Time { return e.OccurredAt }

// AlertResolved is emitted when an alert reaches its terminal state.
type AlertResolved struct {
	AlertID    AlertID   `json:"alert_id"`
	ResolvedBy string    `json:"resolved_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AlertResolved) Type() string    { return EventAlertResolved }
func (e AlertResolved) Time() time.Time { return e.OccurredAt }

// NotificationSent is emitted after a channel adapter delivered a
// notification. ExternalID carries delivery metadata such as a message id.
type NotificationSent struct {
	AlertID    AlertID   `json:"alert_id"`
	Channel    Channel   `json:"channel"`
	Target     string    `json:"target"`
	ExternalID string    `json:"external_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e NotificationSent) Type() string    { return EventNotificationSent }
func (e NotificationSent) Time() time.Time { return e.OccurredAt }

// NotificationFailed is emitted on each failed delivery attempt. Terminal is
// set when the queue row was moved to dead.
type NotificationFailed struct {
	AlertID    AlertID   `json:"alert_id"`
	Channel    Channel   `json:"channel"`
	Target     string    `json:"target"`
	Error      string    `json:"error"`
	Terminal   bool      `json:"terminal,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e NotificationFailed) Type() string    { return EventNotificationFailed }
func (e NotificationFailed) Time() time.Time { return e.OccurredAt }

// OnCallChanged is emitted when an override changes who is on call.
type OnCallChanged struct {
	ScheduleID   ScheduleID `json:"schedule_id"`
	NewUser      UserID     `json:"new_user"`
	PreviousUser *UserID    `json:"previous_user,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

func (e OnCallChanged) Type() string    { return EventOnCallChanged }
func (e OnCallChanged) Time() time.Time { return e.OccurredAt }

// EscalationExhausted is emitted when a policy has no further step and no
// repeat budget left for an unacknowledged alert.
type EscalationExhausted struct {
	AlertID    AlertID   `json:"alert_id"`
	PolicyID   PolicyID  `json:"policy_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e EscalationExhausted) Type() string    { return EventEscalationExhausted }
func (e EscalationExhausted) Time() time.Time { return e.OccurredAt }
