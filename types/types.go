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

// Package types defines the domain model of the alerting engine: identifiers,
// value objects, the Alert and AlertGroup aggregates, the noise score, and
// the domain events every state-changing operation emits.
//
// Aggregates are pure and synchronous. They never touch the clock or any
// I/O: `now` is always a parameter, and state-changing operations return the
// events they produced instead of publishing them, so the surrounding service
// can order persistence before publication.
package types

import (
	"strings"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ParseSeverity maps an inbound severity string onto the closed set. Unknown
// values degrade to info rather than failing: monitoring sources disagree
// wildly about severity vocabulary.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Status is the lifecycle state of an alert. It only ever advances along
// firing -> acknowledged -> resolved (acknowledged may be skipped); resolved
// is terminal.
type Status string

const (
	StatusFiring       Status = "firing"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Source names the monitoring system an alert came from.
type Source string

func (s Source) String() string { return string(s) }

// RawAlert is the inbound shape delivered by source parsers, before any
// domain validation. Only a status of "resolved" (case-insensitive) is
// special; everything else means firing.
type RawAlert struct {
	ExternalID string `json:"external_id"`
	Source     string `json:"source"`
	Severity   string `json:"severity"`
	Labels     Labels `json:"labels"`
	Summary    string `json:"summary"`
	Status     string `json:"status"`
}

// Resolved reports whether the raw alert is a resolution signal.
func (r RawAlert) Resolved() bool {
	return strings.EqualFold(r.Status, "resolved")
}

// Alert is the aggregate root for a single incident. It is created on the
// first non-resolved ingestion of an unseen fingerprint, mutated only through
// Acknowledge and Resolve, and never deleted.
type Alert struct {
	ID             AlertID     `json:"id"`
	ExternalID     string      `json:"external_id"`
	Source         Source      `json:"source"`
	Severity       Severity    `json:"severity"`
	Status         Status      `json:"status"`
	Fingerprint    Fingerprint `json:"fingerprint"`
	Labels         Labels      `json:"labels"`
	Summary        string      `json:"summary"`
	CreatedAt      time.Time   `json:"created_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *UserID     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// NewAlert creates a firing alert with a fresh id and a fingerprint derived
// from the labels, and returns the AlertReceived event.
func NewAlert(externalID string, source Source, severity Severity, labels Labels, summary string, now time.Time) (*Alert, []Event) {
	a := &Alert{
		ID:          NewAlertID(),
		ExternalID:  externalID,
		Source:      source,
		Severity:    severity,
		Status:      StatusFiring,
		Fingerprint: FingerprintLabels(labels),
		Labels:      labels,
		Summary:     summary,
		CreatedAt:   now,
	}
	events := []Event{AlertReceived{
		AlertID:    a.ID,
		Source:     string(source),
		Severity:   severity,
		OccurredAt: now.UTC(),
	}}
	return a, events
}

// Acknowledge transitions firing -> acknowledged. Acknowledging an already
// acknowledged alert is a no-op; acknowledging a resolved alert fails with
// ErrAlertAlreadyResolved.
func (a *Alert) Acknowledge(userID UserID, now time.Time) ([]Event, error) {
	switch a.Status {
	case StatusResolved:
		return nil, ErrAlertAlreadyResolved
	case StatusAcknowledged:
		return nil, nil
	default:
		a.Status = StatusAcknowledged
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = &userID
		return []Event{AlertAcknowledged{
			AlertID:    a.ID,
			UserID:     userID,
			OccurredAt: now.UTC(),
		}}, nil
	}
}

// Resolve transitions firing or acknowledged to resolved. Resolving an
// already resolved alert is an idempotent no-op; Resolve never fails.
func (a *Alert) Resolve(resolvedBy string, now time.Time) []Event {
	if a.Status == StatusResolved {
		return nil
	}
	a.Status = StatusResolved
	a.ResolvedAt = &now
	return []Event{AlertResolved{
		AlertID:    a.ID,
		ResolvedBy: resolvedBy,
		OccurredAt: now.UTC(),
	}}
}

// AlertFilter selects alerts in list queries.
type AlertFilter struct {
	Status   Status
	Severity Severity
	Source   string
	Search   string
	Page     int
	PerPage  int
}
