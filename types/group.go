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

import "time"

// AlertGroup clusters temporally close alerts that share a grouping key. The
// root alert is always the first member. Membership is append-only; there is
// no eviction — a group closes implicitly once its window has passed, which
// repositories enforce at query time.
type AlertGroup struct {
	ID             GroupID   `json:"id"`
	RootAlertID    AlertID   `json:"root_alert_id"`
	MemberAlertIDs []AlertID `json:"member_alert_ids"`
	GroupingKey    string    `json:"grouping_key"`
	WindowSecs     int64     `json:"window_secs"`
	CreatedAt      time.Time `json:"created_at"`
	LastAddedAt    time.Time `json:"last_added_at"`
}

// NewAlertGroup creates a group with the root alert as its sole member.
func NewAlertGroup(root AlertID, key string, window time.Duration, now time.Time) *AlertGroup {
	return &AlertGroup{
		ID:             NewGroupID(),
		RootAlertID:    root,
		MemberAlertIDs: []AlertID{root},
		GroupingKey:    key,
		WindowSecs:     int64(window / time.Second),
		CreatedAt:      now,
		LastAddedAt:    now,
	}
}

// AddMember appends an alert and extends the group's active window.
func (g *AlertGroup) AddMember(id AlertID, now time.Time) {
	g.MemberAlertIDs = append(g.MemberAlertIDs, id)
	g.LastAddedAt = now
}

// Window returns the grouping window as a duration.
func (g *AlertGroup) Window() time.Duration {
	return time.Duration(g.WindowSecs) * time.Second
}

// GroupingKey computes the cluster key for an alert: "<source>:<service>"
// when the service label is present, else the bare source.
func GroupingKey(a *Alert) string {
	if service, ok := a.Labels["service"]; ok {
		return string(a.Source) + ":" + service
	}
	return string(a.Source)
}

// ShouldGroup reports whether an alert created at newCreatedAt falls inside
// the group's window. The comparison is strict: an alert exactly at the
// boundary opens a new group.
func ShouldGroup(g *AlertGroup, newCreatedAt time.Time, window time.Duration) bool {
	return newCreatedAt.Before(g.LastAddedAt.Add(window))
}
