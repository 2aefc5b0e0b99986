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
	"fmt"

	"github.com/google/uuid"
)

// Typed UUID wrappers. Using distinct types for each aggregate keeps an
// AlertID from ever being passed where a ScheduleID is expected.

type (
	// AlertID identifies an Alert aggregate.
	AlertID struct{ uuid.UUID }
	// UserID identifies a user.
	UserID struct{ uuid.UUID }
	// ScheduleID identifies an on-call schedule.
	ScheduleID struct{ uuid.UUID }
	// PolicyID identifies an escalation policy.
	PolicyID struct{ uuid.UUID }
	// TeamID identifies a team.
	TeamID struct{ uuid.UUID }
	// GroupID identifies an alert group.
	GroupID struct{ uuid.UUID }
	// OverrideID identifies a schedule override.
	OverrideID struct{ uuid.UUID }
)

func NewAlertID() AlertID       { return AlertID{uuid.New()} }
func NewUserID() UserID         { return UserID{uuid.New()} }
func NewScheduleID() ScheduleID { return ScheduleID{uuid.New()} }
func NewPolicyID() PolicyID     { return PolicyID{uuid.New()} }
func NewTeamID() TeamID         { return TeamID{uuid.New()} }
func NewGroupID() GroupID       { return GroupID{uuid.New()} }
func NewOverrideID() OverrideID { return OverrideID{uuid.New()} }

func parseID(kind, s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %s %q", ErrInvalidID, kind, s)
	}
	return u, nil
}

func ParseAlertID(s string) (AlertID, error) {
	u, err := parseID("alert id", s)
	return AlertID{u}, err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseID("user id", s)
	return UserID{u}, err
}

func ParseScheduleID(s string) (ScheduleID, error) {
	u, err := parseID("schedule id", s)
	return ScheduleID{u}, err
}

func ParsePolicyID(s string) (PolicyID, error) {
	u, err := parseID("policy id", s)
	return PolicyID{u}, err
}

func ParseTeamID(s string) (TeamID, error) {
	u, err := parseID("team id", s)
	return TeamID{u}, err
}

func ParseGroupID(s string) (GroupID, error) {
	u, err := parseID("group id", s)
	return GroupID{u}, err
}

func ParseOverrideID(s string) (OverrideID, error) {
	u, err := parseID("override id", s)
	return OverrideID{u}, err
}
