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

// Package schedule implements timezone-aware on-call rotation with a stack
// of manual overrides. Who is on call at an instant is a pure function of
// the schedule and the instant, so replicas and restarts always agree.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/rouselabs/rouse/types"
)

// ErrInvalidTimezone is returned when a schedule names an unknown IANA
// timezone.
var ErrInvalidTimezone = errors.New("invalid timezone")

// RotationKind discriminates the closed set of rotation cadences.
type RotationKind string

const (
	RotationDaily  RotationKind = "daily"
	RotationWeekly RotationKind = "weekly"
	RotationCustom RotationKind = "custom"
)

// Rotation is the cadence at which participants hand off. Secs is only set
// for custom rotations.
type Rotation struct {
	Kind RotationKind `json:"kind"`
	Secs int64        `json:"secs,omitempty"`
}

// Daily rotates every 24 hours.
func Daily() Rotation { return Rotation{Kind: RotationDaily} }

// Weekly rotates every 7 days.
func Weekly() Rotation { return Rotation{Kind: RotationWeekly} }

// Custom rotates at an arbitrary period.
func Custom(d time.Duration) Rotation {
	return Rotation{Kind: RotationCustom, Secs: int64(d / time.Second)}
}

// Duration returns the length of one shift.
func (r Rotation) Duration() time.Duration {
	switch r.Kind {
	case RotationWeekly:
		return 7 * 24 * time.Hour
	case RotationCustom:
		return time.Duration(r.Secs) * time.Second
	default:
		return 24 * time.Hour
	}
}

// HandoffTime is stored for future anchoring of shift changes. The rotation
// epoch does not currently consult it.
type HandoffTime struct {
	Weekday time.Weekday `json:"weekday"`
	Hour    int          `json:"hour"`
	Minute  int          `json:"minute"`
}

// Override pins a user as on-call for the half-open interval [Start, End).
type Override struct {
	ID     types.OverrideID `json:"id"`
	UserID types.UserID     `json:"user_id"`
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
}

// ActiveAt reports whether t falls inside the override's interval.
func (o Override) ActiveAt(t time.Time) bool {
	return !t.Before(o.Start) && t.Before(o.End)
}

// epoch anchors every rotation: Monday 2020-01-06 00:00:00 in the
// schedule's timezone. A fixed anchor makes (schedule, instant) fully
// determine the on-call user. Changing it silently reassigns every shift.
func epoch(loc *time.Location) time.Time {
	return time.Date(2020, time.January, 6, 0, 0, 0, 0, loc)
}

// Schedule is the on-call rotation aggregate. Participant order defines the
// rotation order.
type Schedule struct {
	ID           types.ScheduleID `json:"id"`
	Name         string           `json:"name"`
	Timezone     string           `json:"timezone"`
	Rotation     Rotation         `json:"rotation"`
	Participants []types.UserID   `json:"participants"`
	Handoff      HandoffTime      `json:"handoff"`
	Overrides    []Override       `json:"overrides,omitempty"`

	loc *time.Location
}

// New builds a schedule, validating the timezone and requiring at least one
// participant.
func New(name, timezone string, rotation Rotation, participants []types.UserID) (*Schedule, error) {
	if len(participants) == 0 {
		return nil, types.ErrScheduleRequiresParticipant
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidTimezone, timezone)
	}
	return &Schedule{
		ID:           types.NewScheduleID(),
		Name:         name,
		Timezone:     timezone,
		Rotation:     rotation,
		Participants: participants,
		loc:          loc,
	}, nil
}

// Location resolves the schedule's timezone, falling back to UTC when the
// stored name no longer loads (a repository round-trip does not
// re-validate). Deliberately no memoization: cached schedules are shared
// between readers, so this must not write through the receiver.
func (s *Schedule) Location() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// clone returns a copy that is safe to mutate while readers still hold the
// original. Every write to a cached schedule goes through a clone which
// replaces the cache entry once persisted.
func (s *Schedule) clone() *Schedule {
	c := *s
	c.Participants = append([]types.UserID(nil), s.Participants...)
	c.Overrides = append([]Override(nil), s.Overrides...)
	return &c
}

// WhoIsOnCall resolves the on-call user at an instant. Overrides win over
// the rotation, scanned in reverse insertion order so the last one added
// takes precedence on overlap.
func (s *Schedule) WhoIsOnCall(at time.Time) types.UserID {
	for i := len(s.Overrides) - 1; i >= 0; i-- {
		if s.Overrides[i].ActiveAt(at) {
			return s.Overrides[i].UserID
		}
	}
	return s.Participants[s.rotationIndex(at)]
}

// NextOnCall returns the participant one shift after the rotation position
// at the given instant. Overrides do not apply: they pin the present, not
// the future.
func (s *Schedule) NextOnCall(at time.Time) types.UserID {
	idx := (s.rotationIndex(at) + 1) % len(s.Participants)
	return s.Participants[idx]
}

// rotationIndex computes the participant index from whole shifts elapsed
// since the fixed epoch. Euclidean modulo keeps instants before the epoch
// on a valid index.
func (s *Schedule) rotationIndex(at time.Time) int {
	elapsed := int64(at.Sub(epoch(s.Location())) / time.Second)
	shifts := elapsed / int64(s.Rotation.Duration()/time.Second)
	n := int64(len(s.Participants))
	idx := shifts % n
	if idx < 0 {
		idx += n
	}
	return int(idx)
}

// AddOverride appends an override and reports the resulting on-call change.
// The interval must be non-empty.
func (s *Schedule) AddOverride(o Override, now time.Time) ([]types.Event, error) {
	if !o.End.After(o.Start) {
		return nil, types.ErrInvalidOverridePeriod
	}
	s.Overrides = append(s.Overrides, o)
	return []types.Event{types.OnCallChanged{
		ScheduleID: s.ID,
		NewUser:    o.UserID,
		OccurredAt: now.UTC(),
	}}, nil
}

// RemoveOverride deletes an override by id. When found, the current on-call
// is recomputed and reported; an unknown id is a no-op.
func (s *Schedule) RemoveOverride(id types.OverrideID, now time.Time) []types.Event {
	for i, o := range s.Overrides {
		if o.ID == id {
			s.Overrides = append(s.Overrides[:i], s.Overrides[i+1:]...)
			return []types.Event{types.OnCallChanged{
				ScheduleID: s.ID,
				NewUser:    s.WhoIsOnCall(now),
				OccurredAt: now.UTC(),
			}}
		}
	}
	return nil
}
