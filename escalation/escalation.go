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

// Package escalation defines escalation policies: ordered steps of targets
// and channels with wait times, plus the next-step lookup the escalation
// worker drives alerts through.
package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rouselabs/rouse/types"
)

// TargetKind discriminates the closed set of escalation targets.
type TargetKind string

const (
	TargetUser   TargetKind = "user"
	TargetTeam   TargetKind = "team"
	TargetOnCall TargetKind = "oncall"
)

// Modifier selects which shift of a schedule an on-call target refers to.
type Modifier string

const (
	ModifierCurrent Modifier = "current"
	ModifierNext    Modifier = "next"
)

// Target is one recipient of an escalation step: a single user, a whole
// team, or whoever a schedule puts on call. Exactly the fields for its kind
// are set.
type Target struct {
	Kind       TargetKind        `json:"kind"`
	UserID     *types.UserID     `json:"user_id,omitempty"`
	TeamID     *types.TeamID     `json:"team_id,omitempty"`
	ScheduleID *types.ScheduleID `json:"schedule_id,omitempty"`
	Modifier   Modifier          `json:"modifier,omitempty"`
}

// UserTarget targets a single user directly.
func UserTarget(id types.UserID) Target {
	return Target{Kind: TargetUser, UserID: &id}
}

// TeamTarget fans out to every member of a team.
func TeamTarget(id types.TeamID) Target {
	return Target{Kind: TargetTeam, TeamID: &id}
}

// OnCallTarget targets the current or next on-call user of a schedule.
func OnCallTarget(id types.ScheduleID, m Modifier) Target {
	return Target{Kind: TargetOnCall, ScheduleID: &id, Modifier: m}
}

// ParseTarget is the inverse of Target.String: "user:<id>", "team:<id>",
// "oncall:<id>" or "oncall:<id>:<current|next>". The modifier defaults to
// current.
func ParseTarget(s string) (Target, error) {
	parts := strings.Split(s, ":")
	switch TargetKind(parts[0]) {
	case TargetUser:
		if len(parts) != 2 {
			break
		}
		id, err := types.ParseUserID(parts[1])
		if err != nil {
			return Target{}, fmt.Errorf("target %q: %w", s, err)
		}
		return UserTarget(id), nil
	case TargetTeam:
		if len(parts) != 2 {
			break
		}
		id, err := types.ParseTeamID(parts[1])
		if err != nil {
			return Target{}, fmt.Errorf("target %q: %w", s, err)
		}
		return TeamTarget(id), nil
	case TargetOnCall:
		if len(parts) != 2 && len(parts) != 3 {
			break
		}
		id, err := types.ParseScheduleID(parts[1])
		if err != nil {
			return Target{}, fmt.Errorf("target %q: %w", s, err)
		}
		m := ModifierCurrent
		if len(parts) == 3 {
			m = Modifier(parts[2])
			if m != ModifierCurrent && m != ModifierNext {
				return Target{}, fmt.Errorf("target %q: unknown modifier %q", s, parts[2])
			}
		}
		return OnCallTarget(id, m), nil
	}
	return Target{}, fmt.Errorf("malformed target %q", s)
}

// String renders the target for event payloads and logs.
func (t Target) String() string {
	switch t.Kind {
	case TargetUser:
		return "user:" + t.UserID.String()
	case TargetTeam:
		return "team:" + t.TeamID.String()
	case TargetOnCall:
		return fmt.Sprintf("oncall:%s:%s", t.ScheduleID, t.Modifier)
	default:
		return string(t.Kind)
	}
}

// Step is one stage of a policy: after WaitSecs, notify every target on
// every channel.
type Step struct {
	Order    int             `json:"order"`
	WaitSecs int64           `json:"wait_seconds"`
	Targets  []Target        `json:"targets"`
	Channels []types.Channel `json:"channels"`
}

// NewStep builds a validated step.
func NewStep(order int, wait time.Duration, targets []Target, channels []types.Channel) (Step, error) {
	s := Step{
		Order:    order,
		WaitSecs: int64(wait / time.Second),
		Targets:  targets,
		Channels: channels,
	}
	return s, s.validate()
}

func (s Step) validate() error {
	if len(s.Targets) == 0 {
		return types.ErrStepRequiresTarget
	}
	if len(s.Channels) == 0 {
		return types.ErrStepRequiresChannel
	}
	return nil
}

// Wait returns the step's delay as a duration.
func (s Step) Wait() time.Duration {
	return time.Duration(s.WaitSecs) * time.Second
}

// Policy is an ordered sequence of escalation steps. RepeatCount is how many
// times the whole sequence wraps back to the first step before the
// escalation is exhausted.
type Policy struct {
	ID          types.PolicyID `json:"id"`
	Name        string         `json:"name"`
	Steps       []Step         `json:"steps"`
	RepeatCount int            `json:"repeat_count"`
}

// NewPolicy builds a policy; at least one valid step is required.
func NewPolicy(name string, steps []Step, repeatCount int) (*Policy, error) {
	if len(steps) == 0 {
		return nil, types.ErrPolicyRequiresStep
	}
	for _, s := range steps {
		if err := s.validate(); err != nil {
			return nil, err
		}
	}
	return &Policy{
		ID:          types.NewPolicyID(),
		Name:        name,
		Steps:       steps,
		RepeatCount: repeatCount,
	}, nil
}

// AddStep appends a step after validating it.
func (p *Policy) AddStep(s Step) error {
	if err := s.validate(); err != nil {
		return err
	}
	p.Steps = append(p.Steps, s)
	return nil
}

// FirstStep returns the step every new alert starts at.
func (p *Policy) FirstStep() Step { return p.Steps[0] }

// NextStep returns the step after the given zero-based index, wrapping to
// the first step while repetition < RepeatCount. The second return value is
// false when the escalation is exhausted.
func (p *Policy) NextStep(current, repetition int) (Step, bool) {
	if next := current + 1; next < len(p.Steps) {
		return p.Steps[next], true
	}
	if repetition < p.RepeatCount {
		return p.Steps[0], true
	}
	return Step{}, false
}
