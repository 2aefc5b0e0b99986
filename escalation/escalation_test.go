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

package escalation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/types"
)

func mustStep(t *testing.T, order int, wait time.Duration) Step {
	t.Helper()
	s, err := NewStep(order, wait, []Target{UserTarget(types.NewUserID())}, []types.Channel{types.ChannelSlack})
	require.NoError(t, err)
	return s
}

func TestNewPolicyRequiresStep(t *testing.T) {
	_, err := NewPolicy("p", nil, 0)
	require.ErrorIs(t, err, types.ErrPolicyRequiresStep)
}

func TestStepValidation(t *testing.T) {
	_, err := NewStep(0, time.Minute, nil, []types.Channel{types.ChannelSlack})
	require.ErrorIs(t, err, types.ErrStepRequiresTarget)

	_, err = NewStep(0, time.Minute, []Target{UserTarget(types.NewUserID())}, nil)
	require.ErrorIs(t, err, types.ErrStepRequiresChannel)
}

func TestAddStep(t *testing.T) {
	p, err := NewPolicy("p", []Step{mustStep(t, 0, time.Minute)}, 0)
	require.NoError(t, err)

	require.ErrorIs(t, p.AddStep(Step{}), types.ErrStepRequiresTarget)
	require.NoError(t, p.AddStep(mustStep(t, 1, 5*time.Minute)))
	require.Len(t, p.Steps, 2)
}

func TestNextStepAdvances(t *testing.T) {
	p, err := NewPolicy("p", []Step{
		mustStep(t, 0, time.Minute),
		mustStep(t, 1, 5*time.Minute),
		mustStep(t, 2, 15*time.Minute),
	}, 0)
	require.NoError(t, err)

	s, ok := p.NextStep(0, 0)
	require.True(t, ok)
	require.Equal(t, 1, s.Order)

	s, ok = p.NextStep(1, 0)
	require.True(t, ok)
	require.Equal(t, 2, s.Order)
}

func TestNextStepWrapsWhileRepeating(t *testing.T) {
	p, err := NewPolicy("p", []Step{
		mustStep(t, 0, time.Minute),
		mustStep(t, 1, 5*time.Minute),
	}, 2)
	require.NoError(t, err)

	s, ok := p.NextStep(1, 0)
	require.True(t, ok)
	require.Equal(t, 0, s.Order)

	s, ok = p.NextStep(1, 1)
	require.True(t, ok)
	require.Equal(t, 0, s.Order)

	_, ok = p.NextStep(1, 2)
	require.False(t, ok)
}

func TestNextStepExhausted(t *testing.T) {
	p, err := NewPolicy("p", []Step{
		mustStep(t, 0, time.Minute),
		mustStep(t, 1, 5*time.Minute),
	}, 0)
	require.NoError(t, err)

	_, ok := p.NextStep(1, 0)
	require.False(t, ok)
}

func TestTargetString(t *testing.T) {
	user := types.NewUserID()
	require.Equal(t, "user:"+user.String(), UserTarget(user).String())

	team := types.NewTeamID()
	require.Equal(t, "team:"+team.String(), TeamTarget(team).String())

	sched := types.NewScheduleID()
	require.Equal(t, "oncall:"+sched.String()+":next", OnCallTarget(sched, ModifierNext).String())
}

func TestParseTarget(t *testing.T) {
	user := types.NewUserID()
	got, err := ParseTarget("user:" + user.String())
	require.NoError(t, err)
	require.Equal(t, UserTarget(user), got)

	sched := types.NewScheduleID()
	got, err = ParseTarget("oncall:" + sched.String())
	require.NoError(t, err)
	require.Equal(t, OnCallTarget(sched, ModifierCurrent), got)

	got, err = ParseTarget("oncall:" + sched.String() + ":next")
	require.NoError(t, err)
	require.Equal(t, OnCallTarget(sched, ModifierNext), got)

	for _, s := range []string{
		"",
		"user:",
		"user:nope",
		"robot:" + user.String(),
		"oncall:" + sched.String() + ":tomorrow",
	} {
		_, err := ParseTarget(s)
		require.Error(t, err, "target %q", s)
	}
}

func TestTargetJSONRoundTrip(t *testing.T) {
	sched := types.NewScheduleID()
	in := OnCallTarget(sched, ModifierCurrent)

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Target
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)
	require.Nil(t, out.UserID)
	require.Equal(t, TargetOnCall, out.Kind)
}
