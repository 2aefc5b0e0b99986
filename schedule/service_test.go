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

package schedule

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

type fakeRepo struct {
	schedules map[types.ScheduleID]*Schedule
	saves     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{schedules: map[types.ScheduleID]*Schedule{}}
}

func (r *fakeRepo) Save(_ context.Context, s *Schedule) error {
	r.schedules[s.ID] = s
	r.saves++
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id types.ScheduleID) (*Schedule, error) {
	s, ok := r.schedules[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return s, nil
}

func (r *fakeRepo) List(_ context.Context) ([]*Schedule, error) {
	out := make([]*Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id types.ScheduleID) error {
	delete(r.schedules, id)
	return nil
}

type fakePublisher struct {
	events []types.Event
}

func (p *fakePublisher) Publish(_ context.Context, events ...types.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakePublisher) {
	t.Helper()
	repo := newFakeRepo()
	pub := &fakePublisher{}
	return NewService(repo, pub, slog.New(slog.DiscardHandler)), repo, pub
}

func TestServiceCreateAndGet(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)
	require.Contains(t, repo.schedules, sched.ID)

	got, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Equal(t, sched, got)

	_, err = svc.Get(ctx, types.NewScheduleID())
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestServiceGetServesFromCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)

	// Drop the row behind the cache's back; the cached copy still serves.
	delete(repo.schedules, sched.ID)
	got, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Equal(t, sched.ID, got.ID)
}

func TestServiceDeleteEvictsCache(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, sched.ID))
	_, err = svc.Get(ctx, sched.ID)
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestServiceAddOverridePersistsThenPublishes(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)

	x := types.NewUserID()
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	ovr, err := svc.AddOverride(ctx, sched.ID, x, now, now.Add(time.Hour), now)
	require.NoError(t, err)
	require.Equal(t, x, ovr.UserID)

	require.Len(t, repo.schedules[sched.ID].Overrides, 1)
	require.Len(t, pub.events, 1)
	require.Equal(t, types.EventOnCallChanged, pub.events[0].Type())

	got, err := svc.OnCall(ctx, sched.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, x, got)
}

func TestServiceAddOverrideInvalidPeriod(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)
	savesBefore := repo.saves

	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.AddOverride(ctx, sched.ID, types.NewUserID(), now, now, now)
	require.ErrorIs(t, err, types.ErrInvalidOverridePeriod)
	require.Equal(t, savesBefore, repo.saves)
	require.Empty(t, pub.events)
}

func TestServiceOverrideWritesDoNotMutateSnapshots(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)

	snapshot, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)

	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.AddOverride(ctx, sched.ID, types.NewUserID(), now, now.Add(time.Hour), now)
	require.NoError(t, err)

	// The snapshot handed out before the write stays untouched; the next
	// read observes the override.
	require.Empty(t, snapshot.Overrides)
	got, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, got.Overrides, 1)
}

func TestServiceOnCallConcurrentWithOverrideWrites(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user := types.NewUserID()
	sched, err := svc.Create(ctx, "primary", "Europe/Zurich", Daily(), []types.UserID{user})
	require.NoError(t, err)

	const iterations = 500
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if _, err := svc.OnCall(ctx, sched.ID, start.Add(time.Duration(i)*time.Minute)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			now := start.Add(time.Duration(i) * time.Minute)
			if _, err := svc.AddOverride(ctx, sched.ID, user, now, now.Add(time.Minute), now); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	got, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, got.Overrides, iterations)
}

func TestServiceRemoveOverrideUnknownIsNoop(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "primary", "UTC", Daily(), []types.UserID{types.NewUserID()})
	require.NoError(t, err)
	savesBefore := repo.saves

	now := time.Now().UTC()
	require.NoError(t, svc.RemoveOverride(ctx, sched.ID, types.NewOverrideID(), now))
	require.Equal(t, savesBefore, repo.saves)
	require.Empty(t, pub.events)
}
