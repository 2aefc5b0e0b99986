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
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// cacheSize bounds the read cache; schedules are small and few.
const cacheSize = 256

// Repository stores schedule aggregates. Save upserts by id.
type Repository interface {
	Save(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id types.ScheduleID) (*Schedule, error)
	List(ctx context.Context) ([]*Schedule, error)
	Delete(ctx context.Context, id types.ScheduleID) error
}

// Service is the schedule application service: CRUD, the on-call query, and
// override management. Reads go through an LRU cache; every write path
// replaces the cache entry with a fresh copy, so readers hold immutable
// snapshots and never see a schedule older than the process's own last
// write.
type Service struct {
	repo   Repository
	pub    provider.EventPublisher
	cache  *lru.Cache[types.ScheduleID, *Schedule]
	logger *slog.Logger
}

// NewService creates a schedule service.
func NewService(repo Repository, pub provider.EventPublisher, logger *slog.Logger) *Service {
	cache, _ := lru.New[types.ScheduleID, *Schedule](cacheSize)
	return &Service{
		repo:   repo,
		pub:    pub,
		cache:  cache,
		logger: logger.With("component", "schedule"),
	}
}

// Create validates and persists a new schedule.
func (s *Service) Create(ctx context.Context, name, timezone string, rotation Rotation, participants []types.UserID) (*Schedule, error) {
	sched, err := New(name, timezone, rotation, participants)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sched); err != nil {
		return nil, err
	}
	s.cache.Add(sched.ID, sched)
	return sched, nil
}

// Upsert persists a schedule built elsewhere, keeping the cache in step.
// Configuration provisioning uses it to reconcile declared schedules by
// name without discarding their overrides.
func (s *Service) Upsert(ctx context.Context, sched *Schedule) error {
	if err := s.repo.Save(ctx, sched); err != nil {
		return err
	}
	s.cache.Add(sched.ID, sched)
	return nil
}

// Get loads a schedule, serving from cache when possible. The returned
// schedule is shared with other readers and must not be mutated; writes go
// through clone-and-replace below.
func (s *Service) Get(ctx context.Context, id types.ScheduleID) (*Schedule, error) {
	if sched, ok := s.cache.Get(id); ok {
		return sched, nil
	}
	sched, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Resolve the timezone once while this copy is still private.
	sched.loc = sched.Location()
	s.cache.Add(id, sched)
	return sched, nil
}

// List returns all schedules, bypassing the cache.
func (s *Service) List(ctx context.Context) ([]*Schedule, error) {
	return s.repo.List(ctx)
}

// Delete removes a schedule.
func (s *Service) Delete(ctx context.Context, id types.ScheduleID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

// OnCall resolves who is on call for a schedule at an instant.
func (s *Service) OnCall(ctx context.Context, id types.ScheduleID, at time.Time) (types.UserID, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return types.UserID{}, err
	}
	return sched.WhoIsOnCall(at), nil
}

// AddOverride pins a user on call for [start, end) and publishes the
// resulting on-call change.
func (s *Service) AddOverride(ctx context.Context, id types.ScheduleID, userID types.UserID, start, end, now time.Time) (*Override, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sched = sched.clone()
	o := Override{ID: types.NewOverrideID(), UserID: userID, Start: start, End: end}
	events, err := sched.AddOverride(o, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sched); err != nil {
		return nil, err
	}
	s.cache.Add(sched.ID, sched)
	s.publish(ctx, events)
	return &o, nil
}

// RemoveOverride deletes an override; an unknown id is a no-op.
func (s *Service) RemoveOverride(ctx context.Context, id types.ScheduleID, overrideID types.OverrideID, now time.Time) error {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sched = sched.clone()
	events := sched.RemoveOverride(overrideID, now)
	if len(events) == 0 {
		return nil
	}
	if err := s.repo.Save(ctx, sched); err != nil {
		return err
	}
	s.cache.Add(sched.ID, sched)
	s.publish(ctx, events)
	return nil
}

// publish delivers events after the state change is durable. Delivery
// failures are logged, not returned: the write has already happened.
func (s *Service) publish(ctx context.Context, events []types.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.pub.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish events", "err", err, "count", len(events))
	}
}
