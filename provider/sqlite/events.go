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

package sqlite

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// EventStore implements provider.EventPublisher by appending events to the
// events table. In-process subscribers are fanned out to after the insert;
// a subscriber never observes an event that was not durably stored.
type EventStore struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu   sync.RWMutex
	subs []func(types.Event)
}

// Subscribe registers an in-process observer for published events. The
// callback must not block.
func (s *EventStore) Subscribe(fn func(types.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Publish stores the events and fans them out to subscribers.
func (s *EventStore) Publish(ctx context.Context, events ...types.Event) error {
	for _, e := range events {
		data, err := types.MarshalEvent(e)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO events (event_type, data, occurred_at)
			VALUES (?, ?, ?)`,
			e.Type(), string(data), fmtTime(e.Time()))
		if err != nil {
			return err
		}
	}

	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, fn := range subs {
		for _, e := range events {
			fn(e)
		}
	}
	return nil
}

// Recent implements provider.EventLog: the newest events, most recent
// first.
func (s *EventStore) Recent(ctx context.Context, limit int) ([]provider.StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []provider.StoredEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, event_type, data, occurred_at
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	return rows, err
}
