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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/schedule"
	"github.com/rouselabs/rouse/types"
)

// ScheduleStore implements schedule.Repository.
type ScheduleStore struct {
	db *sqlx.DB
}

// Save upserts the schedule.
func (s *ScheduleStore) Save(ctx context.Context, sched *schedule.Schedule) error {
	data, err := json.Marshal(sched)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		sched.ID.String(), string(data),
	)
	return err
}

// Get loads a schedule by id.
func (s *ScheduleStore) Get(ctx context.Context, id types.ScheduleID) (*schedule.Schedule, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM schedules WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}
	return decodeSchedule(data)
}

// List returns all schedules.
func (s *ScheduleStore) List(ctx context.Context) ([]*schedule.Schedule, error) {
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, `SELECT data FROM schedules`); err != nil {
		return nil, err
	}
	out := make([]*schedule.Schedule, 0, len(rows))
	for _, data := range rows {
		sched, err := decodeSchedule(data)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, nil
}

// Delete removes a schedule.
func (s *ScheduleStore) Delete(ctx context.Context, id types.ScheduleID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id.String())
	return err
}

func decodeSchedule(data string) (*schedule.Schedule, error) {
	var sched schedule.Schedule
	if err := json.Unmarshal([]byte(data), &sched); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &sched, nil
}
