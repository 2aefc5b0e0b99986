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
	"github.com/rouselabs/rouse/types"
)

// GroupStore implements provider.GroupRepository.
type GroupStore struct {
	db *sqlx.DB
}

// Save upserts the group.
func (s *GroupStore) Save(ctx context.Context, g *types.AlertGroup) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_groups (id, grouping_key, data, last_added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			last_added_at = excluded.last_added_at`,
		g.ID.String(), g.GroupingKey, string(data), fmtTime(g.LastAddedAt),
	)
	return err
}

// Get loads a group by id.
func (s *GroupStore) Get(ctx context.Context, id types.GroupID) (*types.AlertGroup, error) {
	return s.scanGroup(ctx, `SELECT data FROM alert_groups WHERE id = ?`, id.String())
}

// FindLatest returns the most recently extended group for a key.
func (s *GroupStore) FindLatest(ctx context.Context, groupingKey string) (*types.AlertGroup, error) {
	return s.scanGroup(ctx, `
		SELECT data FROM alert_groups
		WHERE grouping_key = ?
		ORDER BY last_added_at DESC LIMIT 1`, groupingKey)
}

func (s *GroupStore) scanGroup(ctx context.Context, query, arg string) (*types.AlertGroup, error) {
	var data string
	if err := s.db.GetContext(ctx, &data, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}
	var g types.AlertGroup
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("decode alert group: %w", err)
	}
	return &g, nil
}
