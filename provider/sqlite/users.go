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

// UserStore implements provider.UserRepository.
type UserStore struct {
	db *sqlx.DB
}

// Save upserts the user.
func (s *UserStore) Save(ctx context.Context, u *types.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		u.ID.String(), string(data),
	)
	return err
}

// Get loads a user by id.
func (s *UserStore) Get(ctx context.Context, id types.UserID) (*types.User, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM users WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}
	var u types.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// List returns all users.
func (s *UserStore) List(ctx context.Context) ([]*types.User, error) {
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, `SELECT data FROM users`); err != nil {
		return nil, err
	}
	out := make([]*types.User, 0, len(rows))
	for _, data := range rows {
		var u types.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		out = append(out, &u)
	}
	return out, nil
}

// TeamStore implements provider.TeamRepository.
type TeamStore struct {
	db *sqlx.DB
}

// Save upserts the team.
func (s *TeamStore) Save(ctx context.Context, t *types.Team) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		t.ID.String(), string(data),
	)
	return err
}

// Get loads a team by id.
func (s *TeamStore) Get(ctx context.Context, id types.TeamID) (*types.Team, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM teams WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}
	var t types.Team
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	return &t, nil
}
