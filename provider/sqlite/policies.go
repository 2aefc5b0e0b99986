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

	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// PolicyStore implements provider.PolicyRepository.
type PolicyStore struct {
	db *sqlx.DB
}

// Save upserts the policy.
func (s *PolicyStore) Save(ctx context.Context, p *escalation.Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalation_policies (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		p.ID.String(), string(data),
	)
	return err
}

// Get loads a policy by id.
func (s *PolicyStore) Get(ctx context.Context, id types.PolicyID) (*escalation.Policy, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM escalation_policies WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}
	return decodePolicy(data)
}

// List returns all policies.
func (s *PolicyStore) List(ctx context.Context) ([]*escalation.Policy, error) {
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, `SELECT data FROM escalation_policies`); err != nil {
		return nil, err
	}
	out := make([]*escalation.Policy, 0, len(rows))
	for _, data := range rows {
		p, err := decodePolicy(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a policy.
func (s *PolicyStore) Delete(ctx context.Context, id types.PolicyID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM escalation_policies WHERE id = ?`, id.String())
	return err
}

func decodePolicy(data string) (*escalation.Policy, error) {
	var p escalation.Policy
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &p, nil
}
