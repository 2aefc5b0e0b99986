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

const defaultPerPage = 50

// AlertStore implements provider.AlertRepository.
type AlertStore struct {
	db *sqlx.DB
}

// Save upserts the alert, keeping the indexed columns in sync with the
// JSON blob.
func (s *AlertStore) Save(ctx context.Context, a *types.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, fingerprint, status, severity, source, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			severity = excluded.severity,
			data = excluded.data`,
		a.ID.String(), a.Fingerprint.String(), string(a.Status), string(a.Severity),
		a.Source.String(), string(data), fmtTime(a.CreatedAt),
	)
	return err
}

// Get loads an alert by id.
func (s *AlertStore) Get(ctx context.Context, id types.AlertID) (*types.Alert, error) {
	return s.scanAlert(ctx, `SELECT data FROM alerts WHERE id = ?`, id.String())
}

// FindByFingerprint returns the alert with the fingerprint, regardless of
// status: a resolved alert still deduplicates until its labels change.
func (s *AlertStore) FindByFingerprint(ctx context.Context, fp types.Fingerprint) (*types.Alert, error) {
	return s.scanAlert(ctx, `SELECT data FROM alerts WHERE fingerprint = ? LIMIT 1`, fp.String())
}

func (s *AlertStore) scanAlert(ctx context.Context, query, arg string) (*types.Alert, error) {
	var data string
	if err := s.db.GetContext(ctx, &data, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}
	var a types.Alert
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	return &a, nil
}

// List queries alerts by filter, newest first.
func (s *AlertStore) List(ctx context.Context, f types.AlertFilter) ([]*types.Alert, error) {
	query := `SELECT data FROM alerts WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(f.Severity))
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.Search != "" {
		query += ` AND data LIKE ?`
		args = append(args, "%"+f.Search+"%")
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*types.Alert, 0, len(rows))
	for _, data := range rows {
		var a types.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, nil
}
