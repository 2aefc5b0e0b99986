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
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// EscalationStore implements provider.EscalationQueue over the
// escalation_steps table.
type EscalationStore struct {
	db *sqlx.DB
}

// Enqueue inserts a pending step.
func (s *EscalationStore) Enqueue(ctx context.Context, p *provider.PendingEscalation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_steps (id, alert_id, policy_id, step_order, repetition, fires_at, status)
		VALUES (?, ?, ?, ?, ?, ?, 'pending')`,
		p.ID, p.AlertID.String(), p.PolicyID.String(), p.StepOrder, p.Repetition, fmtTime(p.FiresAt),
	)
	return err
}

// PollDue returns pending rows whose fires_at has passed, soonest first.
func (s *EscalationStore) PollDue(ctx context.Context, now time.Time) ([]*provider.PendingEscalation, error) {
	type row struct {
		ID         string `db:"id"`
		AlertID    string `db:"alert_id"`
		PolicyID   string `db:"policy_id"`
		StepOrder  int    `db:"step_order"`
		Repetition int    `db:"repetition"`
		FiresAt    string `db:"fires_at"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, alert_id, policy_id, step_order, repetition, fires_at
		FROM escalation_steps
		WHERE status = 'pending' AND fires_at <= ?
		ORDER BY fires_at ASC`, fmtTime(now))
	if err != nil {
		return nil, err
	}

	out := make([]*provider.PendingEscalation, 0, len(rows))
	for _, r := range rows {
		alertID, err := types.ParseAlertID(r.AlertID)
		if err != nil {
			return nil, fmt.Errorf("escalation row %s: %w", r.ID, err)
		}
		policyID, err := types.ParsePolicyID(r.PolicyID)
		if err != nil {
			return nil, fmt.Errorf("escalation row %s: %w", r.ID, err)
		}
		firesAt, err := parseTime(r.FiresAt)
		if err != nil {
			return nil, fmt.Errorf("escalation row %s: %w", r.ID, err)
		}
		out = append(out, &provider.PendingEscalation{
			ID:         r.ID,
			AlertID:    alertID,
			PolicyID:   policyID,
			StepOrder:  r.StepOrder,
			Repetition: r.Repetition,
			FiresAt:    firesAt,
			Status:     provider.StatusPending,
		})
	}
	return out, nil
}

// MarkFired moves a row to its terminal fired state.
func (s *EscalationStore) MarkFired(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE escalation_steps SET status = 'fired' WHERE id = ?`, id)
	return err
}

// CancelForAlert cancels every pending row of the alert. Fired and
// cancelled rows are untouched, so the call is idempotent.
func (s *EscalationStore) CancelForAlert(ctx context.Context, id types.AlertID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE escalation_steps SET status = 'cancelled' WHERE alert_id = ? AND status = 'pending'`,
		id.String())
	return err
}
