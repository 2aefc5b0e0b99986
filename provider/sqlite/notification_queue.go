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

// NotificationStore implements provider.NotificationQueue over the
// notifications table.
type NotificationStore struct {
	db *sqlx.DB
}

// Enqueue inserts a pending notification.
func (s *NotificationStore) Enqueue(ctx context.Context, n *provider.PendingNotification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, alert_id, channel, target, payload, status, next_attempt_at, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		n.ID, n.AlertID.String(), string(n.Channel), n.Target, n.Payload,
		fmtTime(n.NextAttemptAt), n.RetryCount, fmtTime(n.CreatedAt),
	)
	return err
}

// PollPending returns pending rows whose next_attempt_at has passed,
// soonest first.
func (s *NotificationStore) PollPending(ctx context.Context, now time.Time) ([]*provider.PendingNotification, error) {
	type row struct {
		ID            string `db:"id"`
		AlertID       string `db:"alert_id"`
		Channel       string `db:"channel"`
		Target        string `db:"target"`
		Payload       string `db:"payload"`
		NextAttemptAt string `db:"next_attempt_at"`
		RetryCount    int    `db:"retry_count"`
		LastError     string `db:"last_error"`
		CreatedAt     string `db:"created_at"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, alert_id, channel, target, payload, next_attempt_at, retry_count, last_error, created_at
		FROM notifications
		WHERE status = 'pending' AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC`, fmtTime(now))
	if err != nil {
		return nil, err
	}

	out := make([]*provider.PendingNotification, 0, len(rows))
	for _, r := range rows {
		alertID, err := types.ParseAlertID(r.AlertID)
		if err != nil {
			return nil, fmt.Errorf("notification row %s: %w", r.ID, err)
		}
		channel, err := types.ParseChannel(r.Channel)
		if err != nil {
			return nil, fmt.Errorf("notification row %s: %w", r.ID, err)
		}
		nextAt, err := parseTime(r.NextAttemptAt)
		if err != nil {
			return nil, fmt.Errorf("notification row %s: %w", r.ID, err)
		}
		createdAt, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("notification row %s: %w", r.ID, err)
		}
		out = append(out, &provider.PendingNotification{
			ID:            r.ID,
			AlertID:       alertID,
			Channel:       channel,
			Target:        r.Target,
			Payload:       r.Payload,
			Status:        provider.StatusPending,
			NextAttemptAt: nextAt,
			RetryCount:    r.RetryCount,
			LastError:     r.LastError,
			CreatedAt:     createdAt,
		})
	}
	return out, nil
}

// MarkSent moves a row to its terminal sent state.
func (s *NotificationStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'sent' WHERE id = ?`, id)
	return err
}

// MarkFailed records the error and reschedules the row. The status goes
// straight back to pending; next_attempt_at is what delays the retry.
func (s *NotificationStore) MarkFailed(ctx context.Context, id, errMsg string, nextAttempt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'pending',
			retry_count = retry_count + 1,
			last_error = ?,
			next_attempt_at = ?
		WHERE id = ?`,
		errMsg, fmtTime(nextAttempt), id)
	return err
}

// MarkDead moves a row to its terminal dead state.
func (s *NotificationStore) MarkDead(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'dead', last_error = ? WHERE id = ?`, errMsg, id)
	return err
}
