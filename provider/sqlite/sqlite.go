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

// Package sqlite implements every provider port on a single SQLite
// database. Aggregates are stored as JSON blobs next to the columns queries
// filter on; timestamps are fixed-width RFC 3339 UTC strings so that string
// comparison orders like time comparison.
package sqlite

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/schedule"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds. Every stored
// timestamp uses it, in UTC, so the (status, fires_at) index scans compare
// correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	status TEXT NOT NULL,
	severity TEXT NOT NULL,
	source TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON alerts(fingerprint);

CREATE TABLE IF NOT EXISTS alert_groups (
	id TEXT PRIMARY KEY,
	grouping_key TEXT NOT NULL,
	data TEXT NOT NULL,
	last_added_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_groups_key ON alert_groups(grouping_key);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_policies (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	alert_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	target TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	next_attempt_at TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_pending
	ON notifications(status, next_attempt_at);

CREATE TABLE IF NOT EXISTS escalation_steps (
	id TEXT PRIMARY KEY,
	alert_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	step_order INTEGER NOT NULL,
	repetition INTEGER NOT NULL DEFAULT 0,
	fires_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_escalation_steps_pending
	ON escalation_steps(status, fires_at);

CREATE TABLE IF NOT EXISTS noise_scores (
	fingerprint TEXT PRIMARY KEY,
	total_fires INTEGER NOT NULL DEFAULT 0,
	dismissed_count INTEGER NOT NULL DEFAULT 0,
	acted_on_count INTEGER NOT NULL DEFAULT 0,
	avg_time_to_ack_secs INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	data TEXT NOT NULL,
	occurred_at TEXT NOT NULL
);
`

// DB bundles every store over one SQLite database.
type DB struct {
	db *sqlx.DB

	Alerts        *AlertStore
	Groups        *GroupStore
	Schedules     *ScheduleStore
	Policies      *PolicyStore
	Users         *UserStore
	Teams         *TeamStore
	Noise         *NoiseStore
	Escalations   *EscalationStore
	Notifications *NotificationStore
	Events        *EventStore
}

// Interface checks. The schedule repository is declared by its consumer.
var (
	_ provider.AlertRepository   = (*AlertStore)(nil)
	_ provider.GroupRepository   = (*GroupStore)(nil)
	_ provider.PolicyRepository  = (*PolicyStore)(nil)
	_ provider.NoiseRepository   = (*NoiseStore)(nil)
	_ provider.UserRepository    = (*UserStore)(nil)
	_ provider.TeamRepository    = (*TeamStore)(nil)
	_ provider.EscalationQueue   = (*EscalationStore)(nil)
	_ provider.NotificationQueue = (*NotificationStore)(nil)
	_ provider.EventPublisher    = (*EventStore)(nil)
	_ provider.EventLog          = (*EventStore)(nil)
	_ schedule.Repository        = (*ScheduleStore)(nil)
)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// under concurrent receivers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger = logger.With("component", "sqlite")
	return &DB{
		db:            db,
		Alerts:        &AlertStore{db: db},
		Groups:        &GroupStore{db: db},
		Schedules:     &ScheduleStore{db: db},
		Policies:      &PolicyStore{db: db},
		Users:         &UserStore{db: db},
		Teams:         &TeamStore{db: db},
		Noise:         &NoiseStore{db: db},
		Escalations:   &EscalationStore{db: db},
		Notifications: &NotificationStore{db: db},
		Events:        &EventStore{db: db, logger: logger},
	}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
