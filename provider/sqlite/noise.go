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
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/rouselabs/rouse/types"
)

// NoiseStore implements provider.NoiseRepository. Scores are flat columns,
// not a JSON blob: the noisiest query sorts on a ratio of two of them.
type NoiseStore struct {
	db *sqlx.DB
}

type noiseRow struct {
	Fingerprint      string `db:"fingerprint"`
	TotalFires       uint64 `db:"total_fires"`
	DismissedCount   uint64 `db:"dismissed_count"`
	ActedOnCount     uint64 `db:"acted_on_count"`
	AvgTimeToAckSecs int64  `db:"avg_time_to_ack_secs"`
}

func (r noiseRow) score() *types.NoiseScore {
	return &types.NoiseScore{
		Fingerprint:      types.Fingerprint(r.Fingerprint),
		TotalFires:       r.TotalFires,
		DismissedCount:   r.DismissedCount,
		ActedOnCount:     r.ActedOnCount,
		AvgTimeToAckSecs: r.AvgTimeToAckSecs,
	}
}

// Get returns the score for a fingerprint, zeroed when unseen.
func (s *NoiseStore) Get(ctx context.Context, fp types.Fingerprint) (*types.NoiseScore, error) {
	var row noiseRow
	err := s.db.GetContext(ctx, &row, `
		SELECT fingerprint, total_fires, dismissed_count, acted_on_count, avg_time_to_ack_secs
		FROM noise_scores WHERE fingerprint = ?`, fp.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewNoiseScore(fp), nil
		}
		return nil, err
	}
	return row.score(), nil
}

// Save upserts the score.
func (s *NoiseStore) Save(ctx context.Context, n *types.NoiseScore) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO noise_scores (fingerprint, total_fires, dismissed_count, acted_on_count, avg_time_to_ack_secs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			total_fires = excluded.total_fires,
			dismissed_count = excluded.dismissed_count,
			acted_on_count = excluded.acted_on_count,
			avg_time_to_ack_secs = excluded.avg_time_to_ack_secs`,
		n.Fingerprint.String(), n.TotalFires, n.DismissedCount, n.ActedOnCount, n.AvgTimeToAckSecs,
	)
	return err
}

// Noisiest returns scores with at least minFires fires, highest dismissed
// fraction first.
func (s *NoiseStore) Noisiest(ctx context.Context, minFires uint64) ([]*types.NoiseScore, error) {
	var rows []noiseRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT fingerprint, total_fires, dismissed_count, acted_on_count, avg_time_to_ack_secs
		FROM noise_scores
		WHERE total_fires >= ?
		ORDER BY CAST(dismissed_count AS REAL) / total_fires DESC`, minFires)
	if err != nil {
		return nil, err
	}
	out := make([]*types.NoiseScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.score())
	}
	return out, nil
}
