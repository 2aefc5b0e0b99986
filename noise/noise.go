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

// Package noise tracks how operators respond to each alert fingerprint and
// flags the ones that are mostly dismissed.
package noise

import (
	"context"
	"log/slog"
	"time"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Service records fires and operator responses per fingerprint.
type Service struct {
	repo   provider.NoiseRepository
	logger *slog.Logger
}

// NewService creates a noise service.
func NewService(repo provider.NoiseRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With("component", "noise")}
}

// RecordFire counts one firing of a fingerprint.
func (s *Service) RecordFire(ctx context.Context, fp types.Fingerprint) error {
	score, err := s.repo.Get(ctx, fp)
	if err != nil {
		return err
	}
	score.RecordFire()
	return s.repo.Save(ctx, score)
}

// RecordResponse classifies and records the operator response to a resolved
// alert. With an acknowledgement, the ack and resolve latencies are
// classified separately and the ack latency feeds the running mean. Without
// one, the total time to resolution is classified on its own and the mean
// is left untouched.
func (s *Service) RecordResponse(ctx context.Context, fp types.Fingerprint, createdAt time.Time, acknowledgedAt *time.Time, resolvedAt time.Time) error {
	score, err := s.repo.Get(ctx, fp)
	if err != nil {
		return err
	}

	if acknowledgedAt != nil {
		timeToAck := acknowledgedAt.Sub(createdAt)
		timeToResolve := resolvedAt.Sub(*acknowledgedAt)
		if types.ClassifyResponse(timeToAck, &timeToResolve) {
			score.RecordDismiss()
		} else {
			score.RecordAction()
		}
		score.UpdateAvgAckTime(timeToAck)
	} else {
		total := resolvedAt.Sub(createdAt)
		if types.ClassifyResponse(total, nil) {
			score.RecordDismiss()
		} else {
			score.RecordAction()
		}
	}

	return s.repo.Save(ctx, score)
}

// NoisyAlerts returns the scores with at least minFires fires, noisiest
// first.
func (s *Service) NoisyAlerts(ctx context.Context, minFires uint64) ([]*types.NoiseScore, error) {
	return s.repo.Noisiest(ctx, minFires)
}
