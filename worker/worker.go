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

// Package worker runs the two background loops that drain the timer queues:
// the escalation worker fires due policy steps into notifications, and the
// notification worker delivers them through channel adapters.
//
// Workers keep no state outside the queue rows. A worker killed between poll
// and completion re-observes the same rows on the next poll, so delivery is
// at least once.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
)

// pollLoop drives runOnce at the worker's interval. Poll failures back off
// exponentially instead of hammering a broken database at full cadence; one
// clean poll resets the backoff.
func pollLoop(ctx context.Context, clock quartz.Clock, interval time.Duration, logger *slog.Logger, runOnce func(context.Context) error) error {
	t := clock.NewTicker(interval)
	defer t.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	bo.MaxInterval = time.Minute

	var holdUntil time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			now := clock.Now()
			if now.Before(holdUntil) {
				continue
			}
			if err := runOnce(ctx); err != nil {
				wait := bo.NextBackOff()
				holdUntil = now.Add(wait)
				logger.Error("poll failed", "err", err, "backoff", wait)
				continue
			}
			bo.Reset()
			holdUntil = time.Time{}
		}
	}
}
