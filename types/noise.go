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

package types

import "time"

// Noise classification thresholds.
const (
	// noiseThreshold marks a fingerprint as noise.
	noiseThreshold = 0.80
	// suppressionThreshold is high enough to suggest suppressing the alert.
	suppressionThreshold = 0.95
	// reflexiveAckWindow: acks faster than this are reflexive dismissals.
	reflexiveAckWindow = 5 * time.Second
	// trivialResolveWindow: resolutions faster than this after ack mean
	// nothing was actually done.
	trivialResolveWindow = 60 * time.Second
)

// NoiseScore tracks, per fingerprint, how often an alert fires and how
// operators respond to it. Invariant: DismissedCount+ActedOnCount never
// exceeds TotalFires, because a response is only recorded for a prior fire.
type NoiseScore struct {
	Fingerprint      Fingerprint `json:"fingerprint"`
	TotalFires       uint64      `json:"total_fires"`
	DismissedCount   uint64      `json:"dismissed_count"`
	ActedOnCount     uint64      `json:"acted_on_count"`
	AvgTimeToAckSecs int64       `json:"avg_time_to_ack_secs"`
}

// NewNoiseScore returns a zeroed score for a fingerprint.
func NewNoiseScore(fp Fingerprint) *NoiseScore {
	return &NoiseScore{Fingerprint: fp}
}

// RecordFire counts one more firing of this fingerprint.
func (n *NoiseScore) RecordFire() { n.TotalFires++ }

// RecordDismiss counts a response classified as a dismissal.
func (n *NoiseScore) RecordDismiss() { n.DismissedCount++ }

// RecordAction counts a response classified as genuine action.
func (n *NoiseScore) RecordAction() { n.ActedOnCount++ }

// UpdateAvgAckTime folds one ack duration into the running mean over all
// recorded responses. Call after the corresponding RecordDismiss or
// RecordAction so the denominator includes the new response.
func (n *NoiseScore) UpdateAvgAckTime(d time.Duration) {
	count := int64(n.DismissedCount + n.ActedOnCount)
	secs := int64(d / time.Second)
	if count == 0 {
		n.AvgTimeToAckSecs = secs
		return
	}
	n.AvgTimeToAckSecs = (n.AvgTimeToAckSecs*(count-1) + secs) / count
}

// Score is the dismissed fraction, from 0.0 (useful) to 1.0 (pure noise).
func (n *NoiseScore) Score() float64 {
	if n.TotalFires == 0 {
		return 0
	}
	return float64(n.DismissedCount) / float64(n.TotalFires)
}

// IsNoise reports whether the fingerprint is mostly dismissed.
func (n *NoiseScore) IsNoise() bool { return n.Score() > noiseThreshold }

// SuggestSuppression reports whether the fingerprint is dismissed so
// consistently that suppressing it should be suggested.
func (n *NoiseScore) SuggestSuppression() bool { return n.Score() > suppressionThreshold }

// AvgTimeToAck returns the running mean ack latency.
func (n *NoiseScore) AvgTimeToAck() time.Duration {
	return time.Duration(n.AvgTimeToAckSecs) * time.Second
}

// ClassifyResponse reports whether an ack/resolve pair was a dismissal: an
// ack within 5s is reflexive, and a resolve within 60s of the ack means
// nothing was actually done. Anything else counts as action.
func ClassifyResponse(timeToAck time.Duration, timeToResolve *time.Duration) bool {
	if timeToAck < reflexiveAckWindow {
		return true
	}
	if timeToResolve != nil && *timeToResolve < trivialResolveWindow {
		return true
	}
	return false
}
