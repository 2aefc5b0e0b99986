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

// Package notify defines the channel adapter contract and the retry policy
// applied to failed deliveries. Concrete adapters live in sub-packages, one
// per channel.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Delivery error classes. Adapters wrap the underlying error with exactly
// one of these; everything except ErrInvalidTarget is retryable.
var (
	ErrChannelUnavailable = errors.New("channel unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrInvalidTarget      = errors.New("invalid target")
)

// Retryable reports whether a delivery error is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrChannelUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrDeliveryFailed)
}

// Notifier delivers a single notification on one channel. Notify returns
// channel-side delivery metadata such as a message id, when the channel
// provides one.
type Notifier interface {
	Channel() types.Channel
	Notify(ctx context.Context, n *provider.PendingNotification) (externalID string, err error)
}

// MaxAttempts is the attempt count after which a row is moved to dead.
const MaxAttempts = 10

const (
	retryBase = 30 * time.Second
	retryCap  = time.Hour
)

// RetryBackoff returns the delay before the next attempt after retryCount
// failures: 30s doubling per failure, capped at an hour.
func RetryBackoff(retryCount int) time.Duration {
	if retryCount >= 7 {
		return retryCap
	}
	return retryBase << retryCount
}

// Registry maps channels to their configured adapters.
type Registry map[types.Channel]Notifier

// NewRegistry indexes adapters by channel. A later adapter for the same
// channel replaces the earlier one.
func NewRegistry(notifiers ...Notifier) Registry {
	r := make(Registry, len(notifiers))
	for _, n := range notifiers {
		r[n.Channel()] = n
	}
	return r
}

// For returns the adapter for a channel.
func (r Registry) For(c types.Channel) (Notifier, bool) {
	n, ok := r[c]
	return n, ok
}
