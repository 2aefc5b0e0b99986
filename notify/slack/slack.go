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

// Package slack delivers notifications to Slack channels and users.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Notifier posts messages through the Slack Web API. The target is a
// channel id or user id.
type Notifier struct {
	client *slack.Client
	logger *slog.Logger
}

// New returns a Slack notifier using the given bot token.
func New(token string, logger *slog.Logger) *Notifier {
	return &Notifier{
		client: slack.New(token),
		logger: logger.With("notifier", "slack"),
	}
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() types.Channel { return types.ChannelSlack }

// Notify implements notify.Notifier. The returned external id is the Slack
// message timestamp.
func (n *Notifier) Notify(ctx context.Context, p *provider.PendingNotification) (string, error) {
	if p.Target == "" {
		return "", fmt.Errorf("empty slack target: %w", notify.ErrInvalidTarget)
	}
	_, ts, err := n.client.PostMessageContext(ctx, p.Target,
		slack.MsgOptionText(p.Payload, false),
	)
	if err != nil {
		return "", n.classify(err)
	}
	n.logger.Debug("posted slack message", "target", p.Target, "ts", ts)
	return ts, nil
}

func (n *Notifier) classify(err error) error {
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return fmt.Errorf("slack: %s: %w", err, notify.ErrRateLimited)
	}
	switch err.Error() {
	case "channel_not_found", "user_not_found", "is_archived":
		return fmt.Errorf("slack: %s: %w", err, notify.ErrInvalidTarget)
	}
	return fmt.Errorf("slack: %s: %w", err, notify.ErrDeliveryFailed)
}
