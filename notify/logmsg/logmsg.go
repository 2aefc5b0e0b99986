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

// Package logmsg is a notifier that only logs. It stands in for channels
// without a configured adapter, mostly in development.
package logmsg

import (
	"context"
	"log/slog"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Notifier logs every notification at info level and always succeeds.
type Notifier struct {
	channel types.Channel
	logger  *slog.Logger
}

// New returns a logging notifier masquerading as the given channel.
func New(channel types.Channel, logger *slog.Logger) *Notifier {
	return &Notifier{channel: channel, logger: logger.With("notifier", "log")}
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() types.Channel { return n.channel }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(_ context.Context, p *provider.PendingNotification) (string, error) {
	n.logger.Info("notification",
		"channel", n.channel,
		"target", p.Target,
		"alert_id", p.AlertID,
		"payload", p.Payload,
	)
	return "", nil
}
