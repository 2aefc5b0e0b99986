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

// Package webhook delivers notifications as JSON POSTs to arbitrary URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Message is the JSON object posted to webhook targets.
type Message struct {
	Version string        `json:"version"`
	AlertID types.AlertID `json:"alert_id"`
	Payload string        `json:"payload"`
	SentAt  time.Time     `json:"sent_at"`
}

// Notifier posts notifications to the target URL. Webhooks are assumed to
// respond 2xx on success; 5xx responses are treated as recoverable.
type Notifier struct {
	client *http.Client
	logger *slog.Logger
}

// New returns a webhook notifier. A nil client uses a 10 second timeout.
func New(client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{client: client, logger: logger.With("notifier", "webhook")}
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() types.Channel { return types.ChannelWebhook }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, p *provider.PendingNotification) (string, error) {
	u, err := url.Parse(p.Target)
	if err != nil || u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("webhook url %q: %w", p.Target, notify.ErrInvalidTarget)
	}

	body, err := json.Marshal(Message{
		Version: "1",
		AlertID: p.AlertID,
		Payload: p.Payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook post: %s: %w", err, notify.ErrChannelUnavailable)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "", nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("webhook status %d: %w", resp.StatusCode, notify.ErrRateLimited)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("webhook status %d: %w", resp.StatusCode, notify.ErrChannelUnavailable)
	default:
		return "", fmt.Errorf("webhook status %d: %w", resp.StatusCode, notify.ErrDeliveryFailed)
	}
}
