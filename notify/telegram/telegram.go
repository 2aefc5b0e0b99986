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

// Package telegram delivers notifications to Telegram chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Notifier sends messages through a Telegram bot. The target is a numeric
// chat id.
type Notifier struct {
	bot    *tele.Bot
	logger *slog.Logger
}

// New creates a Telegram notifier. The bot is created offline; the token is
// only exercised on the first send.
func New(token string, logger *slog.Logger) (*Notifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: bot, logger: logger.With("notifier", "telegram")}, nil
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() types.Channel { return types.ChannelTelegram }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, p *provider.PendingNotification) (string, error) {
	chatID, err := strconv.ParseInt(p.Target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram chat id %q: %w", p.Target, notify.ErrInvalidTarget)
	}
	msg, err := n.bot.Send(tele.ChatID(chatID), p.Payload)
	if err != nil {
		return "", n.classify(err)
	}
	n.logger.Debug("sent telegram message", "chat_id", chatID, "message_id", msg.ID)
	return strconv.Itoa(msg.ID), nil
}

func (n *Notifier) classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return fmt.Errorf("telegram: %s: %w", err, notify.ErrRateLimited)
	}
	if errors.Is(err, tele.ErrChatNotFound) || errors.Is(err, tele.ErrBlockedByUser) {
		return fmt.Errorf("telegram: %s: %w", err, notify.ErrInvalidTarget)
	}
	return fmt.Errorf("telegram: %s: %w", err, notify.ErrDeliveryFailed)
}
