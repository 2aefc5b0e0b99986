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

// Package email delivers notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Config holds the SMTP relay settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Notifier sends plain-text mail through a single SMTP relay. The target is
// the recipient address.
type Notifier struct {
	conf   Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *slog.Logger
}

// New returns an SMTP notifier.
func New(conf Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		conf:   conf,
		send:   smtp.SendMail,
		logger: logger.With("notifier", "email"),
	}
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() types.Channel { return types.ChannelEmail }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(_ context.Context, p *provider.PendingNotification) (string, error) {
	to, err := mail.ParseAddress(p.Target)
	if err != nil {
		return "", fmt.Errorf("email address %q: %w", p.Target, notify.ErrInvalidTarget)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.conf.From)
	fmt.Fprintf(&b, "To: %s\r\n", to.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", subjectLine(p.Payload))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("\r\n")
	b.WriteString(p.Payload)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if n.conf.Username != "" {
		auth = smtp.PlainAuth("", n.conf.Username, n.conf.Password, n.conf.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.conf.Host, n.conf.Port)
	if err := n.send(addr, auth, n.conf.From, []string{to.Address}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %s: %w", err, notify.ErrChannelUnavailable)
	}
	n.logger.Debug("sent email", "to", to.Address)
	return "", nil
}

// subjectLine uses the first payload line, truncated to a sane header size.
func subjectLine(payload string) string {
	line, _, _ := strings.Cut(payload, "\n")
	if len(line) > 120 {
		line = line[:120]
	}
	return line
}
