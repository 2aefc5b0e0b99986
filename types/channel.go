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

import "fmt"

// Channel is a delivery mechanism for notifications. The set is closed; the
// string values are the wire and storage tokens.
type Channel string

const (
	ChannelSlack    Channel = "slack"
	ChannelDiscord  Channel = "discord"
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelPhone    Channel = "phone"
	ChannelEmail    Channel = "email"
	ChannelWebhook  Channel = "webhook"
)

// Channels lists every known channel.
var Channels = []Channel{
	ChannelSlack,
	ChannelDiscord,
	ChannelTelegram,
	ChannelWhatsApp,
	ChannelSMS,
	ChannelPhone,
	ChannelEmail,
	ChannelWebhook,
}

// ParseChannel validates a channel token.
func ParseChannel(s string) (Channel, error) {
	for _, c := range Channels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

func (c Channel) String() string { return string(c) }
