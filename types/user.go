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

// Role is a user's permission level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// User holds the per-channel contact identifiers the notification workers
// resolve targets against.
type User struct {
	ID         UserID  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	SlackID    string  `json:"slack_id,omitempty"`
	DiscordID  string  `json:"discord_id,omitempty"`
	TelegramID string  `json:"telegram_id,omitempty"`
	WhatsAppID string  `json:"whatsapp_id,omitempty"`
	Phone      *Phone  `json:"phone,omitempty"`
	Role       Role    `json:"role"`
}

// NewUser creates a user with no contact details attached.
func NewUser(username, email string, role Role) *User {
	return &User{
		ID:       NewUserID(),
		Username: username,
		Email:    email,
		Role:     role,
	}
}

// CanBeOnCall reports whether the user has at least one reachable contact
// besides email.
func (u *User) CanBeOnCall() bool {
	return u.Phone != nil || u.SlackID != "" || u.DiscordID != "" ||
		u.TelegramID != "" || u.WhatsAppID != ""
}

// ContactFor returns the user's address for a channel, or "" when none is
// configured.
func (u *User) ContactFor(c Channel) string {
	switch c {
	case ChannelSlack:
		return u.SlackID
	case ChannelDiscord:
		return u.DiscordID
	case ChannelTelegram:
		return u.TelegramID
	case ChannelWhatsApp:
		return u.WhatsAppID
	case ChannelSMS, ChannelPhone:
		if u.Phone != nil {
			return u.Phone.String()
		}
		return ""
	case ChannelEmail:
		return u.Email
	default:
		return ""
	}
}

// Team is a named set of users an escalation target can fan out to.
type Team struct {
	ID      TeamID   `json:"id"`
	Name    string   `json:"name"`
	Members []UserID `json:"members"`
}

// NewTeam creates a team; at least one member is required.
func NewTeam(name string, members []UserID) (*Team, error) {
	if len(members) == 0 {
		return nil, ErrTeamRequiresMember
	}
	return &Team{ID: NewTeamID(), Name: name, Members: members}, nil
}
