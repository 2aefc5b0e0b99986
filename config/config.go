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

// Package config loads and validates the YAML configuration file: server
// and storage settings, worker cadences, channel receivers, and the
// provisioned routing table with its policies and schedules.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v2"

	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/types"
)

// Secret is a string that must not leak into logs or marshalled output.
type Secret string

// MarshalYAML implements yaml.Marshaler, redacting the value.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s != "" {
		return "<secret>", nil
	}
	return "", nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Secret
	return unmarshal((*plain)(s))
}

// DefaultConfig are the values used for fields left empty in the file.
var DefaultConfig = Config{
	Server: ServerConfig{
		ListenAddress: ":9097",
	},
	Data: DataConfig{
		Path: "data/rouse.db",
	},
	Grouping: GroupingConfig{
		Window: model.Duration(30 * time.Second),
	},
	Workers: WorkerConfig{
		EscalationInterval:   model.Duration(time.Second),
		NotificationInterval: model.Duration(time.Second),
	},
	Noise: NoiseConfig{
		MinFires: 5,
	},
}

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server,omitempty"`
	Data      DataConfig       `yaml:"data,omitempty"`
	Grouping  GroupingConfig   `yaml:"grouping,omitempty"`
	Workers   WorkerConfig     `yaml:"workers,omitempty"`
	Noise     NoiseConfig      `yaml:"noise,omitempty"`
	Receivers ReceiverConfig   `yaml:"receivers,omitempty"`
	Routes    []RouteConfig    `yaml:"routes,omitempty"`
	Policies  []PolicyConfig   `yaml:"policies,omitempty"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler, applying defaults first.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultConfig
	type plain Config
	return unmarshal((*plain)(c))
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address,omitempty"`
}

// DataConfig holds storage settings.
type DataConfig struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path,omitempty"`
}

// GroupingConfig holds the alert grouping settings.
type GroupingConfig struct {
	Window model.Duration `yaml:"window,omitempty"`
}

// WorkerConfig holds the background worker cadences.
type WorkerConfig struct {
	EscalationInterval   model.Duration `yaml:"escalation_interval,omitempty"`
	NotificationInterval model.Duration `yaml:"notification_interval,omitempty"`
}

// NoiseConfig holds the noise report settings.
type NoiseConfig struct {
	// MinFires is the default fire count below which a fingerprint is
	// excluded from the noise report.
	MinFires uint64 `yaml:"min_fires,omitempty"`
}

// ReceiverConfig enables channel adapters. A channel without its section is
// not configured; notifications for it go dead.
type ReceiverConfig struct {
	Slack    *SlackReceiver    `yaml:"slack,omitempty"`
	Telegram *TelegramReceiver `yaml:"telegram,omitempty"`
	Email    *EmailReceiver    `yaml:"email,omitempty"`
	SMS      *SMSReceiver      `yaml:"sms,omitempty"`
	Webhook  *WebhookReceiver  `yaml:"webhook,omitempty"`
}

// SlackReceiver configures the Slack adapter.
type SlackReceiver struct {
	Token Secret `yaml:"token"`
}

// TelegramReceiver configures the Telegram adapter.
type TelegramReceiver struct {
	Token Secret `yaml:"token"`
}

// EmailReceiver configures the SMTP adapter.
type EmailReceiver struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	From     string `yaml:"from"`
	Username string `yaml:"username,omitempty"`
	Password Secret `yaml:"password,omitempty"`
}

// SMSReceiver configures the SNS-backed SMS adapter. Credentials come from
// the ambient AWS environment.
type SMSReceiver struct {
	Region string `yaml:"region,omitempty"`
}

// WebhookReceiver enables the generic webhook adapter.
type WebhookReceiver struct {
	// Timeout bounds a single delivery attempt.
	Timeout model.Duration `yaml:"timeout,omitempty"`
}

// RouteConfig binds label matchers to a policy declared in this file.
type RouteConfig struct {
	Matchers map[string]string `yaml:"matchers,omitempty"`
	Policy   string            `yaml:"policy"`
}

// PolicyConfig declares a provisioned escalation policy. Policies are
// upserted by name at startup.
type PolicyConfig struct {
	Name        string       `yaml:"name"`
	RepeatCount int          `yaml:"repeat_count,omitempty"`
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig is one step of a provisioned policy. Step order follows file
// order.
type StepConfig struct {
	Wait     model.Duration `yaml:"wait,omitempty"`
	Targets  []string       `yaml:"targets"`
	Channels []string       `yaml:"channels"`
}

// Build converts the declaration into steps, assigning orders by position.
func (p PolicyConfig) Build() ([]escalation.Step, error) {
	steps := make([]escalation.Step, 0, len(p.Steps))
	for i, sc := range p.Steps {
		targets := make([]escalation.Target, 0, len(sc.Targets))
		for _, ts := range sc.Targets {
			target, err := escalation.ParseTarget(ts)
			if err != nil {
				return nil, fmt.Errorf("policy %q step %d: %w", p.Name, i, err)
			}
			targets = append(targets, target)
		}
		channels := make([]types.Channel, 0, len(sc.Channels))
		for _, cs := range sc.Channels {
			channel, err := types.ParseChannel(cs)
			if err != nil {
				return nil, fmt.Errorf("policy %q step %d: %w", p.Name, i, err)
			}
			channels = append(channels, channel)
		}
		step, err := escalation.NewStep(i, time.Duration(sc.Wait), targets, channels)
		if err != nil {
			return nil, fmt.Errorf("policy %q step %d: %w", p.Name, i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ScheduleConfig declares a provisioned on-call schedule, upserted by name
// at startup.
type ScheduleConfig struct {
	Name         string   `yaml:"name"`
	Timezone     string   `yaml:"timezone"`
	Rotation     string   `yaml:"rotation"`
	Participants []string `yaml:"participants"`
}

// BuildRotation parses the rotation declaration: "daily", "weekly", or a
// duration for custom cadences.
func (s ScheduleConfig) BuildRotation() (kind string, period time.Duration, err error) {
	switch s.Rotation {
	case "", "daily":
		return "daily", 0, nil
	case "weekly":
		return "weekly", 0, nil
	default:
		d, err := model.ParseDuration(s.Rotation)
		if err != nil {
			return "", 0, fmt.Errorf("schedule %q: invalid rotation %q", s.Name, s.Rotation)
		}
		return "custom", time.Duration(d), nil
	}
}

// Load parses and validates a YAML configuration.
func Load(s string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict([]byte(s), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads a configuration from disk.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}
	if c.Data.Path == "" {
		return fmt.Errorf("data.path must not be empty")
	}
	if c.Grouping.Window <= 0 {
		return fmt.Errorf("grouping.window must be positive")
	}
	if c.Workers.EscalationInterval <= 0 || c.Workers.NotificationInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}

	names := map[string]bool{}
	for _, p := range c.Policies {
		if p.Name == "" {
			return fmt.Errorf("policy without a name")
		}
		if names[p.Name] {
			return fmt.Errorf("policy %q declared twice", p.Name)
		}
		names[p.Name] = true
		if len(p.Steps) == 0 {
			return fmt.Errorf("policy %q has no steps", p.Name)
		}
		if _, err := p.Build(); err != nil {
			return err
		}
	}
	for i, r := range c.Routes {
		if r.Policy == "" {
			return fmt.Errorf("route %d has no policy", i)
		}
		if !names[r.Policy] {
			return fmt.Errorf("route %d references undeclared policy %q", i, r.Policy)
		}
	}

	schedNames := map[string]bool{}
	for _, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedule without a name")
		}
		if schedNames[s.Name] {
			return fmt.Errorf("schedule %q declared twice", s.Name)
		}
		schedNames[s.Name] = true
		if len(s.Participants) == 0 {
			return fmt.Errorf("schedule %q has no participants", s.Name)
		}
		for _, p := range s.Participants {
			if _, err := types.ParseUserID(p); err != nil {
				return fmt.Errorf("schedule %q participant %q: %w", s.Name, p, err)
			}
		}
		if _, _, err := s.BuildRotation(); err != nil {
			return err
		}
	}

	if c.Receivers.Email != nil {
		if c.Receivers.Email.Host == "" || c.Receivers.Email.From == "" {
			return fmt.Errorf("receivers.email requires host and from")
		}
	}
	return nil
}
