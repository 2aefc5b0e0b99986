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

package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/config"
	"github.com/rouselabs/rouse/dispatch"
	"github.com/rouselabs/rouse/provider/sqlite"
	"github.com/rouselabs/rouse/schedule"
	"github.com/rouselabs/rouse/types"
)

const testConfig = `
receivers:
  slack:
    token: xoxb-test

policies:
  - name: standard
    repeat_count: 1
    steps:
      - targets: ["user:9f1c44d6-5c8e-4d23-b2a1-0c5f3a8e9d10"]
        channels: [slack]

routes:
  - matchers:
      service: api
    policy: standard

schedules:
  - name: primary
    timezone: Europe/Zurich
    rotation: weekly
    participants:
      - "9f1c44d6-5c8e-4d23-b2a1-0c5f3a8e9d10"
`

func applyTestConfig(t *testing.T, db *sqlite.DB, schedules *schedule.Service, router *dispatch.Router, in string) {
	t.Helper()
	cfg, err := config.Load(in)
	require.NoError(t, err)
	require.NoError(t, applyConfig(context.Background(), cfg, db.Policies, schedules, router))
}

func TestApplyConfigProvisions(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	db, err := sqlite.Open(":memory:", logger)
	require.NoError(t, err)
	defer db.Close()

	schedules := schedule.NewService(db.Schedules, db.Events, logger)
	router := dispatch.NewRouter(nil)
	applyTestConfig(t, db, schedules, router, testConfig)

	ctx := context.Background()
	policies, err := db.Policies.List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Equal(t, "standard", policies[0].Name)

	got, ok := router.Match(types.Labels{"service": "api"})
	require.True(t, ok)
	require.Equal(t, policies[0].ID, got)
	_, ok = router.Match(types.Labels{"service": "db"})
	require.False(t, ok)

	scheds, err := schedules.List(ctx)
	require.NoError(t, err)
	require.Len(t, scheds, 1)
	require.Equal(t, "primary", scheds[0].Name)
	require.Equal(t, schedule.RotationWeekly, scheds[0].Rotation.Kind)
}

func TestApplyConfigKeepsIdentitiesAcrossReload(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	db, err := sqlite.Open(":memory:", logger)
	require.NoError(t, err)
	defer db.Close()

	schedules := schedule.NewService(db.Schedules, db.Events, logger)
	router := dispatch.NewRouter(nil)
	applyTestConfig(t, db, schedules, router, testConfig)

	ctx := context.Background()
	before, err := db.Policies.List(ctx)
	require.NoError(t, err)
	schedsBefore, err := schedules.List(ctx)
	require.NoError(t, err)

	// An override added between reloads must survive re-provisioning.
	user := schedsBefore[0].Participants[0]
	now := time.Now()
	_, err = schedules.AddOverride(ctx, schedsBefore[0].ID, user, now, now.Add(time.Hour), now)
	require.NoError(t, err)

	applyTestConfig(t, db, schedules, router, testConfig)

	after, err := db.Policies.List(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, before[0].ID, after[0].ID)

	schedsAfter, err := schedules.List(ctx)
	require.NoError(t, err)
	require.Len(t, schedsAfter, 1)
	require.Equal(t, schedsBefore[0].ID, schedsAfter[0].ID)
	require.Len(t, schedsAfter[0].Overrides, 1)
}

func TestBuildNotifiersFromReceivers(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ns, err := buildNotifiers(context.Background(), config.ReceiverConfig{
		Slack:   &config.SlackReceiver{Token: "xoxb-test"},
		Email:   &config.EmailReceiver{Host: "mail.example.com", From: "rouse@example.com"},
		Webhook: &config.WebhookReceiver{},
	}, false, logger)
	require.NoError(t, err)

	channels := make([]types.Channel, 0, len(ns))
	for _, n := range ns {
		channels = append(channels, n.Channel())
	}
	require.ElementsMatch(t, []types.Channel{types.ChannelSlack, types.ChannelEmail, types.ChannelWebhook}, channels)
}

func TestBuildNotifiersDryRunCoversEveryChannel(t *testing.T) {
	ns, err := buildNotifiers(context.Background(), config.ReceiverConfig{}, true, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.Len(t, ns, len(types.Channels))
}
