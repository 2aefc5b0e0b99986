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

package config

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeRegisterer struct {
	registeredCollectors []prometheus.Collector
}

func (r *fakeRegisterer) Register(prometheus.Collector) error { return nil }

func (r *fakeRegisterer) MustRegister(c ...prometheus.Collector) {
	r.registeredCollectors = append(r.registeredCollectors, c...)
}

func (r *fakeRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestCoordinatorRegistersMetrics(t *testing.T) {
	fr := fakeRegisterer{}
	NewCoordinator("testdata/conf.good.yml", &fr, slog.New(slog.DiscardHandler))
	require.NotEmpty(t, fr.registeredCollectors)
}

func TestCoordinatorNotifiesSubscribers(t *testing.T) {
	c := NewCoordinator("testdata/conf.good.yml", prometheus.NewRegistry(), slog.New(slog.DiscardHandler))

	var got *Config
	c.Subscribe(func(cfg *Config) error {
		got = cfg
		return nil
	})

	require.NoError(t, c.Reload())
	require.NotNil(t, got)
	require.Equal(t, ":9097", got.Server.ListenAddress)
}

func TestCoordinatorFailsReloadWhenSubscriberFails(t *testing.T) {
	c := NewCoordinator("testdata/conf.good.yml", prometheus.NewRegistry(), slog.New(slog.DiscardHandler))
	c.Subscribe(func(*Config) error {
		return errors.New("something happened")
	})
	require.EqualError(t, c.Reload(), "something happened")
}

func TestCoordinatorKeepsConfigOnBadFile(t *testing.T) {
	c := NewCoordinator("testdata/does-not-exist.yml", prometheus.NewRegistry(), slog.New(slog.DiscardHandler))
	require.Error(t, c.Reload())
}
