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
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Coordinator coordinates configuration reloads: it loads the file,
// distributes the new configuration to subscribers, and tracks reload
// outcomes in metrics. Reload is typically bound to SIGHUP.
type Coordinator struct {
	configFilePath string
	logger         *slog.Logger

	mutex       sync.Mutex
	config      *Config
	subscribers []func(*Config) error

	configSuccess     prometheus.Gauge
	configSuccessTime prometheus.Gauge
}

// NewCoordinator returns a coordinator for the file path. It does not load
// the configuration; call Reload for the initial load.
func NewCoordinator(configFilePath string, r prometheus.Registerer, l *slog.Logger) *Coordinator {
	c := &Coordinator{
		configFilePath: configFilePath,
		logger:         l,
	}
	c.registerMetrics(r)
	return c
}

func (c *Coordinator) registerMetrics(r prometheus.Registerer) {
	configSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rouse_config_last_reload_successful",
		Help: "Whether the last configuration reload attempt was successful.",
	})
	configSuccessTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rouse_config_last_reload_success_timestamp_seconds",
		Help: "Timestamp of the last successful configuration reload.",
	})
	r.MustRegister(configSuccess, configSuccessTime)
	c.configSuccess = configSuccess
	c.configSuccessTime = configSuccessTime
}

// Subscribe registers a callback run on every successful load, in
// subscription order. A failing subscriber fails the whole reload.
func (c *Coordinator) Subscribe(ss ...func(*Config) error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.subscribers = append(c.subscribers, ss...)
}

func (c *Coordinator) notifySubscribers() error {
	for _, s := range c.subscribers {
		if err := s(c.config); err != nil {
			return err
		}
	}
	return nil
}

// loadFromFile reads and parses the configured file.
func (c *Coordinator) loadFromFile() error {
	conf, err := LoadFile(c.configFilePath)
	if err != nil {
		return err
	}
	c.config = conf
	return nil
}

// Reload loads the file and notifies subscribers. On any failure the
// previous configuration stays in effect.
func (c *Coordinator) Reload() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.logger.Info("Loading configuration file", "file", c.configFilePath)
	if err := c.loadFromFile(); err != nil {
		c.logger.Error("Loading configuration file failed", "file", c.configFilePath, "err", err)
		c.configSuccess.Set(0)
		return err
	}
	c.logger.Info("Completed loading of configuration file", "file", c.configFilePath)

	if err := c.notifySubscribers(); err != nil {
		c.logger.Error("One or more config change subscribers failed to apply new config", "file", c.configFilePath, "err", err)
		c.configSuccess.Set(0)
		return err
	}

	c.configSuccess.Set(1)
	c.configSuccessTime.SetToCurrentTime()
	return nil
}
