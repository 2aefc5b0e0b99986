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

package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	received     *prometheus.CounterVec
	deduplicated prometheus.Counter
	acknowledged prometheus.Counter
	resolved     prometheus.Counter
	escalations  prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		received: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "rouse_alerts_received_total",
			Help: "Total number of new alerts accepted, by severity.",
		}, []string{"severity"}),
		deduplicated: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_alerts_deduplicated_total",
			Help: "Total number of inbound alerts folded into an existing fingerprint.",
		}),
		acknowledged: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_alerts_acknowledged_total",
			Help: "Total number of alert acknowledgements.",
		}),
		resolved: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_alerts_resolved_total",
			Help: "Total number of alert resolutions.",
		}),
		escalations: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "rouse_alerts_escalations_enqueued_total",
			Help: "Total number of first escalation steps enqueued for new alerts.",
		}),
	}
}
