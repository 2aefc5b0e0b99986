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

package parse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/types"
)

func TestJSONParsesSingleObject(t *testing.T) {
	p := NewJSON("custom")
	raws, err := p.Parse([]byte(`{
		"external_id": "ext-1",
		"severity": "critical",
		"labels": {"service": "api"},
		"summary": "api down",
		"status": "firing"
	}`), nil)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	require.Equal(t, "ext-1", raws[0].ExternalID)
	// The parser's source name fills in for a missing source field.
	require.Equal(t, "custom", raws[0].Source)
	require.Equal(t, types.Labels{"service": "api"}, raws[0].Labels)
	require.False(t, raws[0].Resolved())
}

func TestJSONParsesArray(t *testing.T) {
	p := NewJSON("custom")
	raws, err := p.Parse([]byte(`[
		{"summary": "one", "source": "other"},
		{"summary": "two", "status": "RESOLVED"}
	]`), nil)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	require.Equal(t, "other", raws[0].Source)
	require.Equal(t, "custom", raws[1].Source)
	require.True(t, raws[1].Resolved())
}

func TestJSONRejectsGarbage(t *testing.T) {
	p := NewJSON("custom")
	for _, payload := range []string{"", "   ", "{not json", "[{]"} {
		_, err := p.Parse([]byte(payload), nil)
		require.ErrorIs(t, err, ErrInvalidPayload, "payload %q", payload)
	}
}

func TestAlertmanagerParsesBatch(t *testing.T) {
	p := NewAlertmanager("am")
	raws, err := p.Parse([]byte(`{
		"version": "4",
		"status": "firing",
		"alerts": [
			{
				"status": "firing",
				"labels": {"alertname": "HighLatency", "severity": "warning", "service": "api"},
				"annotations": {"summary": "p99 above 2s"},
				"fingerprint": "c4dd7e4bd6f9a2e6"
			},
			{
				"status": "resolved",
				"labels": {"alertname": "DiskFull", "severity": "critical"},
				"annotations": {"description": "disk usage over 95%"},
				"fingerprint": "8d2f6c3a1b0e4f5d"
			}
		]
	}`), nil)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	require.Equal(t, "c4dd7e4bd6f9a2e6", raws[0].ExternalID)
	require.Equal(t, "am", raws[0].Source)
	require.Equal(t, "warning", raws[0].Severity)
	require.Equal(t, "p99 above 2s", raws[0].Summary)
	require.False(t, raws[0].Resolved())

	// Summary falls back to the description annotation.
	require.Equal(t, "disk usage over 95%", raws[1].Summary)
	require.True(t, raws[1].Resolved())
}

func TestAlertmanagerSummaryFallsBackToAlertname(t *testing.T) {
	p := NewAlertmanager("am")
	raws, err := p.Parse([]byte(`{
		"alerts": [{"status": "firing", "labels": {"alertname": "Watchdog"}}]
	}`), nil)
	require.NoError(t, err)
	require.Equal(t, "Watchdog", raws[0].Summary)
}

func TestAlertmanagerRejectsEmptyBatch(t *testing.T) {
	p := NewAlertmanager("am")
	_, err := p.Parse([]byte(`{"version": "4", "alerts": []}`), nil)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(NewJSON("custom"), NewAlertmanager("am"))
	p, ok := r.For("am")
	require.True(t, ok)
	require.Equal(t, "am", p.Source())
	_, ok = r.For("unknown")
	require.False(t, ok)
}
