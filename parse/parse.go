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

// Package parse turns inbound webhook payloads into raw alerts. One parser
// per source format; the registry dispatches on the source name carried in
// the request.
package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rouselabs/rouse/types"
)

// ErrInvalidPayload wraps every malformed-payload failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Parser decodes one source's payload format.
type Parser interface {
	// Source is the name the registry dispatches on.
	Source() string
	Parse(payload []byte, header http.Header) ([]types.RawAlert, error)
}

// Registry maps source names to parsers.
type Registry map[string]Parser

// NewRegistry indexes parsers by source name.
func NewRegistry(parsers ...Parser) Registry {
	r := make(Registry, len(parsers))
	for _, p := range parsers {
		r[p.Source()] = p
	}
	return r
}

// For returns the parser for a source name.
func (r Registry) For(source string) (Parser, bool) {
	p, ok := r[source]
	return p, ok
}

// JSON parses payloads that are already shaped like a raw alert: a single
// JSON object or an array of them.
type JSON struct {
	source string
}

// NewJSON returns a generic JSON parser registered under the source name.
func NewJSON(source string) *JSON {
	return &JSON{source: source}
}

func (p *JSON) Source() string { return p.source }

// Parse decodes the payload. An alert without a source field inherits the
// parser's source name.
func (p *JSON) Parse(payload []byte, _ http.Header) ([]types.RawAlert, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body: %w", ErrInvalidPayload)
	}

	var raws []types.RawAlert
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode alert array: %s: %w", err, ErrInvalidPayload)
		}
	} else {
		var one types.RawAlert
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode alert: %s: %w", err, ErrInvalidPayload)
		}
		raws = []types.RawAlert{one}
	}

	for i := range raws {
		if raws[i].Source == "" {
			raws[i].Source = p.source
		}
	}
	return raws, nil
}

// alertmanagerPayload is the Prometheus Alertmanager webhook format,
// restricted to the fields mapped onto raw alerts.
type alertmanagerPayload struct {
	Version string              `json:"version"`
	Status  string              `json:"status"`
	Alerts  []alertmanagerAlert `json:"alerts"`
}

type alertmanagerAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// Alertmanager parses Prometheus Alertmanager webhook notifications. Each
// entry of the batch becomes one raw alert.
type Alertmanager struct {
	source string
}

// NewAlertmanager returns an Alertmanager webhook parser registered under
// the source name.
func NewAlertmanager(source string) *Alertmanager {
	return &Alertmanager{source: source}
}

func (p *Alertmanager) Source() string { return p.source }

// Parse maps the webhook batch onto raw alerts: the upstream fingerprint
// becomes the external id, the severity label the severity, and the summary
// annotation the summary.
func (p *Alertmanager) Parse(payload []byte, _ http.Header) ([]types.RawAlert, error) {
	var msg alertmanagerPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode alertmanager payload: %s: %w", err, ErrInvalidPayload)
	}
	if len(msg.Alerts) == 0 {
		return nil, fmt.Errorf("alertmanager payload without alerts: %w", ErrInvalidPayload)
	}

	raws := make([]types.RawAlert, 0, len(msg.Alerts))
	for _, a := range msg.Alerts {
		summary := a.Annotations["summary"]
		if summary == "" {
			summary = a.Annotations["description"]
		}
		if summary == "" {
			summary = a.Labels["alertname"]
		}
		raws = append(raws, types.RawAlert{
			ExternalID: a.Fingerprint,
			Source:     p.source,
			Severity:   a.Labels["severity"],
			Labels:     a.Labels,
			Summary:    summary,
			Status:     a.Status,
		})
	}
	return raws, nil
}
