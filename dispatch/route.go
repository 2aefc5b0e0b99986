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

// Package dispatch routes alerts to escalation policies by label matching.
package dispatch

import (
	"sync"

	"github.com/rouselabs/rouse/types"
)

// Route binds a set of label matchers to an escalation policy. Matchers are
// exact key=value requirements; an empty matcher set matches every alert,
// so a final empty route acts as the default.
type Route struct {
	Matchers map[string]string `json:"matchers" yaml:"matchers"`
	PolicyID types.PolicyID    `json:"policy_id" yaml:"policy_id"`
}

// Matches reports whether every matcher is satisfied by the labels.
func (r Route) Matches(labels types.Labels) bool {
	for k, v := range r.Matchers {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// Router is an ordered first-match route table. The table is swapped
// wholesale on configuration reload; individual routes never change in
// place.
type Router struct {
	mtx    sync.RWMutex
	routes []Route
}

// NewRouter builds a router over an ordered route list.
func NewRouter(routes []Route) *Router {
	return &Router{routes: routes}
}

// Match returns the policy of the first route whose matchers are a subset
// of the labels, or false when no route matches.
func (r *Router) Match(labels types.Labels) (types.PolicyID, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for _, route := range r.routes {
		if route.Matches(labels) {
			return route.PolicyID, true
		}
	}
	return types.PolicyID{}, false
}

// Update replaces the whole route table.
func (r *Router) Update(routes []Route) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.routes = routes
}

// Routes returns the route table in match order.
func (r *Router) Routes() []Route {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.routes
}
