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

package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/types"
)

func TestRouterFirstMatchWins(t *testing.T) {
	critical := types.NewPolicyID()
	api := types.NewPolicyID()
	fallback := types.NewPolicyID()

	r := NewRouter([]Route{
		{Matchers: map[string]string{"severity": "critical", "service": "api"}, PolicyID: critical},
		{Matchers: map[string]string{"service": "api"}, PolicyID: api},
		{Matchers: map[string]string{}, PolicyID: fallback},
	})

	got, ok := r.Match(types.Labels{"severity": "critical", "service": "api", "env": "prod"})
	require.True(t, ok)
	require.Equal(t, critical, got)

	got, ok = r.Match(types.Labels{"severity": "warning", "service": "api"})
	require.True(t, ok)
	require.Equal(t, api, got)

	got, ok = r.Match(types.Labels{"service": "db"})
	require.True(t, ok)
	require.Equal(t, fallback, got)
}

func TestRouterNoMatch(t *testing.T) {
	r := NewRouter([]Route{
		{Matchers: map[string]string{"service": "api"}, PolicyID: types.NewPolicyID()},
	})

	_, ok := r.Match(types.Labels{"service": "db"})
	require.False(t, ok)

	_, ok = r.Match(nil)
	require.False(t, ok)
}

func TestRouterEmpty(t *testing.T) {
	_, ok := NewRouter(nil).Match(types.Labels{"service": "api"})
	require.False(t, ok)
}

func TestRouterUpdateSwapsTable(t *testing.T) {
	before := types.NewPolicyID()
	after := types.NewPolicyID()

	r := NewRouter([]Route{
		{Matchers: map[string]string{"service": "api"}, PolicyID: before},
	})
	r.Update([]Route{
		{Matchers: map[string]string{}, PolicyID: after},
	})

	got, ok := r.Match(types.Labels{"service": "db"})
	require.True(t, ok)
	require.Equal(t, after, got)
	require.Len(t, r.Routes(), 1)
}
