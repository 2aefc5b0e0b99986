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
	"context"
	"errors"
	"time"

	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Grouper clusters alerts that share a grouping key within a time window.
type Grouper struct {
	groups provider.GroupRepository
	window time.Duration
}

// NewGrouper creates a grouper with the given window.
func NewGrouper(groups provider.GroupRepository, window time.Duration) *Grouper {
	return &Grouper{groups: groups, window: window}
}

// Assign adds the alert to the active group for its key, or opens a new
// group with the alert as root when none is active. The alert's created_at
// is the grouping instant.
func (g *Grouper) Assign(ctx context.Context, a *types.Alert) (*types.AlertGroup, error) {
	key := types.GroupingKey(a)

	latest, err := g.groups.FindLatest(ctx, key)
	switch {
	case err == nil:
		if types.ShouldGroup(latest, a.CreatedAt, g.window) {
			latest.AddMember(a.ID, a.CreatedAt)
			if err := g.groups.Save(ctx, latest); err != nil {
				return nil, err
			}
			return latest, nil
		}
	case !errors.Is(err, provider.ErrNotFound):
		return nil, err
	}

	group := types.NewAlertGroup(a.ID, key, g.window, a.CreatedAt)
	if err := g.groups.Save(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}
