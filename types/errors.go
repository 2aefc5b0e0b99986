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

package types

import "errors"

// Domain errors signal contract violations. They are never retried and are
// surfaced to the caller as-is. Idempotent no-ops (acknowledging an already
// acknowledged alert, resolving an already resolved one) are successes that
// return empty event lists, not errors.
var (
	ErrAlertAlreadyResolved        = errors.New("alert is already resolved")
	ErrScheduleRequiresParticipant = errors.New("schedule requires at least one participant")
	ErrInvalidPhoneFormat          = errors.New("invalid phone format")
	ErrInvalidOverridePeriod       = errors.New("invalid override period")
	ErrInvalidID                   = errors.New("invalid id")
	ErrPolicyRequiresStep          = errors.New("policy requires at least one step")
	ErrStepRequiresTarget          = errors.New("step requires at least one target")
	ErrStepRequiresChannel         = errors.New("step requires a channel")
	ErrTeamRequiresMember          = errors.New("team requires at least one member")
)
