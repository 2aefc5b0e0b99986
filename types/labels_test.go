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

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Labels{"service": "api", "env": "prod", "region": "eu-west-1"}
	b := Labels{"region": "eu-west-1", "env": "prod", "service": "api"}

	// Insertion order must not matter.
	require.Equal(t, FingerprintLabels(a), FingerprintLabels(b))
	// And repeated hashing of the same map is stable.
	require.Equal(t, FingerprintLabels(a), FingerprintLabels(a))
}

func TestFingerprintFormat(t *testing.T) {
	fp := FingerprintLabels(Labels{"service": "api"})
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), fp.String())

	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), FingerprintLabels(nil).String())
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	require.NotEqual(t,
		FingerprintLabels(Labels{"service": "api"}),
		FingerprintLabels(Labels{"service": "db"}))

	require.NotEqual(t,
		FingerprintLabels(Labels{"service": "api"}),
		FingerprintLabels(Labels{"service": "api", "env": "prod"}))

	// Key/value boundaries are part of the hash input.
	require.NotEqual(t,
		FingerprintLabels(Labels{"ab": "c"}),
		FingerprintLabels(Labels{"a": "bc"}))
}

func TestLabelsClone(t *testing.T) {
	ls := Labels{"service": "api"}
	c := ls.Clone()
	c["service"] = "db"
	require.Equal(t, "api", ls["service"])
}

func TestLabelsSortedKeys(t *testing.T) {
	ls := Labels{"c": "3", "a": "1", "b": "2"}
	require.Equal(t, []string{"a", "b", "c"}, ls.SortedKeys())
}
