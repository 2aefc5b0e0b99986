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
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Labels is a set of key/value pairs describing an alert. Sorted-key
// iteration is the only ordering contract; it is what makes the fingerprint
// deterministic.
type Labels map[string]string

// SortedKeys returns the label keys in ascending order.
func (ls Labels) SortedKeys() []string {
	keys := make([]string, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the label set.
func (ls Labels) Clone() Labels {
	c := make(Labels, len(ls))
	for k, v := range ls {
		c[k] = v
	}
	return c
}

// Fingerprint is the 16-character lowercase hex digest of an alert's labels,
// used for deduplication. It is not a security primitive.
type Fingerprint string

// labelSep separates keys and values in the hashed byte stream so that
// {"ab":"c"} and {"a":"bc"} do not collide.
var labelSep = []byte{0xff}

// FingerprintLabels hashes the (key, value) pairs in sorted key order with a
// fixed-seed xxhash. Equal label maps always produce equal fingerprints,
// bit-for-bit across processes and restarts.
func FingerprintLabels(ls Labels) Fingerprint {
	h := xxhash.New()
	for _, k := range ls.SortedKeys() {
		_, _ = h.WriteString(k)
		_, _ = h.Write(labelSep)
		_, _ = h.WriteString(ls[k])
		_, _ = h.Write(labelSep)
	}
	return Fingerprint(fmt.Sprintf("%016x", h.Sum64()))
}

func (fp Fingerprint) String() string { return string(fp) }
