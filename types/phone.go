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

// Phone is an E.164 phone number: a leading "+" followed by 7 to 15 digits.
type Phone string

// ParsePhone validates s as an E.164 number.
func ParsePhone(s string) (Phone, error) {
	if len(s) < 8 || len(s) > 16 || s[0] != '+' {
		return "", ErrInvalidPhoneFormat
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return "", ErrInvalidPhoneFormat
		}
	}
	return Phone(s), nil
}

func (p Phone) String() string { return string(p) }
