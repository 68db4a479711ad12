/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"database/sql/driver"
	"fmt"
)

// IllegalName is the String of an invalid enum value.
const IllegalName = "unknown"

// Enum is the contract of the string-backed status types stored in the
// database.
type Enum interface {
	comparable
	IsValid() bool
	String() string
}

// ParseEnum returns the member of values whose String equals s.
func ParseEnum[E Enum](s string, values []E) (E, bool) {
	for _, v := range values {
		if v.String() == s {
			return v, true
		}
	}
	var zero E
	return zero, false
}

// EnumValue implements driver.Valuer for an enum, refusing invalid members.
func EnumValue[E Enum](e E) (driver.Value, error) {
	if !e.IsValid() {
		return nil, fmt.Errorf("invalid %T value %q", e, e.String())
	}
	return e.String(), nil
}

// ScanEnum implements sql.Scanner for an enum stored as text.
func ScanEnum[E Enum](dst *E, src interface{}, values []E) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		var zero E
		*dst = zero
		return nil
	default:
		return fmt.Errorf("cannot scan %T into %T", src, *dst)
	}
	e, ok := ParseEnum(s, values)
	if !ok {
		return fmt.Errorf("invalid %T value %q", *dst, s)
	}
	*dst = e
	return nil
}
