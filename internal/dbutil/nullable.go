/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dbutil provides shared SQL helpers used across the store package:
// nullable-column conversions and dialect-specific query scaffolding.
package dbutil

// NullUint64 returns nil when v is zero, otherwise a pointer to v. Used for
// the optional polid foreign key columns (secrets.polid, keysets.polid,
// report_keypair.polid), which are unset (NULL) when a secret carries no
// policy binding of its own.
func NullUint64(v uint64) *uint64 {
	if v == 0 {
		return nil
	}
	return &v
}

// Uint64OrZero returns 0 when v is nil, otherwise *v.
func Uint64OrZero(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

// MarshalJSONList marshals a string slice to its JSON array encoding, e.g.
// for persisting Policy.AllowedDigests / keyset member lists as a single
// TEXT column. Returns "[]" for a nil or empty slice.
func MarshalJSONList(items []string) ([]byte, error) {
	if len(items) == 0 {
		return []byte("[]"), nil
	}
	return marshalJSON(items)
}

// UnmarshalJSONList decodes a JSON array column back into a string slice.
// Returns nil for an empty/absent column or an empty JSON array.
func UnmarshalJSONList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []string
	if err := unmarshalJSON(data, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// MarshalJSONUint32List marshals a uint32 slice (e.g. Policy.AllowedPolicies,
// Policy.AllowedBuildIDs) to its JSON array encoding.
func MarshalJSONUint32List(items []uint32) ([]byte, error) {
	if len(items) == 0 {
		return []byte("[]"), nil
	}
	return marshalJSON(items)
}

// UnmarshalJSONUint32List decodes a JSON array column back into a uint32 slice.
// Returns nil for an empty/absent column or an empty JSON array.
func UnmarshalJSONUint32List(data []byte) ([]uint32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []uint32
	if err := unmarshalJSON(data, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
