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

// Package policy evaluates a connection's firmware attributes against a
// tenant policy record. It has no external dependencies: every rule is a
// membership check or integer comparison over plain structs.
package policy

import (
	"errors"
	"slices"
)

// Policy is the set of firmware attributes a launch must satisfy. An empty
// allowlist dimension means "any value allowed" for that dimension.
type Policy struct {
	ID              uint64
	AllowedDigests  []string
	AllowedPolicies []uint32
	MinFWAPIMajor   uint32
	MinFWAPIMinor   uint32
	AllowedBuildIDs []uint32
	Valid           bool
}

// Connection describes the firmware parameters a guest launch claims, or
// (once verified) actually has.
type Connection struct {
	Policy            uint32
	FWAPIMajor        uint32
	FWAPIMinor        uint32
	FWBuildID         uint32
	LaunchDescription string
	FWDigest          string
}

// Rejection reasons, returned verbatim by Verify so the first failing rule
// is identifiable without the caller needing to know rule order.
var (
	ErrDigestNotValid     = errors.New("fw digest not valid")
	ErrPolicyNotValid     = errors.New("policy not valid")
	ErrFWAPIMajorNotValid = errors.New("fw api major not valid")
	ErrFWAPIMinorNotValid = errors.New("fw api minor not valid")
	ErrBuildIDNotValid    = errors.New("build id not valid")
)

// Verify checks c against p, evaluating the five rules in order and
// returning the first failure. A nil error means every rule passed.
func Verify(p Policy, c Connection) error {
	if len(p.AllowedDigests) > 0 && !slices.Contains(p.AllowedDigests, c.FWDigest) {
		return ErrDigestNotValid
	}
	if len(p.AllowedPolicies) > 0 && !slices.Contains(p.AllowedPolicies, c.Policy) {
		return ErrPolicyNotValid
	}
	if c.FWAPIMajor < p.MinFWAPIMajor {
		return ErrFWAPIMajorNotValid
	}
	if c.FWAPIMajor == p.MinFWAPIMajor && c.FWAPIMinor < p.MinFWAPIMinor {
		return ErrFWAPIMinorNotValid
	}
	if len(p.AllowedBuildIDs) > 0 && !slices.Contains(p.AllowedBuildIDs, c.FWBuildID) {
		return ErrBuildIDNotValid
	}
	return nil
}
