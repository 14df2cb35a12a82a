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

package broker

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sevkbs/kbs/internal/policy"
)

// DefaultPolicySource supplies the tenant-wide default policy, conjoined
// with every per-secret policy during aggregation.
type DefaultPolicySource interface {
	Load() (policy.Policy, error)
}

// filePolicyJSON mirrors the on-disk shape of default_policy.json.
type filePolicyJSON struct {
	AllowedDigests  []string `json:"allowed_digests"`
	AllowedPolicies []uint32 `json:"allowed_policies"`
	MinFWAPIMajor   uint32   `json:"min_fw_api_major"`
	MinFWAPIMinor   uint32   `json:"min_fw_api_minor"`
	AllowedBuildIDs []uint32 `json:"allowed_build_ids"`
}

// FileDefaultPolicy loads the tenant default policy from a JSON file fresh
// on every call. No caching: operators can edit the file and have the next
// GetSecret pick it up immediately.
type FileDefaultPolicy struct {
	Path string
}

func (f FileDefaultPolicy) Load() (policy.Policy, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("reading %s: %w", f.Path, err)
	}

	var raw filePolicyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return policy.Policy{}, fmt.Errorf("parsing %s: %w", f.Path, err)
	}

	return policy.Policy{
		AllowedDigests:  raw.AllowedDigests,
		AllowedPolicies: raw.AllowedPolicies,
		MinFWAPIMajor:   raw.MinFWAPIMajor,
		MinFWAPIMinor:   raw.MinFWAPIMinor,
		AllowedBuildIDs: raw.AllowedBuildIDs,
		Valid:           true,
	}, nil
}
