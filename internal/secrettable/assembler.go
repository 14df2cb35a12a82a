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

// Package secrettable assembles a list of RequestDetails into the binary,
// GUID-tagged, 16-byte-aligned secret table a launched guest receives.
// Four secret_type variants (key, bundle, report, connection) share a
// small capability set — payload production and policy contribution — and
// are dispatched through one interface rather than scattered type
// switches, so adding a fifth type is a new variant, not a new code path.
package secrettable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/sevkbs/kbs/internal/policy"
	"github.com/sevkbs/kbs/internal/store"
)

// RequestDetails names one entry the guest is asking to receive.
type RequestDetails struct {
	GUID       string
	Format     string
	SecretType string
	ID         string
}

// Sentinel errors for malformed or unrecognized requests.
var (
	ErrUnknownSecretType = errors.New("secrettable: unknown secret_type")
	ErrUnknownFormat     = errors.New("secrettable: unknown format")
	ErrInvalidGUID       = errors.New("secrettable: invalid guid")
)

// variant is the shared capability set every secret_type implements.
type variant interface {
	guid() uuid.UUID
	payload(ctx context.Context, conn policy.Connection) ([]byte, error)
	policies(ctx context.Context) ([]policy.Policy, error)
}

// Assembler builds secret tables from RequestDetails, fetching payloads and
// policy bindings from a Store.
type Assembler struct {
	store  store.Store
	logger logr.Logger
}

// NewAssembler constructs an Assembler over st.
func NewAssembler(st store.Store, logger logr.Logger) *Assembler {
	return &Assembler{store: st, logger: logger}
}

// Parse validates and converts raw RequestDetails into dispatchable
// variants. Called at step 3 of GetSecret, before policies are aggregated
// and before any payload is produced.
func (a *Assembler) Parse(requests []RequestDetails) ([]variant, error) {
	out := make([]variant, 0, len(requests))
	for _, r := range requests {
		g, err := uuid.Parse(r.GUID)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGUID, r.GUID, err)
		}

		switch r.SecretType {
		case "key":
			out = append(out, &keyVariant{g: g, id: r.ID, format: r.Format, store: a.store})
		case "bundle":
			out = append(out, &bundleVariant{g: g, id: r.ID, format: r.Format, store: a.store, logger: a.logger})
		case "report":
			out = append(out, &reportVariant{g: g, id: r.ID, store: a.store})
		case "connection":
			out = append(out, &connectionVariant{g: g, store: a.store})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSecretType, r.SecretType)
		}
	}
	return out, nil
}

// AggregatePolicies collects the tenant default policy followed by every
// variant's contribution, in request order, per spec: "[tenant_default] ++
// concat(contributions_per_request)".
func (a *Assembler) AggregatePolicies(ctx context.Context, tenantDefault policy.Policy, variants []variant) ([]policy.Policy, error) {
	policies := []policy.Policy{tenantDefault}
	for _, v := range variants {
		contrib, err := v.policies(ctx)
		if err != nil {
			return nil, err
		}
		policies = append(policies, contrib...)
	}
	return policies, nil
}

// Assemble produces the final payload for each variant against the
// verified connection and frames them into one 16-byte-aligned binary
// secret table.
func (a *Assembler) Assemble(ctx context.Context, conn policy.Connection, variants []variant) ([]byte, error) {
	entries := make([]entry, 0, len(variants))
	for _, v := range variants {
		p, err := v.payload(ctx, conn)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{guid: v.guid(), payload: p})
	}
	return buildTable(entries)
}

// marshalJSON encodes a variant payload as JSON, prefixing any error with
// the package name.
func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("secrettable: marshaling payload: %w", err)
	}
	return b, nil
}
