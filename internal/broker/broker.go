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

// Package broker implements the two-phase attestation handshake state
// machine: GetBundle produces a launch bundle and parks a session;
// GetSecret verifies the launch measurement and releases an assembled
// secret table. The package wires together the policy evaluator, SEV
// adapter, secret-table assembler, session store, and persistence store
// without owning cryptographic or storage details itself.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/sevkbs/kbs/internal/policy"
	"github.com/sevkbs/kbs/internal/secrettable"
	"github.com/sevkbs/kbs/internal/sessionstore"
	"github.com/sevkbs/kbs/internal/sev"
)

// SecretRequest is the broker-level (transport-agnostic) shape of a
// GetSecret call.
type SecretRequest struct {
	LaunchID          string
	Policy            uint32
	APIMajor          uint32
	APIMinor          uint32
	BuildID           uint32
	LaunchDescription string
	FWDigest          string
	SecretRequests    []secrettable.RequestDetails
	LaunchMeasurement string
}

// Broker orchestrates the attestation protocol's two RPCs.
type Broker struct {
	sev           *sev.Adapter
	sessions      *sessionstore.Store
	assembler     *secrettable.Assembler
	defaultPolicy DefaultPolicySource
	logger        logr.Logger
}

// New wires a Broker from its collaborators.
func New(sevAdapter *sev.Adapter, sessions *sessionstore.Store, assembler *secrettable.Assembler, defaultPolicy DefaultPolicySource, logger logr.Logger) *Broker {
	return &Broker{
		sev:           sevAdapter,
		sessions:      sessions,
		assembler:     assembler,
		defaultPolicy: defaultPolicy,
		logger:        logger,
	}
}

// GetBundle generates a launch bundle for a guest requesting policyBits and
// parks the resulting session under a fresh launch_id.
func (b *Broker) GetBundle(ctx context.Context, policyBits uint32, certChainB64 string) (godhB64, launchBlobB64, launchID string, err error) {
	godh, blob, sess, err := b.sev.GenerateLaunchBundle(ctx, policyBits, certChainB64)
	if err != nil {
		return "", "", "", classifySEVStartError(err)
	}

	launchID = uuid.New().String()
	b.sessions.Insert(launchID, sess)

	b.logger.V(1).Info("launch bundle issued", "launch_id", launchID)
	return godh, blob, launchID, nil
}

// GetSecret verifies req's launch measurement against the policies bound
// to its requested secrets and, on success, returns the encrypted secret
// table. The ten-step sequence matches the protocol exactly: policies are
// aggregated and checked before the session is consumed and the
// measurement is verified, and the session is consumed (step 6) whether or
// not the remaining steps succeed.
func (b *Broker) GetSecret(ctx context.Context, req SecretRequest) (headerB64, dataB64 string, err error) {
	// Step 1: parse launch_id.
	if _, err := uuid.Parse(req.LaunchID); err != nil {
		return "", "", fmt.Errorf("%w: launch_id: %v", ErrClientMalformed, err)
	}

	// Step 2: build the claimed connection identity.
	claimed := policy.Connection{
		Policy:            req.Policy,
		FWAPIMajor:        req.APIMajor,
		FWAPIMinor:        req.APIMinor,
		FWBuildID:         req.BuildID,
		LaunchDescription: req.LaunchDescription,
		FWDigest:          req.FWDigest,
	}

	// Step 3: parse secret_requests.
	variants, err := b.assembler.Parse(req.SecretRequests)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrClientMalformed, err)
	}

	// Step 4: gather all policies (tenant default + per-request contributions).
	tenantDefault, err := b.defaultPolicy.Load()
	if err != nil {
		return "", "", fmt.Errorf("%w: loading tenant default policy: %v", ErrStoreUnavailable, err)
	}
	policies, err := b.assembler.AggregatePolicies(ctx, tenantDefault, variants)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Step 5: verify the claimed connection against every gathered policy,
	// before measurement verification, so enumeration stays cheap.
	for _, p := range policies {
		if err := policy.Verify(p, claimed); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrPolicyRejected, err)
		}
	}

	// Step 6: consume the session. Not-found fails closed immediately.
	sess, err := b.sessions.Remove(req.LaunchID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	// Step 7: verify the launch measurement recomputed from the tenant's
	// allowed parameters — this is what actually proves claimed is honest.
	verified, err := b.sev.VerifyMeasurement(ctx, claimed, req.LaunchMeasurement, sess)
	if err != nil {
		return "", "", classifyMeasurementError(err)
	}

	// Step 8: assemble the binary secret table.
	table, err := b.assembler.Assemble(ctx, claimed, variants)
	if err != nil {
		if errors.Is(err, secrettable.ErrUnknownFormat) {
			return "", "", fmt.Errorf("%w: %v", ErrClientMalformed, err)
		}
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Step 9: encrypt the table under the session transport key.
	header, data, err := b.sev.PackageSecret(ctx, verified, table)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	// Step 10: return the encrypted header and data.
	return header, data, nil
}

func classifySEVStartError(err error) error {
	switch {
	case errors.Is(err, sev.ErrCertChainMalformed):
		return fmt.Errorf("%w: %v", ErrClientMalformed, err)
	case errors.Is(err, sev.ErrCertChainVerification):
		return fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

func classifyMeasurementError(err error) error {
	switch {
	case errors.Is(err, sev.ErrFirmwareFieldOutOfRange):
		return fmt.Errorf("%w: %v", ErrClientMalformed, err)
	case errors.Is(err, sev.ErrMeasurementInvalid):
		return fmt.Errorf("%w: %v", ErrMeasurementInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}
