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

// Package sev wraps the AMD SEV firmware primitive (certificate chain
// decode, launch session start/verify, secret packaging) behind a narrow
// Platform interface. The adapter never touches SEV ioctl/KVM details
// directly — those are an external black box reached through Platform;
// this package only owns base64 framing, phase witnessing, and the
// u32-to-u8 firmware field downcast.
package sev

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/sevkbs/kbs/internal/policy"
)

// Build is the firmware version/build triple the platform checks a launch
// measurement against. Each field is narrowed from the wire-level u32 to
// the u8 the SEV firmware API actually expects.
type Build struct {
	Major   uint8
	Minor   uint8
	BuildID uint8
}

// InitializedSession witnesses a session that has started but whose launch
// measurement has not yet been verified. Its zero value is not usable
// outside this package.
type InitializedSession struct {
	state []byte
}

// VerifiedSession witnesses a session whose launch measurement has been
// confirmed; only a VerifiedSession may be handed to PackageSecret. There
// is no way to recover an InitializedSession from one. The adapter does
// not stop a caller from passing the same InitializedSession value to
// VerifyMeasurement more than once; a parked session is used once because
// sessionstore.Store.Remove hands it out only once.
type VerifiedSession struct {
	state []byte
}

// Platform is the external SEV primitive library's contract: certificate
// chain decode, session start, measurement verification, and transport-key
// encryption. The adapter is the only place this interface is referenced;
// everything upstream of it deals in InitializedSession/VerifiedSession
// values and never sees Platform directly.
type Platform interface {
	// Start begins a session for a guest requesting policyBits, given its
	// decoded certificate chain. Returns the platform's GODH certificate
	// bytes and an opaque, binary-serialized session descriptor.
	Start(policyBits uint32, certChain []byte) (godhCert []byte, sessionState []byte, err error)
	// Verify checks measurement against the expected digest for build,
	// using sessionState produced by Start. Returns a new opaque state for
	// use by Secret.
	Verify(sessionState []byte, digest []byte, build Build, measurement []byte) (verifiedState []byte, err error)
	// Secret encrypts payload under the session's transport key, returning
	// the binary-serialized header and ciphertext separately.
	Secret(verifiedState []byte, payload []byte) (header []byte, data []byte, err error)
}

// Sentinel errors for the failure modes of the SEV adapter operations.
var (
	ErrCertChainMalformed      = errors.New("cert chain not formatted correctly")
	ErrCertChainVerification   = errors.New("failed to verify cert chain")
	ErrMeasurementInvalid      = errors.New("measurement invalid")
	ErrFirmwareFieldOutOfRange = errors.New("firmware field exceeds u8 range")
	ErrCryptoFailure           = errors.New("crypto failure")
)

// Adapter implements the three SEV operations over a Platform.
type Adapter struct {
	platform Platform
	logger   logr.Logger
}

// NewAdapter constructs an Adapter over platform.
func NewAdapter(platform Platform, logger logr.Logger) *Adapter {
	return &Adapter{platform: platform, logger: logger}
}

// GenerateLaunchBundle decodes certChainB64, starts a session keyed by
// policyBits, and returns the base64-encoded GODH certificate and launch
// blob plus the initialized session to park in the session store.
func (a *Adapter) GenerateLaunchBundle(ctx context.Context, policyBits uint32, certChainB64 string) (godhB64, launchBlobB64 string, sess InitializedSession, err error) {
	chain, err := base64.StdEncoding.DecodeString(certChainB64)
	if err != nil {
		return "", "", InitializedSession{}, fmt.Errorf("%w: %v", ErrCertChainMalformed, err)
	}

	cert, state, err := a.platform.Start(policyBits, chain)
	if err != nil {
		return "", "", InitializedSession{}, fmt.Errorf("%w: %v", ErrCertChainVerification, err)
	}

	a.logger.V(1).Info("launch bundle generated", "policyBits", policyBits)
	return base64.StdEncoding.EncodeToString(cert), base64.StdEncoding.EncodeToString(state), InitializedSession{state: state}, nil
}

// VerifyMeasurement decodes measurementB64 and conn's firmware digest,
// downcasts conn's firmware version fields to u8 (failing closed on
// overflow rather than truncating), and asks the platform to verify the
// launch measurement against them.
func (a *Adapter) VerifyMeasurement(ctx context.Context, conn policy.Connection, measurementB64 string, sess InitializedSession) (VerifiedSession, error) {
	measurement, err := base64.StdEncoding.DecodeString(measurementB64)
	if err != nil {
		return VerifiedSession{}, fmt.Errorf("%w: launch measurement: %v", ErrMeasurementInvalid, err)
	}

	digest, err := base64.StdEncoding.DecodeString(conn.FWDigest)
	if err != nil {
		return VerifiedSession{}, fmt.Errorf("%w: fw digest: %v", ErrMeasurementInvalid, err)
	}

	build, err := toBuild(conn)
	if err != nil {
		return VerifiedSession{}, err
	}

	state, err := a.platform.Verify(sess.state, digest, build, measurement)
	if err != nil {
		return VerifiedSession{}, fmt.Errorf("%w: %v", ErrMeasurementInvalid, err)
	}
	return VerifiedSession{state: state}, nil
}

// PackageSecret encrypts payload under sess's transport key, returning the
// base64-encoded header and ciphertext.
func (a *Adapter) PackageSecret(ctx context.Context, sess VerifiedSession, payload []byte) (headerB64, dataB64 string, err error) {
	header, data, err := a.platform.Secret(sess.state, payload)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return base64.StdEncoding.EncodeToString(header), base64.StdEncoding.EncodeToString(data), nil
}

func toBuild(conn policy.Connection) (Build, error) {
	major, err := downcastU8(conn.FWAPIMajor)
	if err != nil {
		return Build{}, fmt.Errorf("%w: fw_api_major=%d", err, conn.FWAPIMajor)
	}
	minor, err := downcastU8(conn.FWAPIMinor)
	if err != nil {
		return Build{}, fmt.Errorf("%w: fw_api_minor=%d", err, conn.FWAPIMinor)
	}
	buildID, err := downcastU8(conn.FWBuildID)
	if err != nil {
		return Build{}, fmt.Errorf("%w: fw_build_id=%d", err, conn.FWBuildID)
	}
	return Build{Major: major, Minor: minor, BuildID: buildID}, nil
}

func downcastU8(v uint32) (uint8, error) {
	if v > math.MaxUint8 {
		return 0, ErrFirmwareFieldOutOfRange
	}
	return uint8(v), nil
}
