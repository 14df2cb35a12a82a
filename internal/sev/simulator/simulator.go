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

// Package simulator implements sev.Platform without real AMD SEV firmware,
// for environments where the platform ioctl/KVM primitives are unavailable
// (development, CI, the test suite). It performs the same cryptographic
// shape as a real session: ECDH key agreement for the GODH exchange and
// AES-256-GCM for transport-key sealing.
package simulator

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sevkbs/kbs/internal/sev"
)

const (
	policyBitsLen   = 4
	transportKeyLen = 32 // AES-256
	stateLen        = policyBitsLen + transportKeyLen
)

var (
	// ErrEncryptionFailed mirrors the ee/pkg/encryption sentinel-wrapping style.
	ErrEncryptionFailed = errors.New("sev simulator: encryption failed")
	// ErrDecryptionFailed mirrors the ee/pkg/encryption sentinel-wrapping style.
	ErrDecryptionFailed = errors.New("sev simulator: decryption failed")
)

// Simulator is a software stand-in for the AMD SEV platform, holding a
// static ECDH key pair representing the firmware's own Diffie-Hellman
// identity (PDH in real SEV terms).
type Simulator struct {
	priv *ecdh.PrivateKey
}

// New generates a fresh platform identity key.
func New() (*Simulator, error) {
	priv, err := ecdh.P384().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating platform identity key: %w", err)
	}
	return &Simulator{priv: priv}, nil
}

// Start parses certChain as a DER-encoded X.509 certificate carrying the
// guest owner's ECDSA public key, performs ECDH against the platform's
// static key, and derives a 32-byte transport key. The returned
// sessionState packs policyBits and the transport key into a fixed-layout
// binary descriptor.
func (s *Simulator) Start(policyBits uint32, certChain []byte) ([]byte, []byte, error) {
	cert, err := x509.ParseCertificate(certChain)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing guest owner certificate: %w", err)
	}

	guestPub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, nil, errors.New("guest owner certificate does not carry an ECDSA public key")
	}
	guestECDH, err := guestPub.ECDH()
	if err != nil {
		return nil, nil, fmt.Errorf("guest owner key unsuitable for ECDH: %w", err)
	}

	shared, err := s.priv.ECDH(guestECDH)
	if err != nil {
		return nil, nil, fmt.Errorf("computing shared secret: %w", err)
	}
	transportKey := sha256.Sum256(shared)

	state := make([]byte, stateLen)
	binary.LittleEndian.PutUint32(state[:policyBitsLen], policyBits)
	copy(state[policyBitsLen:], transportKey[:])

	return s.priv.PublicKey().Bytes(), state, nil
}

// Verify recomputes the expected launch measurement from digest and build
// under the session's transport key and compares it, constant-time,
// against measurement.
func (s *Simulator) Verify(sessionState []byte, digest []byte, build sev.Build, measurement []byte) ([]byte, error) {
	transportKey, err := transportKeyFrom(sessionState)
	if err != nil {
		return nil, err
	}

	expected := expectedMeasurement(transportKey, digest, build)
	if !hmac.Equal(expected, measurement) {
		return nil, errors.New("launch measurement does not match expected digest")
	}
	return sessionState, nil
}

// Secret seals payload with AES-256-GCM under the session's transport key.
// The header is the GCM nonce; there are no additional header flags in
// the simulator.
func (s *Simulator) Secret(verifiedState []byte, payload []byte) ([]byte, []byte, error) {
	transportKey, err := transportKeyFrom(verifiedState)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(transportKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cipher creation failed: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: GCM creation failed: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: nonce generation failed: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	return nonce, ciphertext, nil
}

func transportKeyFrom(state []byte) ([]byte, error) {
	if len(state) != stateLen {
		return nil, fmt.Errorf("%w: malformed session state (%d bytes)", ErrDecryptionFailed, len(state))
	}
	return state[policyBitsLen:], nil
}

func expectedMeasurement(transportKey, digest []byte, build sev.Build) []byte {
	h := hmac.New(sha256.New, transportKey)
	h.Write(digest)
	h.Write([]byte{build.Major, build.Minor, build.BuildID})
	return h.Sum(nil)
}
