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

package secrettable

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/sevkbs/kbs/internal/policy"
	"github.com/sevkbs/kbs/internal/store"
)

// keyJSON is the "json"-format wire shape for the key secret_type.
type keyJSON struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// connectionJSON is the wire shape of a Connection embedded in a report.
type connectionJSON struct {
	Policy            uint32 `json:"policy"`
	FWAPIMajor        uint32 `json:"fw_api_major"`
	FWAPIMinor        uint32 `json:"fw_api_minor"`
	FWBuildID         uint32 `json:"fw_build_id"`
	LaunchDescription string `json:"launch_description"`
	FWDigest          string `json:"fw_digest"`
}

// reportJSON is the signed-report payload: connection is the JSON-encoded
// Connection as a string, not a nested object.
type reportJSON struct {
	Connection string `json:"connection"`
	Signature  string `json:"signature"`
}

// keyVariant fetches a single stored secret by id.
type keyVariant struct {
	g      uuid.UUID
	id     string
	format string
	store  store.Store
}

func (k *keyVariant) guid() uuid.UUID { return k.g }

func (k *keyVariant) payload(ctx context.Context, _ policy.Connection) ([]byte, error) {
	key, err := k.store.GetSecret(ctx, k.id)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", k.id, err)
	}

	switch k.format {
	case "binary":
		decoded, err := base64.StdEncoding.DecodeString(key.Payload)
		if err != nil {
			return nil, fmt.Errorf("key %q: payload not valid base64: %w", k.id, err)
		}
		return decoded, nil
	case "json":
		return marshalJSON(keyJSON{ID: key.ID, Payload: key.Payload})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, k.format)
	}
}

func (k *keyVariant) policies(ctx context.Context) ([]policy.Policy, error) {
	pol, found, err := k.store.GetSecretPolicy(ctx, k.id)
	if err != nil {
		return nil, fmt.Errorf("secret policy %q: %w", k.id, err)
	}
	if !found {
		return nil, nil
	}
	return []policy.Policy{pol}, nil
}

// bundleVariant fetches a named group of secrets and emits them as a JSON
// object keyed by secret_id. Format is not consulted: a bundle is always
// emitted as JSON.
type bundleVariant struct {
	g      uuid.UUID
	id     string
	format string
	store  store.Store
	logger logr.Logger
}

func (b *bundleVariant) guid() uuid.UUID { return b.g }

func (b *bundleVariant) payload(ctx context.Context, _ policy.Connection) ([]byte, error) {
	ids, err := b.store.GetKeysetIDs(ctx, b.id)
	if err != nil {
		return nil, fmt.Errorf("keyset %q: %w", b.id, err)
	}

	members := make(map[string]string, len(ids))
	for _, sid := range ids {
		key, err := b.store.GetSecret(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("keyset %q member %q: %w", b.id, sid, err)
		}
		members[sid] = key.Payload
	}
	return marshalJSON(members)
}

func (b *bundleVariant) policies(ctx context.Context) ([]policy.Policy, error) {
	var out []policy.Policy

	pol, found, err := b.store.GetKeysetPolicy(ctx, b.id)
	if err != nil {
		return nil, fmt.Errorf("keyset policy %q: %w", b.id, err)
	}
	if found {
		out = append(out, pol)
	}

	ids, err := b.store.GetKeysetIDs(ctx, b.id)
	if err != nil {
		return nil, fmt.Errorf("keyset %q: %w", b.id, err)
	}
	for _, sid := range ids {
		memberPol, found, err := b.store.GetSecretPolicy(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("member policy %q: %w", sid, err)
		}
		if !found {
			b.logger.V(1).Info("member has no policy binding, skipping", "keyset", b.id, "member", sid)
			continue
		}
		out = append(out, memberPol)
	}
	return out, nil
}

// reportVariant signs a JSON-serialized Connection under a stored PKCS#8
// ECDSA-P256 keypair.
type reportVariant struct {
	g     uuid.UUID
	id    string
	store store.Store
}

func (r *reportVariant) guid() uuid.UUID { return r.g }

func (r *reportVariant) payload(ctx context.Context, conn policy.Connection) ([]byte, error) {
	keypairBytes, err := r.store.GetReportKeypair(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("report keypair %q: %w", r.id, err)
	}

	raw, err := x509.ParsePKCS8PrivateKey(keypairBytes)
	if err != nil {
		return nil, fmt.Errorf("report keypair %q: parsing PKCS#8: %w", r.id, err)
	}
	priv, ok := raw.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("report keypair %q is not ECDSA", r.id)
	}

	connBytes, err := marshalJSON(connectionJSON{
		Policy:            conn.Policy,
		FWAPIMajor:        conn.FWAPIMajor,
		FWAPIMinor:        conn.FWAPIMinor,
		FWBuildID:         conn.FWBuildID,
		LaunchDescription: conn.LaunchDescription,
		FWDigest:          conn.FWDigest,
	})
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(connBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, hash[:])
	if err != nil {
		return nil, fmt.Errorf("signing report %q: %w", r.id, err)
	}

	return marshalJSON(reportJSON{
		Connection: string(connBytes),
		Signature:  base64.StdEncoding.EncodeToString(sig),
	})
}

func (r *reportVariant) policies(ctx context.Context) ([]policy.Policy, error) {
	pol, err := r.store.GetSigningKeysPolicy(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("signing key policy %q: %w", r.id, err)
	}
	if pol == nil {
		return nil, nil
	}
	return []policy.Policy{*pol}, nil
}

// connectionVariant persists the verified connection under a fresh UUID
// and symmetric key, returning a compact binary encoding of both. Carries
// no policy of its own: governed only by tenant default.
type connectionVariant struct {
	g     uuid.UUID
	store store.Store
}

func (c *connectionVariant) guid() uuid.UUID { return c.g }

func (c *connectionVariant) payload(ctx context.Context, conn policy.Connection) ([]byte, error) {
	id, key, err := c.store.InsertConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("inserting connection: %w", err)
	}

	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("connection id %q: %w", id, err)
	}
	idBytes, err := u.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding connection id: %w", err)
	}

	out := make([]byte, 0, 16+4+len(key))
	out = append(out, idBytes...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(key)))
	out = append(out, []byte(key)...)
	return out, nil
}

func (c *connectionVariant) policies(context.Context) ([]policy.Policy, error) {
	return nil, nil
}
