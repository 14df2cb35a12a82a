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

// Package store defines the backend-agnostic persistence layer: connections,
// policies, secrets, keysets, and report-signing keypairs. A single
// implementation (SQLStore) serves SQLite, MySQL, and PostgreSQL through
// database/sql, with dialect-specific scaffolding confined to internal/dbutil.
package store

import (
	"context"
	"errors"

	"github.com/sevkbs/kbs/internal/policy"
)

// ErrNotFound is returned when a requested row does not exist (or, for
// policies, exists but has valid=0).
var ErrNotFound = errors.New("store: not found")

// Key is a secret payload keyed by secret_id, as persisted in the secrets
// table and returned for the "key" secret_type during assembly.
type Key struct {
	ID      string
	Payload string // base64-encoded secret bytes
}

// Store is the persistence interface every RPC handler and assembler
// component depends on.
type Store interface {
	// InsertConnection persists a freshly observed connection, generating a
	// UUID v4 primary key and a fresh 32-byte symmetric key (returned
	// base64-encoded). Connections are immutable once written.
	InsertConnection(ctx context.Context, c policy.Connection) (id string, symKey string, err error)
	// GetConnection retrieves a connection and its symmetric key by ID.
	GetConnection(ctx context.Context, id string) (policy.Connection, string, error)
	DeleteConnection(ctx context.Context, id string) error

	// InsertPolicy persists p with valid=1 and a dialect-appropriate
	// create_date, returning the auto-assigned policy id.
	InsertPolicy(ctx context.Context, p policy.Policy) (id uint64, err error)
	// GetPolicy returns the policy with the given id, only if valid=1.
	GetPolicy(ctx context.Context, id uint64) (policy.Policy, error)
	DeletePolicy(ctx context.Context, id uint64) error

	// InsertSecret persists a secret payload, optionally bound to a policy.
	InsertSecret(ctx context.Context, secretID, secret string, polid *uint64) error
	GetSecret(ctx context.Context, secretID string) (Key, error)
	DeleteSecret(ctx context.Context, secretID string) error
	// GetSecretPolicy joins secrets.polid -> policy.id. found is false when
	// the secret exists but carries no policy binding.
	GetSecretPolicy(ctx context.Context, secretID string) (p policy.Policy, found bool, err error)

	// InsertKeyset persists a named group of secret ids.
	InsertKeyset(ctx context.Context, keysetID string, members []string, polid *uint64) error
	GetKeysetIDs(ctx context.Context, keysetID string) ([]string, error)
	GetKeysetPolicy(ctx context.Context, keysetID string) (p policy.Policy, found bool, err error)
	DeleteKeyset(ctx context.Context, keysetID string) error

	// InsertReportKeypair persists a PKCS#8 ECDSA-P256 private key, base64-encoded.
	InsertReportKeypair(ctx context.Context, keyID string, keypair []byte, polid *uint64) error
	GetReportKeypair(ctx context.Context, keyID string) ([]byte, error)
	DeleteReportKeypair(ctx context.Context, keyID string) error
	// GetSigningKeysPolicy returns (nil, nil) when the row exists but has no
	// polid, and ErrNotFound when the row itself is missing.
	GetSigningKeysPolicy(ctx context.Context, keyID string) (*policy.Policy, error)

	// Close releases the underlying connection pool.
	Close() error
}
