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

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver (pure Go, no cgo)

	"github.com/sevkbs/kbs/internal/dbutil"
	"github.com/sevkbs/kbs/internal/policy"
)

// Compile-time interface check.
var _ Store = (*SQLStore)(nil)

// SQLStore implements Store over database/sql, with query text rewritten
// per dialect at call time. One instance backs whichever single dialect
// KBS_DB_TYPE selects.
type SQLStore struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// Config holds connection and pool settings for SQLStore.
type Config struct {
	Dialect  dbutil.Dialect
	DSN      string
	MaxConns int // capped at 1000 regardless of the requested value
}

const defaultMaxConns = 25

// Open creates a SQLStore for the configured dialect and DSN.
func Open(cfg Config) (*SQLStore, error) {
	db, err := sql.Open(cfg.Dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Dialect, err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if maxConns > 1000 {
		maxConns = 1000
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &SQLStore{db: db, dialect: cfg.Dialect}, nil
}

// NewFromDB wraps an already-open *sql.DB (used by tests to share an
// in-process SQLite database).
func NewFromDB(db *sql.DB, dialect dbutil.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rewrite(query)
}

// --- connections -------------------------------------------------------

func (s *SQLStore) InsertConnection(ctx context.Context, c policy.Connection) (string, string, error) {
	id := uuid.New().String()

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("generating connection key: %w", err)
	}
	symKey := base64.StdEncoding.EncodeToString(keyBytes)

	query := fmt.Sprintf(`INSERT INTO conn_bundle
		(id, policy, fw_api_major, fw_api_minor, fw_build_id, launch_description, fw_digest, symkey, create_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, %s)`, s.dialect.NowLiteral())

	_, err := s.db.ExecContext(ctx, s.q(query),
		id, c.Policy, c.FWAPIMajor, c.FWAPIMinor, c.FWBuildID, c.LaunchDescription, c.FWDigest, symKey)
	if err != nil {
		return "", "", fmt.Errorf("inserting connection: %w", err)
	}
	return id, symKey, nil
}

func (s *SQLStore) GetConnection(ctx context.Context, id string) (policy.Connection, string, error) {
	query := `SELECT policy, fw_api_major, fw_api_minor, fw_build_id, launch_description, fw_digest, symkey
		FROM conn_bundle WHERE id = ?`

	var c policy.Connection
	var symKey string
	row := s.db.QueryRowContext(ctx, s.q(query), id)
	err := row.Scan(&c.Policy, &c.FWAPIMajor, &c.FWAPIMinor, &c.FWBuildID, &c.LaunchDescription, &c.FWDigest, &symKey)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Connection{}, "", ErrNotFound
	}
	if err != nil {
		return policy.Connection{}, "", fmt.Errorf("getting connection: %w", err)
	}
	return c, symKey, nil
}

func (s *SQLStore) DeleteConnection(ctx context.Context, id string) error {
	return s.execExpectingRow(ctx, `DELETE FROM conn_bundle WHERE id = ?`, id)
}

// --- policies ------------------------------------------------------------

func (s *SQLStore) InsertPolicy(ctx context.Context, p policy.Policy) (uint64, error) {
	digests, err := dbutil.MarshalJSONList(p.AllowedDigests)
	if err != nil {
		return 0, err
	}
	policies, err := dbutil.MarshalJSONUint32List(p.AllowedPolicies)
	if err != nil {
		return 0, err
	}
	buildIDs, err := dbutil.MarshalJSONUint32List(p.AllowedBuildIDs)
	if err != nil {
		return 0, err
	}

	cols := `allowed_digests, allowed_policies, min_fw_api_major, min_fw_api_minor, allowed_build_ids, create_date, valid`
	vals := fmt.Sprintf(`?, ?, ?, ?, ?, %s, 1`, s.dialect.NowLiteral())
	args := []any{string(digests), string(policies), p.MinFWAPIMajor, p.MinFWAPIMinor, string(buildIDs)}

	if s.dialect.SupportsReturning() {
		query := fmt.Sprintf(`INSERT INTO policy (%s) VALUES (%s) RETURNING id`, cols, vals)
		var id uint64
		if err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("inserting policy: %w", err)
		}
		return id, nil
	}

	query := fmt.Sprintf(`INSERT INTO policy (%s) VALUES (%s)`, cols, vals)
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("inserting policy: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading policy id: %w", err)
	}
	return uint64(lastID), nil
}

func (s *SQLStore) GetPolicy(ctx context.Context, id uint64) (policy.Policy, error) {
	query := `SELECT id, allowed_digests, allowed_policies, min_fw_api_major, min_fw_api_minor, allowed_build_ids
		FROM policy WHERE id = ? AND valid = 1`
	return s.scanPolicyRow(s.db.QueryRowContext(ctx, s.q(query), id))
}

func (s *SQLStore) DeletePolicy(ctx context.Context, id uint64) error {
	return s.execExpectingRow(ctx, `DELETE FROM policy WHERE id = ?`, id)
}

func (s *SQLStore) scanPolicyRow(row *sql.Row) (policy.Policy, error) {
	var p policy.Policy
	var digests, policies, buildIDs string
	err := row.Scan(&p.ID, &digests, &policies, &p.MinFWAPIMajor, &p.MinFWAPIMinor, &buildIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Policy{}, ErrNotFound
	}
	if err != nil {
		return policy.Policy{}, fmt.Errorf("scanning policy: %w", err)
	}
	p.Valid = true

	if p.AllowedDigests, err = dbutil.UnmarshalJSONList([]byte(digests)); err != nil {
		return policy.Policy{}, fmt.Errorf("decoding allowed_digests: %w", err)
	}
	if p.AllowedPolicies, err = dbutil.UnmarshalJSONUint32List([]byte(policies)); err != nil {
		return policy.Policy{}, fmt.Errorf("decoding allowed_policies: %w", err)
	}
	if p.AllowedBuildIDs, err = dbutil.UnmarshalJSONUint32List([]byte(buildIDs)); err != nil {
		return policy.Policy{}, fmt.Errorf("decoding allowed_build_ids: %w", err)
	}
	return p, nil
}

// --- secrets ---------------------------------------------------------------

func (s *SQLStore) InsertSecret(ctx context.Context, secretID, secret string, polid *uint64) error {
	query := `INSERT INTO secrets (secret_id, secret, polid) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.q(query), secretID, secret, polid)
	if err != nil {
		return fmt.Errorf("inserting secret: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSecret(ctx context.Context, secretID string) (Key, error) {
	query := `SELECT secret_id, secret FROM secrets WHERE secret_id = ?`
	var k Key
	err := s.db.QueryRowContext(ctx, s.q(query), secretID).Scan(&k.ID, &k.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Key{}, ErrNotFound
	}
	if err != nil {
		return Key{}, fmt.Errorf("getting secret: %w", err)
	}
	return k, nil
}

func (s *SQLStore) DeleteSecret(ctx context.Context, secretID string) error {
	return s.execExpectingRow(ctx, `DELETE FROM secrets WHERE secret_id = ?`, secretID)
}

func (s *SQLStore) GetSecretPolicy(ctx context.Context, secretID string) (policy.Policy, bool, error) {
	query := `SELECT p.id, p.allowed_digests, p.allowed_policies, p.min_fw_api_major, p.min_fw_api_minor, p.allowed_build_ids
		FROM secrets s JOIN policy p ON s.polid = p.id
		WHERE s.secret_id = ? AND p.valid = 1`
	pol, err := s.scanPolicyRow(s.db.QueryRowContext(ctx, s.q(query), secretID))
	if errors.Is(err, ErrNotFound) {
		return policy.Policy{}, false, nil
	}
	if err != nil {
		return policy.Policy{}, false, err
	}
	return pol, true, nil
}

// --- keysets -----------------------------------------------------------

func (s *SQLStore) InsertKeyset(ctx context.Context, keysetID string, members []string, polid *uint64) error {
	memberJSON, err := dbutil.MarshalJSONList(members)
	if err != nil {
		return err
	}
	query := `INSERT INTO keysets (keysetid, kskeys, polid) VALUES (?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.q(query), keysetID, string(memberJSON), polid)
	if err != nil {
		return fmt.Errorf("inserting keyset: %w", err)
	}
	return nil
}

func (s *SQLStore) GetKeysetIDs(ctx context.Context, keysetID string) ([]string, error) {
	query := `SELECT kskeys FROM keysets WHERE keysetid = ?`
	var raw string
	err := s.db.QueryRowContext(ctx, s.q(query), keysetID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting keyset: %w", err)
	}
	return dbutil.UnmarshalJSONList([]byte(raw))
}

func (s *SQLStore) GetKeysetPolicy(ctx context.Context, keysetID string) (policy.Policy, bool, error) {
	query := `SELECT p.id, p.allowed_digests, p.allowed_policies, p.min_fw_api_major, p.min_fw_api_minor, p.allowed_build_ids
		FROM keysets k JOIN policy p ON k.polid = p.id
		WHERE k.keysetid = ? AND p.valid = 1`
	pol, err := s.scanPolicyRow(s.db.QueryRowContext(ctx, s.q(query), keysetID))
	if errors.Is(err, ErrNotFound) {
		return policy.Policy{}, false, nil
	}
	if err != nil {
		return policy.Policy{}, false, err
	}
	return pol, true, nil
}

func (s *SQLStore) DeleteKeyset(ctx context.Context, keysetID string) error {
	return s.execExpectingRow(ctx, `DELETE FROM keysets WHERE keysetid = ?`, keysetID)
}

// --- report keypairs -----------------------------------------------------

func (s *SQLStore) InsertReportKeypair(ctx context.Context, keyID string, keypair []byte, polid *uint64) error {
	query := `INSERT INTO report_keypair (key_id, keypair, polid) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.q(query), keyID, base64.StdEncoding.EncodeToString(keypair), polid)
	if err != nil {
		return fmt.Errorf("inserting report keypair: %w", err)
	}
	return nil
}

func (s *SQLStore) GetReportKeypair(ctx context.Context, keyID string) ([]byte, error) {
	query := `SELECT keypair FROM report_keypair WHERE key_id = ?`
	var encoded string
	err := s.db.QueryRowContext(ctx, s.q(query), keyID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting report keypair: %w", err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func (s *SQLStore) DeleteReportKeypair(ctx context.Context, keyID string) error {
	return s.execExpectingRow(ctx, `DELETE FROM report_keypair WHERE key_id = ?`, keyID)
}

func (s *SQLStore) GetSigningKeysPolicy(ctx context.Context, keyID string) (*policy.Policy, error) {
	var polid sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT polid FROM report_keypair WHERE key_id = ?`), keyID).Scan(&polid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting signing key policy binding: %w", err)
	}
	if !polid.Valid {
		return nil, nil
	}
	pol, err := s.GetPolicy(ctx, uint64(polid.Int64))
	if err != nil {
		return nil, err
	}
	return &pol, nil
}

// --- helpers ---------------------------------------------------------------

func (s *SQLStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("executing %q: %w", query, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
