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
	"context"
	"encoding/base64"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/sevkbs/kbs/internal/policy"
	"github.com/sevkbs/kbs/internal/secrettable"
	"github.com/sevkbs/kbs/internal/sessionstore"
	"github.com/sevkbs/kbs/internal/sev"
	"github.com/sevkbs/kbs/internal/store"
)

type fakePlatform struct{}

func (fakePlatform) Start(policyBits uint32, certChain []byte) ([]byte, []byte, error) {
	return []byte("godh"), []byte("state"), nil
}
func (fakePlatform) Verify(sessionState []byte, digest []byte, build sev.Build, measurement []byte) ([]byte, error) {
	return []byte("verified"), nil
}
func (fakePlatform) Secret(verifiedState []byte, payload []byte) ([]byte, []byte, error) {
	return []byte("header"), []byte("data"), nil
}

type fakeStore struct {
	secrets map[string]store.Key
}

func newFakeStore() *fakeStore { return &fakeStore{secrets: map[string]store.Key{}} }

func (f *fakeStore) InsertConnection(context.Context, policy.Connection) (string, string, error) {
	return "conn-1", "key", nil
}
func (f *fakeStore) GetConnection(context.Context, string) (policy.Connection, string, error) {
	return policy.Connection{}, "", store.ErrNotFound
}
func (f *fakeStore) DeleteConnection(context.Context, string) error                  { return nil }
func (f *fakeStore) InsertPolicy(context.Context, policy.Policy) (uint64, error)     { return 1, nil }
func (f *fakeStore) GetPolicy(context.Context, uint64) (policy.Policy, error)        { return policy.Policy{}, store.ErrNotFound }
func (f *fakeStore) DeletePolicy(context.Context, uint64) error                     { return nil }
func (f *fakeStore) InsertSecret(_ context.Context, id, secret string, _ *uint64) error {
	f.secrets[id] = store.Key{ID: id, Payload: secret}
	return nil
}
func (f *fakeStore) GetSecret(_ context.Context, id string) (store.Key, error) {
	k, ok := f.secrets[id]
	if !ok {
		return store.Key{}, store.ErrNotFound
	}
	return k, nil
}
func (f *fakeStore) DeleteSecret(context.Context, string) error { return nil }
func (f *fakeStore) GetSecretPolicy(context.Context, string) (policy.Policy, bool, error) {
	return policy.Policy{}, false, nil
}
func (f *fakeStore) InsertKeyset(context.Context, string, []string, *uint64) error { return nil }
func (f *fakeStore) GetKeysetIDs(context.Context, string) ([]string, error)       { return nil, store.ErrNotFound }
func (f *fakeStore) GetKeysetPolicy(context.Context, string) (policy.Policy, bool, error) {
	return policy.Policy{}, false, nil
}
func (f *fakeStore) DeleteKeyset(context.Context, string) error { return nil }
func (f *fakeStore) InsertReportKeypair(context.Context, string, []byte, *uint64) error {
	return nil
}
func (f *fakeStore) GetReportKeypair(context.Context, string) ([]byte, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) DeleteReportKeypair(context.Context, string) error { return nil }
func (f *fakeStore) GetSigningKeysPolicy(context.Context, string) (*policy.Policy, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) Close() error { return nil }

type fakeDefaultPolicy struct{ pol policy.Policy }

func (f fakeDefaultPolicy) Load() (policy.Policy, error) { return f.pol, nil }

func newTestBroker(t *testing.T, defaultPol policy.Policy) (*Broker, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	adapter := sev.NewAdapter(fakePlatform{}, logr.Discard())
	sessions := sessionstore.New(sessionstore.DefaultTTL, logr.Discard())
	t.Cleanup(sessions.Close)
	assembler := secrettable.NewAssembler(st, logr.Discard())
	return New(adapter, sessions, assembler, fakeDefaultPolicy{pol: defaultPol}, logr.Discard()), st
}

func TestBroker_GetBundle(t *testing.T) {
	b, _ := newTestBroker(t, policy.Policy{Valid: true})

	certChain := base64.StdEncoding.EncodeToString([]byte("chain"))
	godh, blob, launchID, err := b.GetBundle(context.Background(), 1, certChain)
	require.NoError(t, err)
	require.NotEmpty(t, godh)
	require.NotEmpty(t, blob)
	require.NotEmpty(t, launchID)
}

func TestBroker_GetSecret_HappyPath(t *testing.T) {
	b, st := newTestBroker(t, policy.Policy{MinFWAPIMajor: 1, Valid: true})
	ctx := context.Background()
	require.NoError(t, st.InsertSecret(ctx, "sid", base64.StdEncoding.EncodeToString([]byte("s")), nil))

	certChain := base64.StdEncoding.EncodeToString([]byte("chain"))
	_, _, launchID, err := b.GetBundle(ctx, 1, certChain)
	require.NoError(t, err)

	req := SecretRequest{
		LaunchID:          launchID,
		APIMajor:          1,
		APIMinor:          40,
		FWDigest:          base64.StdEncoding.EncodeToString([]byte("digest")),
		LaunchMeasurement: base64.StdEncoding.EncodeToString([]byte("measurement")),
		SecretRequests: []secrettable.RequestDetails{
			{GUID: "2cf13667-ea72-4013-9dd6-155e89c5a28f", Format: "binary", SecretType: "key", ID: "sid"},
		},
	}

	header, data, err := b.GetSecret(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, header)
	require.NotEmpty(t, data)
}

func TestBroker_GetSecret_PolicyRejected(t *testing.T) {
	b, _ := newTestBroker(t, policy.Policy{MinFWAPIMajor: 99, Valid: true})
	ctx := context.Background()

	certChain := base64.StdEncoding.EncodeToString([]byte("chain"))
	_, _, launchID, err := b.GetBundle(ctx, 1, certChain)
	require.NoError(t, err)

	req := SecretRequest{
		LaunchID:          launchID,
		APIMajor:          1,
		FWDigest:          base64.StdEncoding.EncodeToString([]byte("digest")),
		LaunchMeasurement: base64.StdEncoding.EncodeToString([]byte("measurement")),
	}

	_, _, err = b.GetSecret(ctx, req)
	require.ErrorIs(t, err, ErrPolicyRejected)

	// The session is not consumed by a policy rejection (it fails before step 6).
	req2 := req
	_, _, err = b.GetSecret(ctx, req2)
	require.ErrorIs(t, err, ErrPolicyRejected)
}

func TestBroker_GetSecret_SessionNotFound(t *testing.T) {
	b, _ := newTestBroker(t, policy.Policy{Valid: true})

	req := SecretRequest{
		LaunchID:          "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		FWDigest:          base64.StdEncoding.EncodeToString([]byte("digest")),
		LaunchMeasurement: base64.StdEncoding.EncodeToString([]byte("measurement")),
	}

	_, _, err := b.GetSecret(context.Background(), req)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBroker_GetSecret_SingleUse(t *testing.T) {
	b, _ := newTestBroker(t, policy.Policy{Valid: true})
	ctx := context.Background()

	certChain := base64.StdEncoding.EncodeToString([]byte("chain"))
	_, _, launchID, err := b.GetBundle(ctx, 1, certChain)
	require.NoError(t, err)

	req := SecretRequest{
		LaunchID:          launchID,
		FWDigest:          base64.StdEncoding.EncodeToString([]byte("digest")),
		LaunchMeasurement: base64.StdEncoding.EncodeToString([]byte("measurement")),
	}

	_, _, err = b.GetSecret(ctx, req)
	require.NoError(t, err)

	_, _, err = b.GetSecret(ctx, req)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBroker_GetSecret_ClientMalformedLaunchID(t *testing.T) {
	b, _ := newTestBroker(t, policy.Policy{Valid: true})

	req := SecretRequest{LaunchID: "not-a-uuid"}
	_, _, err := b.GetSecret(context.Background(), req)
	require.ErrorIs(t, err, ErrClientMalformed)
}
