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

package rpc

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sevkbs/kbs/internal/broker"
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

type fakeStore struct{ secrets map[string]store.Key }

func newFakeStore() *fakeStore { return &fakeStore{secrets: map[string]store.Key{}} }

func (f *fakeStore) InsertConnection(context.Context, policy.Connection) (string, string, error) {
	return "conn-1", "key", nil
}
func (f *fakeStore) GetConnection(context.Context, string) (policy.Connection, string, error) {
	return policy.Connection{}, "", store.ErrNotFound
}
func (f *fakeStore) DeleteConnection(context.Context, string) error              { return nil }
func (f *fakeStore) InsertPolicy(context.Context, policy.Policy) (uint64, error) { return 1, nil }
func (f *fakeStore) GetPolicy(context.Context, uint64) (policy.Policy, error) {
	return policy.Policy{}, store.ErrNotFound
}
func (f *fakeStore) DeletePolicy(context.Context, uint64) error { return nil }
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

func newTestServer(t *testing.T, defaultPol policy.Policy) *Server {
	t.Helper()
	st := newFakeStore()
	adapter := sev.NewAdapter(fakePlatform{}, logr.Discard())
	sessions := sessionstore.New(sessionstore.DefaultTTL, logr.Discard())
	t.Cleanup(sessions.Close)
	assembler := secrettable.NewAssembler(st, logr.Discard())
	b := broker.New(adapter, sessions, assembler, fakeDefaultPolicy{pol: defaultPol}, logr.Discard())
	return NewServer(b, logr.Discard())
}

func TestServer_GetBundle(t *testing.T) {
	s := newTestServer(t, policy.Policy{Valid: true})

	resp, err := s.GetBundle(context.Background(), &BundleRequest{
		Policy:           1,
		CertificateChain: base64.StdEncoding.EncodeToString([]byte("chain")),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.LaunchID)
	require.NotEmpty(t, resp.GuestOwnerPublicKey)
	require.NotEmpty(t, resp.LaunchBlob)
}

func TestServer_GetSecret_HappyPath(t *testing.T) {
	s := newTestServer(t, policy.Policy{Valid: true})
	ctx := context.Background()

	bundle, err := s.GetBundle(ctx, &BundleRequest{CertificateChain: base64.StdEncoding.EncodeToString([]byte("chain"))})
	require.NoError(t, err)

	resp, err := s.GetSecret(ctx, &SecretRequest{
		LaunchID:          bundle.LaunchID,
		FWDigest:          base64.StdEncoding.EncodeToString([]byte("digest")),
		LaunchMeasurement: base64.StdEncoding.EncodeToString([]byte("measurement")),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.LaunchSecretHeader)
	require.NotEmpty(t, resp.LaunchSecretData)
}

func TestServer_GetSecret_SessionNotFound_MapsToNotFound(t *testing.T) {
	s := newTestServer(t, policy.Policy{Valid: true})

	_, err := s.GetSecret(context.Background(), &SecretRequest{
		LaunchID:          "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		FWDigest:          base64.StdEncoding.EncodeToString([]byte("digest")),
		LaunchMeasurement: base64.StdEncoding.EncodeToString([]byte("measurement")),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, broker.ErrSessionNotFound)

	st, ok := status.FromError(toStatus(err))
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
}

func TestServer_GetSecret_ClientMalformed_StatusInterceptor(t *testing.T) {
	s := newTestServer(t, policy.Policy{Valid: true})

	_, err := s.GetSecret(context.Background(), &SecretRequest{LaunchID: "not-a-uuid"})
	require.Error(t, err)

	wrapped := toStatus(err)
	st, ok := status.FromError(wrapped)
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())
}

func TestToStatus_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{broker.ErrClientMalformed, codes.InvalidArgument},
		{broker.ErrPolicyRejected, codes.PermissionDenied},
		{broker.ErrMeasurementInvalid, codes.PermissionDenied},
		{broker.ErrSessionNotFound, codes.NotFound},
		{broker.ErrStoreUnavailable, codes.Unavailable},
		{broker.ErrCryptoFailure, codes.Internal},
		{broker.ErrInternal, codes.Internal},
	}
	for _, c := range cases {
		st, ok := status.FromError(toStatus(c.err))
		require.True(t, ok)
		require.Equal(t, c.code, st.Code())
	}
}
