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

	"github.com/go-logr/logr"

	"github.com/sevkbs/kbs/internal/broker"
	"github.com/sevkbs/kbs/internal/secrettable"
)

// Server adapts a *broker.Broker to the KeyBrokerServiceServer wire
// contract, converting between the JSON wire structs and the broker's
// transport-agnostic request/result shapes.
type Server struct {
	broker *broker.Broker
	logger logr.Logger
}

// NewServer wraps b as a KeyBrokerServiceServer.
func NewServer(b *broker.Broker, logger logr.Logger) *Server {
	return &Server{broker: b, logger: logger}
}

var _ KeyBrokerServiceServer = (*Server)(nil)

// GetBundle issues a launch bundle for the requesting guest. Errors are
// returned as the broker's own sentinel-wrapped values; MetricsInterceptor
// reads their taxonomy before StatusInterceptor converts them to a gRPC
// status, so both must run in the server's interceptor chain.
func (s *Server) GetBundle(ctx context.Context, req *BundleRequest) (*BundleResponse, error) {
	godh, blob, launchID, err := s.broker.GetBundle(ctx, req.Policy, req.CertificateChain)
	if err != nil {
		return nil, err
	}
	return &BundleResponse{
		GuestOwnerPublicKey: godh,
		LaunchBlob:          blob,
		LaunchID:            launchID,
	}, nil
}

// GetSecret verifies the launch measurement and returns the assembled,
// encrypted secret table.
func (s *Server) GetSecret(ctx context.Context, req *SecretRequest) (*SecretResponse, error) {
	requests := make([]secrettable.RequestDetails, 0, len(req.SecretRequests))
	for _, r := range req.SecretRequests {
		requests = append(requests, secrettable.RequestDetails{
			GUID:       r.GUID,
			Format:     r.Format,
			SecretType: r.SecretType,
			ID:         r.ID,
		})
	}

	header, data, err := s.broker.GetSecret(ctx, broker.SecretRequest{
		LaunchID:          req.LaunchID,
		Policy:            req.Policy,
		APIMajor:          req.APIMajor,
		APIMinor:          req.APIMinor,
		BuildID:           req.BuildID,
		LaunchDescription: req.LaunchDescription,
		FWDigest:          req.FWDigest,
		SecretRequests:    requests,
		LaunchMeasurement: req.LaunchMeasurement,
	})
	if err != nil {
		return nil, err
	}

	return &SecretResponse{
		LaunchSecretHeader: header,
		LaunchSecretData:   data,
	}, nil
}
