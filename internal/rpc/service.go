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

	"google.golang.org/grpc"
)

const serviceName = "kbs.v1.KeyBrokerService"

// KeyBrokerServiceServer is the server-side contract for the two unary
// attestation RPCs.
type KeyBrokerServiceServer interface {
	GetBundle(ctx context.Context, req *BundleRequest) (*BundleResponse, error)
	GetSecret(ctx context.Context, req *SecretRequest) (*SecretResponse, error)
}

// KeyBrokerServiceClient is the client-side stub for the same two RPCs.
type KeyBrokerServiceClient interface {
	GetBundle(ctx context.Context, in *BundleRequest, opts ...grpc.CallOption) (*BundleResponse, error)
	GetSecret(ctx context.Context, in *SecretRequest, opts ...grpc.CallOption) (*SecretResponse, error)
}

type keyBrokerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewKeyBrokerServiceClient wraps a ClientConn in the KeyBrokerServiceClient stub.
func NewKeyBrokerServiceClient(cc grpc.ClientConnInterface) KeyBrokerServiceClient {
	return &keyBrokerServiceClient{cc: cc}
}

func (c *keyBrokerServiceClient) GetBundle(ctx context.Context, in *BundleRequest, opts ...grpc.CallOption) (*BundleResponse, error) {
	out := new(BundleResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetBundle", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keyBrokerServiceClient) GetSecret(ctx context.Context, in *SecretRequest, opts ...grpc.CallOption) (*SecretResponse, error) {
	out := new(SecretResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetSecret", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func getBundleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BundleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeyBrokerServiceServer).GetBundle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetBundle"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeyBrokerServiceServer).GetBundle(ctx, req.(*BundleRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getSecretHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SecretRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeyBrokerServiceServer).GetSecret(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetSecret"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(KeyBrokerServiceServer).GetSecret(ctx, req.(*SecretRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc, registered with a *grpc.Server via
// RegisterKeyBrokerServiceServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*KeyBrokerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBundle", Handler: getBundleHandler},
		{MethodName: "GetSecret", Handler: getSecretHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kbs.proto",
}

// RegisterKeyBrokerServiceServer registers srv on s.
func RegisterKeyBrokerServiceServer(s grpc.ServiceRegistrar, srv KeyBrokerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
