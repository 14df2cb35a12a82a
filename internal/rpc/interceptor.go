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
	"path"
	"time"

	"google.golang.org/grpc"

	"github.com/sevkbs/kbs/pkg/metrics"
)

// MetricsInterceptor records RPCDurationSeconds/RPCRequestsTotal/
// RPCErrorsTotal for every unary call, keyed by the bare method name
// (GetBundle/GetSecret) and the broker error taxonomy the handler returned.
// It must be the innermost interceptor (last argument to
// grpc.ChainUnaryInterceptor) so it still sees the Server method's raw
// broker-sentinel error, before StatusInterceptor converts it.
func MetricsInterceptor(m *metrics.BrokerMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordRPC(path.Base(info.FullMethod), time.Since(start), taxonomyOf(err))
		return resp, err
	}
}

// StatusInterceptor converts a Server method's broker-sentinel error into
// the gRPC status toStatus prescribes. It must be the outermost
// interceptor (first argument to grpc.ChainUnaryInterceptor) so the status
// it produces is what actually reaches the client.
func StatusInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, toStatus(err)
		}
		return resp, nil
	}
}
