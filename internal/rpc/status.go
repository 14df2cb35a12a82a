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
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sevkbs/kbs/internal/broker"
)

// taxonomyOf names the broker error taxonomy member err wraps, or "" if it
// doesn't match one of the seven sentinels.
func taxonomyOf(err error) string {
	switch {
	case errors.Is(err, broker.ErrClientMalformed):
		return "ClientMalformed"
	case errors.Is(err, broker.ErrPolicyRejected):
		return "PolicyRejected"
	case errors.Is(err, broker.ErrMeasurementInvalid):
		return "MeasurementInvalid"
	case errors.Is(err, broker.ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, broker.ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, broker.ErrCryptoFailure):
		return "CryptoFailure"
	case errors.Is(err, broker.ErrInternal):
		return "Internal"
	default:
		return ""
	}
}

// toStatus maps a broker error to the gRPC status its taxonomy member
// prescribes: InvalidArgument for malformed client input, PermissionDenied
// for policy/measurement rejection, NotFound for an absent session,
// Unavailable for store I/O failure, and Internal for everything else
// (including errors the taxonomy doesn't recognize).
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, broker.ErrClientMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, broker.ErrPolicyRejected), errors.Is(err, broker.ErrMeasurementInvalid):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, broker.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, broker.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
