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

import "errors"

// Error taxonomy. Every broker failure wraps exactly one of these so the
// RPC layer can map it to a transport status without inspecting message
// text.
var (
	// ErrClientMalformed covers undecodable base64, bad UUIDs, unknown
	// secret_type/format.
	ErrClientMalformed = errors.New("client malformed")
	// ErrPolicyRejected is returned verbatim with the first-failing rule's
	// reason string; callers must not enumerate further rules.
	ErrPolicyRejected = errors.New("policy rejected")
	// ErrMeasurementInvalid means the platform rejected the launch
	// measurement.
	ErrMeasurementInvalid = errors.New("measurement invalid")
	// ErrSessionNotFound means launch_id is absent or already consumed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable covers database I/O errors and missing rows
	// surfaced during policy/payload collection.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCryptoFailure covers transport-key encryption failures and
	// certificate chain verification failures. Report keypair loading and
	// signing run during table assembly, and their errors are reported as
	// ErrStoreUnavailable.
	ErrCryptoFailure = errors.New("crypto failure")
	// ErrInternal is the fallback for unexpected conditions.
	ErrInternal = errors.New("internal error")
)
