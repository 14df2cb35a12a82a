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

// Package rpc exposes the broker's two unary operations over
// google.golang.org/grpc. The wire schema is field-for-field what the
// external interface names, but without generated protobuf code: a
// registered JSON codec replaces the default "proto" codec (see codec.go),
// so these plain structs serve directly as request/response types without
// a .proto/protoc step.
package rpc

// RequestDetails names one secret table entry a guest is asking to receive.
type RequestDetails struct {
	GUID       string `json:"guid"`
	Format     string `json:"format"`
	SecretType string `json:"secret_type"`
	ID         string `json:"id"`
}

// BundleRequest is GetBundle's input.
type BundleRequest struct {
	Policy           uint32 `json:"policy"`
	CertificateChain string `json:"certificate_chain"`
}

// BundleResponse is GetBundle's output.
type BundleResponse struct {
	GuestOwnerPublicKey string `json:"guest_owner_public_key"`
	LaunchBlob          string `json:"launch_blob"`
	LaunchID            string `json:"launch_id"`
}

// SecretRequest is GetSecret's input.
type SecretRequest struct {
	LaunchID          string           `json:"launch_id"`
	Policy            uint32           `json:"policy"`
	APIMajor          uint32           `json:"api_major"`
	APIMinor          uint32           `json:"api_minor"`
	BuildID           uint32           `json:"build_id"`
	LaunchDescription string           `json:"launch_description"`
	FWDigest          string           `json:"fw_digest"`
	SecretRequests    []RequestDetails `json:"secret_requests"`
	LaunchMeasurement string           `json:"launch_measurement"`
}

// SecretResponse is GetSecret's output.
type SecretResponse struct {
	LaunchSecretHeader string `json:"launch_secret_header"`
	LaunchSecretData   string `json:"launch_secret_data"`
}
