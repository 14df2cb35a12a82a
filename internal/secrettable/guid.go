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

package secrettable

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// tableGUID is the fixed GUID prefixing every secret table, in its
// canonical (non-wire) form.
var tableGUID = uuid.MustParse("1e74f542-71dd-4d66-963e-ef4287ff173b")

// uuidToSEVBytes converts a canonical (RFC 4122, big-endian) UUID into SEV's
// "mixed-endian" Microsoft wire layout: the first three fields (time_low
// u32, time_mid u16, time_hi_and_version u16) are byte-swapped to
// little-endian; the remaining 8 bytes (clock sequence + node) are copied
// verbatim.
func uuidToSEVBytes(u uuid.UUID) [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(out[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(out[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(out[8:16], u[8:16])
	return out
}
