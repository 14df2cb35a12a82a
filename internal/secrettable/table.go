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
	"fmt"

	"github.com/google/uuid"
)

const entryHeaderLen = 16 + 4 // guid + u32 length
const tableHeaderLen = 16 + 4

// entry is one GUID-tagged payload inside the table.
type entry struct {
	guid    uuid.UUID
	payload []byte
}

func (e entry) encode() ([]byte, error) {
	guidBytes := uuidToSEVBytes(e.guid)
	totalLen := uint64(len(e.payload)) + entryHeaderLen
	if totalLen > 0xFFFFFFFF {
		return nil, fmt.Errorf("secrettable: entry %s payload too large (%d bytes)", e.guid, len(e.payload))
	}

	out := make([]byte, 0, entryHeaderLen+len(e.payload))
	out = append(out, guidBytes[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(totalLen))
	out = append(out, e.payload...)
	return out, nil
}

// buildTable concatenates entries' binary encodings under the fixed
// tableGUID header and pads the result to a 16-byte boundary with zeros.
// The length fields (both entry and table) exclude trailing padding.
func buildTable(entries []entry) ([]byte, error) {
	var body []byte
	for _, e := range entries {
		enc, err := e.encode()
		if err != nil {
			return nil, err
		}
		body = append(body, enc...)
	}

	totalLen := uint64(len(body)) + tableHeaderLen
	if totalLen > 0xFFFFFFFF {
		return nil, fmt.Errorf("secrettable: table too large (%d bytes)", len(body))
	}

	tableGUIDBytes := uuidToSEVBytes(tableGUID)
	out := make([]byte, 0, tableHeaderLen+len(body))
	out = append(out, tableGUIDBytes[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(totalLen))
	out = append(out, body...)

	if pad := (16 - len(out)%16) % 16; pad != 0 {
		out = append(out, make([]byte, pad)...)
	}
	return out, nil
}
