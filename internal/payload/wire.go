// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package payload decodes the tag-length-value (protocol-buffer wire
// compatible) application payloads carried inside Notify envelopes, and
// applies the decoded domain events to the aggregate store.
package payload

import "google.golang.org/protobuf/encoding/protowire"

// field is one decoded top-level field: its number, wire type and raw
// bytes (the varint value for wire type 0, or the inner bytes for wire
// type 2 with the length prefix already stripped).
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

// walkFields parses a flat sequence of protobuf-wire fields out of data,
// skipping any wire type it does not recognize (0 and 2 are handled;
// others are consumed and discarded via protowire's own skip logic so the
// decoder stays forward-compatible with protocol evolution).
func walkFields(data []byte) []field {
	var out []field
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return out
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out
			}
			out = append(out, field{num: num, typ: typ, varint: v})
			data = data[n:]
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out
			}
			out = append(out, field{num: num, typ: typ, bytes: b})
			data = data[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return out
			}
			data = data[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return out
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return out
			}
			data = data[n:]
		}
	}
	return out
}

// firstVarint returns the value of the first field with the given number
// and wire type Varint, and whether it was present.
func firstVarint(fields []field, num protowire.Number) (uint64, bool) {
	for _, f := range fields {
		if f.num == num && f.typ == protowire.VarintType {
			return f.varint, true
		}
	}
	return 0, false
}

// firstBytes returns the raw bytes of the first field with the given
// number and wire type Bytes, and whether it was present.
func firstBytes(fields []field, num protowire.Number) ([]byte, bool) {
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			return f.bytes, true
		}
	}
	return nil, false
}

// allBytes returns the raw bytes of every field with the given number and
// wire type Bytes, in encounter order (used for repeated message fields).
func allBytes(fields []field, num protowire.Number) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			out = append(out, f.bytes)
		}
	}
	return out
}
