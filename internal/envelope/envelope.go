// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package envelope decodes the game's outer application envelope: the
// compression flag, the Notify/Return/FrameDown dispatch, and the nested
// frame recursion used by FrameDown.
package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// OuterType enumerates the three recognized envelope shapes.
type OuterType uint16

const (
	TypeNotify    OuterType = 2
	TypeReturn    OuterType = 3
	TypeFrameDown OuterType = 6
)

// NotifyMethod enumerates the service methods dispatched out of a Notify
// envelope, per the shipped schema companion.
type NotifyMethod uint32

const (
	MethodSyncNearEntities       NotifyMethod = 0x06
	MethodSyncContainerData      NotifyMethod = 0x15
	MethodSyncContainerDirtyData NotifyMethod = 0x16
	MethodSyncServerTime         NotifyMethod = 0x2B
	MethodSyncNearDeltaInfo      NotifyMethod = 0x2D
	MethodSyncToMeDeltaInfo      NotifyMethod = 0x2E
)

// TargetServiceUUID is the only service notifications are dispatched for;
// anything else is dropped.
const TargetServiceUUID uint64 = 0x0000000063335342

// maxFrameDownDepth bounds FrameDown recursion against adversarial nesting.
const maxFrameDownDepth = 8

// ErrUnknownOuterType is returned for opcodes whose low 15 bits don't match
// a known outer type; the caller should log and skip, never treat this as
// fatal.
var ErrUnknownOuterType = errors.New("envelope: unknown outer type")

// ErrFrameDownTooDeep bounds FrameDown recursion.
var ErrFrameDownTooDeep = errors.New("envelope: frame-down nesting too deep")

// Notify is a decoded Notify envelope body, ready for payload dispatch.
type Notify struct {
	ServiceUUID uint64
	StubID      uint32
	MethodID    NotifyMethod
	Payload     []byte
}

// FrameDown is a decoded FrameDown envelope: a server sequence id followed
// by one nested frame (size || opcode || body), which the caller must feed
// back through Decode.
type FrameDown struct {
	ServerSequenceID uint32
	Nested           []byte
}

// Decoded is the outcome of decoding one (opcode, body) pair.
type Decoded struct {
	Type   OuterType
	Notify *Notify    // set when Type == TypeNotify and the service matched
	Down   *FrameDown // set when Type == TypeFrameDown
}

// Decoder holds the zstd decoder used for compressed bodies. It is safe
// for concurrent use, though the core pipeline is single-threaded past
// the stream stage.
type Decoder struct {
	mu  sync.Mutex
	zst *zstd.Decoder
}

// NewDecoder builds an envelope Decoder with a shared zstd decoder
// instance (zstd decoders are relatively expensive to construct).
func NewDecoder() (*Decoder, error) {
	zst, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("envelope: building zstd decoder: %w", err)
	}
	return &Decoder{zst: zst}, nil
}

// Close releases the underlying zstd decoder resources.
func (d *Decoder) Close() { d.zst.Close() }

// Decode unwraps one (opcode, body) pair: applies decompression if the
// high bit is set, then dispatches on the low 15 bits. depth tracks
// FrameDown nesting and must start at 0 for a top-level message.
func (d *Decoder) Decode(opcode uint16, body []byte, depth int) (Decoded, error) {
	if depth > maxFrameDownDepth {
		return Decoded{}, ErrFrameDownTooDeep
	}

	compressed := opcode&0x8000 != 0
	outer := OuterType(opcode & 0x7FFF)

	if compressed {
		plain, err := d.decompress(body)
		if err != nil {
			return Decoded{}, fmt.Errorf("envelope: zstd decompress: %w", err)
		}
		body = plain
	}

	switch outer {
	case TypeNotify:
		n, ok, err := decodeNotify(body)
		if err != nil {
			return Decoded{}, err
		}
		if !ok {
			return Decoded{Type: TypeNotify}, nil
		}
		return Decoded{Type: TypeNotify, Notify: &n}, nil
	case TypeReturn:
		return Decoded{Type: TypeReturn}, nil
	case TypeFrameDown:
		if len(body) < 4 {
			return Decoded{}, fmt.Errorf("envelope: frame-down body too short")
		}
		return Decoded{Type: TypeFrameDown, Down: &FrameDown{
			ServerSequenceID: binary.BigEndian.Uint32(body[0:4]),
			Nested:           body[4:],
		}}, nil
	default:
		return Decoded{}, ErrUnknownOuterType
	}
}

// DecodeFrame parses a raw nested Frame (size || opcode || body) as found
// inside a FrameDown envelope and decodes it. depth must be the parent's
// depth + 1.
func (d *Decoder) DecodeFrame(frame []byte, depth int) (Decoded, error) {
	if len(frame) < 6 {
		return Decoded{}, fmt.Errorf("envelope: nested frame too short")
	}
	size := binary.BigEndian.Uint32(frame[0:4])
	if uint64(size) > uint64(len(frame)) || size < 6 {
		return Decoded{}, fmt.Errorf("envelope: nested frame size out of range")
	}
	opcode := binary.BigEndian.Uint16(frame[4:6])
	body := frame[6:size]
	return d.Decode(opcode, body, depth)
}

func (d *Decoder) decompress(body []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zst.DecodeAll(body, nil)
}

// decodeNotify parses serviceUuid||stubId||methodId||payload and reports
// ok=false when the service is not the one this observer tracks.
func decodeNotify(body []byte) (Notify, bool, error) {
	if len(body) < 16 {
		return Notify{}, false, fmt.Errorf("envelope: notify body too short")
	}
	service := binary.BigEndian.Uint64(body[0:8])
	stubID := binary.BigEndian.Uint32(body[8:12])
	methodID := binary.BigEndian.Uint32(body[12:16])
	if service != TargetServiceUUID {
		return Notify{}, false, nil
	}
	return Notify{
		ServiceUUID: service,
		StubID:      stubID,
		MethodID:    NotifyMethod(methodID),
		Payload:     body[16:],
	}, true, nil
}
