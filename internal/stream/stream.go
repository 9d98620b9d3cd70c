// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package stream reassembles accepted TCP payloads from the identified
// game-server flow into a single ordered byte buffer, and frames that
// buffer into discrete length-prefixed application messages.
package stream

import (
	"encoding/binary"
	"errors"
)

// ErrOverflow names the condition in which a declared frame size exceeds
// the buffer cap. Drain does not return it: it reports the condition
// through its overflowed result and clears the buffer, so framing
// restarts with the next bytes appended.
var ErrOverflow = errors.New("stream: frame size exceeds cap")

// Message is a single framed application message: the frame's declared
// size, its big-endian opcode, and the remaining body bytes.
type Message struct {
	Size   uint32
	Opcode uint16
	Body   []byte
}

// Buffer is the per-flow StreamBuffer described in component E. It is not
// safe for concurrent use — by design, the single decode task owns it.
type Buffer struct {
	data []byte
	cap  int64
}

// NewBuffer creates a Buffer bounded by capBytes (spec default 10 MiB).
func NewBuffer(capBytes int64) *Buffer {
	return &Buffer{cap: capBytes}
}

// Append adds newly accepted payload bytes to the tail of the buffer.
func (b *Buffer) Append(payload []byte) {
	b.data = append(b.data, payload...)
}

// Flush discards all buffered bytes, used on flow migration and on
// resynchronization after an overflow.
func (b *Buffer) Flush() {
	b.data = b.data[:0]
}

// Len reports the number of bytes currently buffered.
func (b *Buffer) Len() int { return len(b.data) }

// Drain extracts every complete message currently available in the
// buffer, in arrival order. It returns the decoded messages and reports
// whether an overflow (and resync) occurred during this call.
func (b *Buffer) Drain() (msgs []Message, overflowed bool) {
	for len(b.data) > 4 {
		size := binary.BigEndian.Uint32(b.data[0:4])
		if int64(size) > b.cap {
			b.Flush()
			overflowed = true
			return msgs, overflowed
		}
		if size < 6 {
			// A frame shorter than its own header is corrupt; treat the
			// same as overflow to force a resync at the next boundary.
			b.Flush()
			overflowed = true
			return msgs, overflowed
		}
		if int64(len(b.data)) < int64(size) {
			break // wait for more data
		}
		frame := b.data[:size]
		opcode := binary.BigEndian.Uint16(frame[4:6])
		body := append([]byte(nil), frame[6:size]...)
		msgs = append(msgs, Message{Size: size, Opcode: opcode, Body: body})
		b.data = b.data[size:]
	}
	return msgs, overflowed
}
