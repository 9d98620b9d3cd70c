// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package envelope

import (
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func notifyBody(methodID NotifyMethod, payload []byte) []byte {
	body := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint64(body[0:8], TargetServiceUUID)
	binary.BigEndian.PutUint32(body[8:12], 0xABCD)
	binary.BigEndian.PutUint32(body[12:16], uint32(methodID))
	copy(body[16:], payload)
	return body
}

func TestDecoder_Notify(t *testing.T) {
	d, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer d.Close()

	body := notifyBody(MethodSyncNearEntities, []byte{1, 2, 3})
	got, err := d.Decode(uint16(TypeNotify), body, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != TypeNotify || got.Notify == nil {
		t.Fatalf("expected Notify envelope, got %+v", got)
	}
	if got.Notify.MethodID != MethodSyncNearEntities {
		t.Errorf("method = %v, want %v", got.Notify.MethodID, MethodSyncNearEntities)
	}
	if string(got.Notify.Payload) != "\x01\x02\x03" {
		t.Errorf("payload = %x", got.Notify.Payload)
	}
}

func TestDecoder_Notify_WrongService(t *testing.T) {
	d, _ := NewDecoder()
	defer d.Close()

	body := make([]byte, 16)
	binary.BigEndian.PutUint64(body[0:8], 0xDEADBEEF)
	got, err := d.Decode(uint16(TypeNotify), body, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Notify != nil {
		t.Fatalf("expected wrong-service notify to be dropped, got %+v", got.Notify)
	}
}

func TestDecoder_UnknownOuterType(t *testing.T) {
	d, _ := NewDecoder()
	defer d.Close()
	_, err := d.Decode(99, nil, 0)
	if err != ErrUnknownOuterType {
		t.Fatalf("expected ErrUnknownOuterType, got %v", err)
	}
}

func TestDecoder_Compressed(t *testing.T) {
	d, _ := NewDecoder()
	defer d.Close()

	body := notifyBody(MethodSyncServerTime, []byte("payload"))
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	compressed := enc.EncodeAll(body, nil)
	enc.Close()

	opcode := uint16(TypeNotify) | 0x8000
	got, err := d.Decode(opcode, compressed, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Notify == nil || got.Notify.MethodID != MethodSyncServerTime {
		t.Fatalf("unexpected decoded notify: %+v", got)
	}
}

func TestDecoder_FrameDownNesting(t *testing.T) {
	d, _ := NewDecoder()
	defer d.Close()

	innerBody := notifyBody(MethodSyncNearEntities, []byte{0xAA, 0xBB})
	innerFrame := make([]byte, 6+len(innerBody))
	binary.BigEndian.PutUint32(innerFrame[0:4], uint32(len(innerFrame)))
	binary.BigEndian.PutUint16(innerFrame[4:6], uint16(TypeNotify))
	copy(innerFrame[6:], innerBody)

	downBody := make([]byte, 4+len(innerFrame))
	binary.BigEndian.PutUint32(downBody[0:4], 7)
	copy(downBody[4:], innerFrame)

	got, err := d.Decode(uint16(TypeFrameDown), downBody, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Down == nil || got.Down.ServerSequenceID != 7 {
		t.Fatalf("unexpected frame-down: %+v", got)
	}

	nested, err := d.DecodeFrame(got.Down.Nested, 1)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if nested.Notify == nil || string(nested.Notify.Payload) != "\xAA\xBB" {
		t.Fatalf("unexpected nested decode: %+v", nested)
	}
}

func TestDecoder_FrameDownDepthBound(t *testing.T) {
	d, _ := NewDecoder()
	defer d.Close()
	_, err := d.Decode(uint16(TypeFrameDown), make([]byte, 4), 9)
	if err != ErrFrameDownTooDeep {
		t.Fatalf("expected ErrFrameDownTooDeep, got %v", err)
	}
}
