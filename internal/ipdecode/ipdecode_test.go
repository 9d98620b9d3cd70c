// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package ipdecode

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"
)

// buildIPv4TCP builds a minimal IPv4+TCP packet with no IP options and a
// 20-byte TCP header, carrying the given payload.
func buildIPv4TCP(t *testing.T, src, dst string, srcPort, dstPort uint16, seq uint32, payload []byte, moreFrags bool, fragOffset uint16) []byte {
	t.Helper()
	totalLen := 20 + 20 + len(payload)
	buf := make([]byte, totalLen)

	buf[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[4:6], 0xBEEF)

	var flagsFrag uint16
	if moreFrags {
		flagsFrag |= 0x2000
	}
	flagsFrag |= fragOffset & 0x1FFF
	binary.BigEndian.PutUint16(buf[6:8], flagsFrag)

	buf[9] = 6 // TCP
	srcIP := netip.MustParseAddr(src).As4()
	dstIP := netip.MustParseAddr(dst).As4()
	copy(buf[12:16], srcIP[:])
	copy(buf[16:20], dstIP[:])

	tcp := buf[20:]
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	tcp[12] = 0x50 // data offset 5 (20 bytes)
	copy(tcp[20:], payload)

	return buf
}

func TestDecodeIP_Basic(t *testing.T) {
	raw := buildIPv4TCP(t, "10.0.0.5", "192.168.1.8", 30020, 51112, 1, []byte("hello"), false, 0)
	ip, err := DecodeIP(raw)
	if err != nil {
		t.Fatalf("DecodeIP: %v", err)
	}
	if ip.Version != 4 || ip.HeaderLen != 20 || ip.Protocol != 6 {
		t.Fatalf("unexpected header: %+v", ip)
	}
	if ip.IsFragmented() {
		t.Fatal("expected non-fragmented")
	}

	tcp, err := DecodeTCP(raw[ip.HeaderLen:])
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if tcp.SrcPort != 30020 || tcp.DstPort != 51112 || tcp.Seq != 1 {
		t.Fatalf("unexpected tcp segment: %+v", tcp)
	}
	if string(tcp.Payload) != "hello" {
		t.Fatalf("unexpected payload: %q", tcp.Payload)
	}
}

func TestDecodeIP_TooShort(t *testing.T) {
	_, err := DecodeIP([]byte{1, 2, 3})
	var de *Error
	if !errors.As(err, &de) || de.Reason != SkipTooShort {
		t.Fatalf("expected SkipTooShort, got %v", err)
	}
}

func TestDecodeIP_NotIPv4(t *testing.T) {
	raw := buildIPv4TCP(t, "10.0.0.5", "192.168.1.8", 1, 2, 0, nil, false, 0)
	raw[0] = 0x65 // version 6
	_, err := DecodeIP(raw)
	var de *Error
	if !errors.As(err, &de) || de.Reason != SkipNotIPv4 {
		t.Fatalf("expected SkipNotIPv4, got %v", err)
	}
}

func TestDecodeIP_NotTCP(t *testing.T) {
	raw := buildIPv4TCP(t, "10.0.0.5", "192.168.1.8", 1, 2, 0, nil, false, 0)
	raw[9] = 17 // UDP
	_, err := DecodeIP(raw)
	var de *Error
	if !errors.As(err, &de) || de.Reason != SkipNotTCP {
		t.Fatalf("expected SkipNotTCP, got %v", err)
	}
}

func TestDecodeIP_Loopback(t *testing.T) {
	raw := buildIPv4TCP(t, "10.0.0.5", "127.0.0.1", 1, 2, 0, nil, false, 0)
	_, err := DecodeIP(raw)
	var de *Error
	if !errors.As(err, &de) || de.Reason != SkipLoopback {
		t.Fatalf("expected SkipLoopback, got %v", err)
	}
}

func TestDecodeIP_Fragmented(t *testing.T) {
	raw := buildIPv4TCP(t, "10.0.0.5", "192.168.1.8", 1, 2, 0, []byte("x"), true, 0)
	ip, err := DecodeIP(raw)
	if err != nil {
		t.Fatalf("DecodeIP: %v", err)
	}
	if !ip.IsFragmented() {
		t.Fatal("expected fragmented")
	}
}

func TestPairFor_Reverse(t *testing.T) {
	raw := buildIPv4TCP(t, "10.0.0.5", "192.168.1.8", 30020, 51112, 1, []byte("x"), false, 0)
	ip, _ := DecodeIP(raw)
	tcp, _ := DecodeTCP(raw[ip.HeaderLen:])
	pair := PairFor(ip, tcp)
	rev := pair.Reverse()
	if rev.Src != pair.Dst || rev.Dst != pair.Src {
		t.Fatalf("reverse mismatch: %+v vs %+v", pair, rev)
	}
}
