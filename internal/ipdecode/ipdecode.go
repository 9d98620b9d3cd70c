// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package ipdecode parses raw IPv4 packets into IP and TCP headers, the
// first stage after a packet leaves the divert handle.
package ipdecode

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

// SkipReason explains why a packet was dropped before reaching the flow
// identifier. Skips are counted, never fatal.
type SkipReason string

const (
	SkipTooShort    SkipReason = "too_short"
	SkipNotIPv4     SkipReason = "not_ipv4"
	SkipNotTCP      SkipReason = "not_tcp"
	SkipTCPTooShort SkipReason = "tcp_too_short"
	SkipLoopback    SkipReason = "loopback"
)

// Error wraps a SkipReason so callers can classify a decode failure with
// errors.As while still getting a human string from Error().
type Error struct {
	Reason SkipReason
}

func (e *Error) Error() string { return "ipdecode: " + string(e.Reason) }

// IPHeader holds the IPv4 header fields the pipeline needs.
type IPHeader struct {
	Version        uint8
	HeaderLen      int // bytes
	Identification uint16
	MoreFragments  bool
	FragmentOffset uint16 // in 8-byte units, as carried on the wire
	Protocol       uint8
	Src            netip.Addr
	Dst            netip.Addr
	TotalLen       int
}

// TCPSegment holds the TCP header fields and payload the pipeline needs.
type TCPSegment struct {
	SrcPort   uint16
	DstPort   uint16
	Seq       uint32
	HeaderLen int
	Payload   []byte
}

// Endpoint is one side of a TCP flow.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// Pair identifies a directional TCP flow.
type Pair struct {
	Src Endpoint
	Dst Endpoint
}

// Reverse returns the pair with source and destination swapped.
func (p Pair) Reverse() Pair {
	return Pair{Src: p.Dst, Dst: p.Src}
}

// DecodeIP parses the IPv4 header from raw packet bytes. It does not
// validate the TCP payload; call DecodeTCP next with the returned header.
func DecodeIP(raw []byte) (IPHeader, error) {
	var h IPHeader
	if len(raw) < 20 {
		return h, &Error{SkipTooShort}
	}
	versionIHL := raw[0]
	h.Version = versionIHL >> 4
	if h.Version != 4 {
		return h, &Error{SkipNotIPv4}
	}
	ihl := int(versionIHL&0x0F) * 4
	if ihl < 20 || len(raw) < ihl {
		return h, &Error{SkipTooShort}
	}
	h.HeaderLen = ihl
	h.TotalLen = int(binary.BigEndian.Uint16(raw[2:4]))
	h.Identification = binary.BigEndian.Uint16(raw[4:6])
	flagsFrag := binary.BigEndian.Uint16(raw[6:8])
	h.MoreFragments = flagsFrag&0x2000 != 0
	h.FragmentOffset = flagsFrag & 0x1FFF
	h.Protocol = raw[9]
	if h.Protocol != 6 {
		return h, &Error{SkipNotTCP}
	}
	src, ok := netip.AddrFromSlice(raw[12:16])
	if !ok {
		return h, &Error{SkipTooShort}
	}
	dst, ok := netip.AddrFromSlice(raw[16:20])
	if !ok {
		return h, &Error{SkipTooShort}
	}
	h.Src = src
	h.Dst = dst
	if h.Src.IsLoopback() || h.Dst.IsLoopback() {
		return h, &Error{SkipLoopback}
	}
	return h, nil
}

// IsFragmented reports whether the fragment reassembler must be consulted.
func (h IPHeader) IsFragmented() bool {
	return h.MoreFragments || h.FragmentOffset != 0
}

// DecodeTCP parses the TCP header and payload out of the IP payload slice
// (raw[h.HeaderLen:]).
func DecodeTCP(ipPayload []byte) (TCPSegment, error) {
	var s TCPSegment
	if len(ipPayload) < 20 {
		return s, &Error{SkipTCPTooShort}
	}
	s.SrcPort = binary.BigEndian.Uint16(ipPayload[0:2])
	s.DstPort = binary.BigEndian.Uint16(ipPayload[2:4])
	s.Seq = binary.BigEndian.Uint32(ipPayload[4:8])
	dataOffset := int(ipPayload[12]>>4) * 4
	if dataOffset < 20 || len(ipPayload) < dataOffset {
		return s, &Error{SkipTCPTooShort}
	}
	s.HeaderLen = dataOffset
	s.Payload = ipPayload[dataOffset:]
	return s, nil
}

// PairFor builds the directional flow identity for a decoded packet.
func PairFor(ip IPHeader, tcp TCPSegment) Pair {
	return Pair{
		Src: Endpoint{Addr: ip.Src, Port: tcp.SrcPort},
		Dst: Endpoint{Addr: ip.Dst, Port: tcp.DstPort},
	}
}

// ErrSkip is a sentinel for errors.Is callers that only care "was this
// packet skipped", not why.
var ErrSkip = errors.New("ipdecode: packet skipped")

func (e *Error) Unwrap() error { return ErrSkip }
