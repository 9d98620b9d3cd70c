// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package integration exercises the full observer pipeline end to end:
// synthetic IPv4/TCP packets, through flow election, stream reassembly,
// envelope decode and payload dispatch, into the aggregate store.
package integration

import (
	"context"
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/capture"
	"github.com/nullstride/resonance-observer/internal/config"
	"github.com/nullstride/resonance-observer/internal/core"
	"github.com/nullstride/resonance-observer/internal/envelope"
	"github.com/nullstride/resonance-observer/internal/logging"
)

const (
	srcIP   = "10.0.0.5"    // game server
	dstIP   = "192.168.1.8" // local player machine
	srcPort = uint16(30020)
	dstPort = uint16(51112)
)

// buildIPv4TCP builds a minimal IPv4+TCP packet with no IP options and a
// 20-byte TCP header, carrying payload in the server->client direction.
func buildIPv4TCP(t *testing.T, seq uint32, payload []byte) []byte {
	t.Helper()
	totalLen := 20 + 20 + len(payload)
	buf := make([]byte, totalLen)

	buf[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	buf[9] = 6 // TCP
	sip := netip.MustParseAddr(srcIP).As4()
	dip := netip.MustParseAddr(dstIP).As4()
	copy(buf[12:16], sip[:])
	copy(buf[16:20], dip[:])

	tcp := buf[20:]
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	tcp[12] = 0x50 // data offset 5 (20 bytes)
	copy(tcp[20:], payload)

	return buf
}

// encodeFrame builds one stream-layer frame: size(4 BE) || opcode(2 BE) || body.
func encodeFrame(opcode uint16, body []byte) []byte {
	size := uint32(6 + len(body))
	out := make([]byte, size)
	binary.BigEndian.PutUint32(out[0:4], size)
	binary.BigEndian.PutUint16(out[4:6], opcode)
	copy(out[6:], body)
	return out
}

// buildLoginSignaturePayload builds the fixed-size login-response shape
// flow election scans for, matching the config's default signatures.
func buildLoginSignaturePayload() []byte {
	payload := make([]byte, 0x62)
	copy(payload[0:10], []byte{0x00, 0x00, 0x00, 0x62, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01})
	copy(payload[14:20], []byte{0x00, 0x00, 0x00, 0x00, 0x0a, 0x4e})
	return payload
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// buildSyncContainerDataFrame wraps a VData snapshot (charId, HP, name,
// fight point) in a Notify envelope, ready to hand to the stream buffer.
func buildSyncContainerDataFrame(charID uint64, curHP, maxHP uint32, name string, fightPoint uint32) []byte {
	var attr []byte
	attr = appendVarint(attr, 1, uint64(curHP))
	attr = appendVarint(attr, 2, uint64(maxHP))

	var charBase []byte
	charBase = appendBytes(charBase, 1, []byte(name))
	charBase = appendVarint(charBase, 2, uint64(fightPoint))

	var vdata []byte
	vdata = appendVarint(vdata, 1, charID)
	vdata = appendBytes(vdata, 3, attr)
	vdata = appendBytes(vdata, 4, charBase)

	var msg []byte
	msg = appendBytes(msg, 1, vdata)

	var notifyBody []byte
	notifyBody = binary.BigEndian.AppendUint64(notifyBody, envelope.TargetServiceUUID)
	notifyBody = binary.BigEndian.AppendUint32(notifyBody, 0) // stub id
	notifyBody = binary.BigEndian.AppendUint32(notifyBody, uint32(envelope.MethodSyncContainerData))
	notifyBody = append(notifyBody, msg...)

	return encodeFrame(uint16(envelope.TypeNotify), notifyBody)
}

// chanSource is a capture.Source fed incrementally by the test, so
// assertions can be interleaved between batches of packets rather than
// racing a fixed, instantly-exhausted queue.
type chanSource struct {
	ch chan capture.Packet
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan capture.Packet, 32)}
}

func (s *chanSource) push(raw []byte) { s.ch <- capture.Packet{Raw: raw} }

func (s *chanSource) Recv() (capture.Packet, error) {
	p, ok := <-s.ch
	if !ok {
		return capture.Packet{}, capture.ErrFakeExhausted
	}
	return p, nil
}

func (s *chanSource) Close() error {
	close(s.ch)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Flow: config.FlowConfig{
			SmallSignature:    []byte{0x00, 0x63, 0x33, 0x53, 0x42, 0x00},
			LoginPrefix:       []byte{0x00, 0x00, 0x00, 0x62, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01},
			LoginSuffix:       []byte{0x00, 0x00, 0x00, 0x00, 0x0a, 0x4e},
			MismatchThreshold: 5,
		},
		Stream:  config.StreamConfig{BufferCapRaw: 1024 * 1024},
		Capture: config.CaptureConfig{ChannelSize: 64},
	}
}

// TestPipeline_ElectionThroughAggregate feeds a login-signature packet
// (elects the server flow) followed by a framed SyncContainerData Notify,
// and asserts the decoded character snapshot lands in the aggregate store.
func TestPipeline_ElectionThroughAggregate(t *testing.T) {
	cfg := testConfig()

	store := aggregate.New(aggregate.GlobalSettings{})
	baseLogger, closer := logging.NewLogger("error", "text", "")
	defer closer.Close()

	c, err := core.New(cfg, store, nil, baseLogger)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}

	electionPkt := buildIPv4TCP(t, 1, buildLoginSignaturePayload())
	notifyFrame := buildSyncContainerDataFrame(12345, 450, 900, "Alice", 123456)
	dataPkt := buildIPv4TCP(t, 2, notifyFrame)

	src := capture.NewFakeSource(
		capture.Packet{Raw: electionPkt},
		capture.Packet{Raw: dataPkt},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, src) }()

	uid := uint32(12345)
	deadline := time.Now().Add(1 * time.Second)
	var player aggregate.Player
	var found bool
	for time.Now().Before(deadline) {
		if p, ok := store.Player(uid); ok && p.Name == "Alice" {
			player, found = p, true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if !found {
		t.Fatalf("expected player %d to be populated, got none", uid)
	}
	if player.Name != "Alice" {
		t.Errorf("expected name Alice, got %q", player.Name)
	}
	if player.FightPoint != 123456 {
		t.Errorf("expected fight point 123456, got %d", player.FightPoint)
	}
	if player.HP != 450 || player.MaxHP != 900 {
		t.Errorf("expected HP 450/900, got %d/%d", player.HP, player.MaxHP)
	}
}

// TestPipeline_FlowMigrationResetsDispatcher feeds an election packet,
// one accepted data packet, then six consecutive mismatched packets on
// a different pair to force a migration, and asserts that under
// AutoClearOnServerChange the player's cumulative damage is reset (the
// player record itself is kept).
func TestPipeline_FlowMigrationResetsDispatcher(t *testing.T) {
	cfg := testConfig()

	store := aggregate.New(aggregate.GlobalSettings{AutoClearOnServerChange: true})
	baseLogger, closer := logging.NewLogger("error", "text", "")
	defer closer.Close()

	c, err := core.New(cfg, store, nil, baseLogger)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}

	electionPkt := buildIPv4TCP(t, 1, buildLoginSignaturePayload())
	notifyFrame := buildSyncContainerDataFrame(12345, 450, 900, "Alice", 123456)
	dataPkt := buildIPv4TCP(t, 2, notifyFrame)

	src := newChanSource()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, src) }()

	src.push(electionPkt)
	src.push(dataPkt)

	uid := uint32(12345)
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := store.Player(uid); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	store.AddDamage(uid, 1, "fire", 500, false, false, false, 500, time.Now())
	if p, _ := store.Player(uid); p.DamageStats.Total == 0 {
		t.Fatal("setup: expected seeded damage before migration")
	}

	for i := 0; i < 6; i++ {
		src.push(buildIPv4TCPOtherPort(t, uint32(i), []byte("unrelated")))
	}

	deadline = time.Now().Add(1500 * time.Millisecond)
	var cleared bool
	for time.Now().Before(deadline) {
		if p, ok := store.Player(uid); ok && p.DamageStats.Total == 0 {
			cleared = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	src.Close()
	<-done

	if !cleared {
		t.Fatal("expected migration under AutoClearOnServerChange to reset cumulative stats")
	}
}

// buildIPv4TCPOtherPort builds a packet on a distinct 4-tuple, used to
// exercise the mismatch/migration path in the flow identifier.
func buildIPv4TCPOtherPort(t *testing.T, seq uint32, payload []byte) []byte {
	t.Helper()
	totalLen := 20 + 20 + len(payload)
	buf := make([]byte, totalLen)

	buf[0] = 0x45
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	buf[9] = 6
	sip := netip.MustParseAddr("10.0.0.9").As4()
	dip := netip.MustParseAddr(dstIP).As4()
	copy(buf[12:16], sip[:])
	copy(buf[16:20], dip[:])

	tcp := buf[20:]
	binary.BigEndian.PutUint16(tcp[0:2], 40000)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	tcp[12] = 0x50
	copy(tcp[20:], payload)

	return buf
}
