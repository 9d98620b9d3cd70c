// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package flowid elects the TCP flow that carries the game session by
// scanning payload bytes for one of two known signatures, and detects flow
// migration through sustained non-matching traffic.
package flowid

import (
	"bytes"
	"encoding/binary"

	"github.com/nullstride/resonance-observer/internal/ipdecode"
)

// Signatures are the runtime-loadable byte patterns used to elect the
// server flow (open question 3 in the design notes: these may drift with
// a game patch, so they are configuration, not constants).
type Signatures struct {
	Small       []byte // compared against body[5:11] inside a length-prefixed sub-frame
	LoginPrefix []byte // compared against payload[0:10]
	LoginSuffix []byte // compared against payload[14:20]
}

// Identifier holds the flow-identification state machine described in
// component D.
type Identifier struct {
	sig           Signatures
	threshold     int
	serverFlow    ipdecode.Pair
	identified    bool
	mismatchCount int
}

// New creates an Identifier using the given signatures and mismatch
// threshold (spec default: 5 consecutive misses triggers migration).
func New(sig Signatures, threshold int) *Identifier {
	return &Identifier{sig: sig, threshold: threshold}
}

// Identified reports whether a server flow has been elected.
func (id *Identifier) Identified() bool { return id.identified }

// ServerFlow returns the currently elected flow. Valid only when
// Identified() is true.
func (id *Identifier) ServerFlow() ipdecode.Pair { return id.serverFlow }

// Outcome describes what Observe decided about one packet.
type Outcome int

const (
	OutcomeUnidentifiedNoMatch Outcome = iota
	OutcomeElected
	OutcomeAccepted
	OutcomeMismatch
	OutcomeMigrated
)

// Observe feeds one packet's flow pair and TCP payload through the state
// machine and reports what happened.
func (id *Identifier) Observe(pair ipdecode.Pair, payload []byte) Outcome {
	if !id.identified {
		if matchesSignature(payload, id.sig) {
			id.serverFlow = pair
			id.identified = true
			id.mismatchCount = 0
			return OutcomeElected
		}
		return OutcomeUnidentifiedNoMatch
	}

	if pair == id.serverFlow || pair == id.serverFlow.Reverse() {
		id.mismatchCount = 0
		return OutcomeAccepted
	}

	id.mismatchCount++
	if id.mismatchCount >= id.threshold {
		id.identified = false
		id.serverFlow = ipdecode.Pair{}
		id.mismatchCount = 0
		return OutcomeMigrated
	}
	return OutcomeMismatch
}

// matchesSignature runs both signature tests against a candidate payload.
func matchesSignature(payload []byte, sig Signatures) bool {
	return matchesSmallSignature(payload, sig.Small) || matchesLoginSignature(payload, sig)
}

// matchesSmallSignature scans payload[10:] as a series of
// len_be_u32 || body[len] sub-frames, looking for one whose body carries
// the small-packet signature at bytes [5:11).
func matchesSmallSignature(payload []byte, small []byte) bool {
	if len(small) == 0 || len(payload) <= 10 || payload[4] != 0 {
		return false
	}
	rest := payload[10:]
	for len(rest) >= 4 {
		bodyLen := binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
		if bodyLen == 0 || uint64(bodyLen) > uint64(len(rest)) {
			return false
		}
		body := rest[:bodyLen]
		rest = rest[bodyLen:]
		if len(body) >= 11 && bytes.Equal(body[5:11], small) {
			return true
		}
	}
	return false
}

// matchesLoginSignature checks the fixed-size login-response packet shape.
func matchesLoginSignature(payload []byte, sig Signatures) bool {
	if len(payload) != 0x62 {
		return false
	}
	if len(sig.LoginPrefix) > 0 && (len(payload) < 10 || !bytes.Equal(payload[0:10], sig.LoginPrefix)) {
		return false
	}
	if len(sig.LoginSuffix) > 0 && (len(payload) < 20 || !bytes.Equal(payload[14:20], sig.LoginSuffix)) {
		return false
	}
	return len(sig.LoginPrefix) > 0 || len(sig.LoginSuffix) > 0
}
