// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package fragment reassembles fragmented IPv4 datagrams back into a single
// TCP segment payload, keyed by (identification, src, dst) the way the
// kernel itself would.
package fragment

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/nullstride/resonance-observer/internal/ipdecode"
)

// bucketKey identifies one in-flight datagram being reassembled.
type bucketKey struct {
	id  uint16
	src netip.Addr
	dst netip.Addr
}

type piece struct {
	offset int // bytes, already multiplied by 8
	data   []byte
}

type bucket struct {
	pieces       []piece
	lastTouch    time.Time
	terminalSeen bool
	totalSize    int
}

// Reassembler holds in-flight fragment buckets. It is safe for concurrent
// use, though in the core pipeline only the single decode task and the
// cleanup task touch it.
type Reassembler struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	timeout time.Duration
}

// New creates a Reassembler that evicts buckets idle longer than timeout.
func New(timeout time.Duration) *Reassembler {
	return &Reassembler{
		buckets: make(map[bucketKey]*bucket),
		timeout: timeout,
	}
}

// Add appends a fragment's IP payload (the bytes after the IP header) to
// its bucket. Once the terminal fragment (more-fragments bit clear) has
// been seen, every subsequent Add re-checks whether the byte range up to
// that fragment's end is fully covered — the terminal fragment says
// nothing about arrival order, so a missing middle fragment can still
// show up after it. It returns the reassembled TCP segment bytes and true
// only once coverage is complete; otherwise (nil, false).
func (r *Reassembler) Add(h ipdecode.IPHeader, ipPayload []byte, now time.Time) ([]byte, bool) {
	key := bucketKey{id: h.Identification, src: h.Src, dst: h.Dst}
	offset := int(h.FragmentOffset) * 8

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{}
		r.buckets[key] = b
	}
	b.lastTouch = now
	b.pieces = append(b.pieces, piece{offset: offset, data: append([]byte(nil), ipPayload...)})
	if !h.MoreFragments {
		b.terminalSeen = true
		b.totalSize = offset + len(ipPayload)
	}

	if !b.terminalSeen {
		return nil, false
	}

	pieces := append([]piece(nil), b.pieces...)
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].offset < pieces[j].offset })

	covered := 0
	for _, p := range pieces {
		if p.offset > covered {
			return nil, false
		}
		if end := p.offset + len(p.data); end > covered {
			covered = end
		}
	}
	if covered < b.totalSize {
		return nil, false
	}

	out := make([]byte, covered)
	for _, p := range pieces {
		copy(out[p.offset:], p.data)
	}

	delete(r.buckets, key)
	return out, true
}

// Sweep evicts buckets whose last touch is older than the configured
// timeout. Intended to be called on a ~30s cadence.
func (r *Reassembler) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, b := range r.buckets {
		if now.Sub(b.lastTouch) > r.timeout {
			delete(r.buckets, k)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of in-flight buckets, exposed via the metrics
// block as fragmentCacheSize.
func (r *Reassembler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
