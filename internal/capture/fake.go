// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package capture

import "errors"

// ErrFakeExhausted is returned once a FakeSource has handed out every
// queued packet, so Pump's test loop has a deterministic way to stop.
var ErrFakeExhausted = errors.New("capture: fake source exhausted")

// FakeSource hands out a fixed queue of packets, then reports transient
// errors (or ErrFakeExhausted) for every subsequent Recv — used in place
// of a live divert handle in tests.
type FakeSource struct {
	queue  []Packet
	pos    int
	errs   []error
	closed bool
}

// NewFakeSource returns a FakeSource that yields packets in order, then
// ErrFakeExhausted forever.
func NewFakeSource(packets ...Packet) *FakeSource {
	return &FakeSource{queue: packets}
}

// WithTransientErrors inserts transient errors before packet delivery,
// exercising Pump's backoff-and-retry path.
func (f *FakeSource) WithTransientErrors(errs ...error) *FakeSource {
	f.errs = errs
	return f
}

func (f *FakeSource) Recv() (Packet, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Packet{}, err
	}
	if f.pos >= len(f.queue) {
		return Packet{}, ErrFakeExhausted
	}
	pkt := f.queue[f.pos]
	f.pos++
	return pkt, nil
}

func (f *FakeSource) Close() error {
	f.closed = true
	return nil
}
