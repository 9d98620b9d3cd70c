//go:build windows

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package capture

import (
	"errors"
	"log/slog"
	"syscall"

	"github.com/williamfhe/godivert"
)

// WinDivertFilter is the textual filter expression the core opens its
// one capture handle with: every IPv4 TCP packet, regardless of port.
const WinDivertFilter = "ip and tcp"

// reinjectRetries bounds how many re-injection attempts (the first one
// included) Recv makes before giving up on delivering this packet back to
// the network; it still hands the packet to the decode pipeline either way.
const reinjectRetries = 3

// WinDivertSource is a Source backed by a live divert handle.
type WinDivertSource struct {
	handle *godivert.WinDivertHandle
	logger *slog.Logger
}

// OpenWinDivert opens a divert handle at network layer, priority 0, with
// the default flags — packets matching the filter are intercepted and
// must be explicitly re-injected by this process (forwarding is not
// performed here, since this is a passive observer).
func OpenWinDivert(logger *slog.Logger) (*WinDivertSource, error) {
	handle, err := godivert.NewWinDivertHandle(WinDivertFilter)
	if err != nil {
		if errors.Is(err, syscall.Errno(5)) { // ERROR_ACCESS_DENIED
			return nil, ErrPermissionDenied
		}
		return nil, err
	}
	return &WinDivertSource{handle: handle, logger: logger}, nil
}

// Recv blocks until the driver delivers the next matching packet, and
// re-injects it so the observed connection keeps flowing. A packet is
// handed to the decode pipeline once captured regardless of whether
// re-injection ultimately succeeds — this process observes traffic, it
// does not get to decide the user's connection no longer exists because
// its own re-injection call hit a transient driver error.
func (s *WinDivertSource) Recv() (Packet, error) {
	pkt, err := s.handle.Recv()
	if err != nil {
		return Packet{}, err
	}

	var sendErr error
	for attempt := 0; attempt < reinjectRetries; attempt++ {
		if _, sendErr = s.handle.Send(pkt); sendErr == nil {
			break
		}
	}
	if sendErr != nil {
		s.logger.Warn("capture: re-injection failed after retries, packet not returned to network", "error", sendErr)
	}

	return Packet{Raw: pkt.Raw}, nil
}

// Close releases the divert handle.
func (s *WinDivertSource) Close() error {
	return s.handle.Close()
}
