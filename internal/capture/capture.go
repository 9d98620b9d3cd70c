// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package capture owns the single task that pulls raw IPv4 packets off
// the OS-level divert driver and hands them to the decode pipeline.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nullstride/resonance-observer/internal/aggregate"
)

// ErrPermissionDenied is returned by Source.Recv when the process does
// not hold the privilege the divert driver requires. It is fatal at
// startup — there is no useful retry.
var ErrPermissionDenied = errors.New("capture: permission denied opening divert handle")

// Packet is one raw IPv4 datagram observed on the wire, exactly as
// received from the driver.
type Packet struct {
	Raw []byte
}

// Source abstracts the divert driver so the pump loop can be tested
// without a live handle.
type Source interface {
	Recv() (Packet, error)
	Close() error
}

// recvBackoff is the pause between transient recv failures, distinct
// from the fatal permission-denied case.
const recvBackoff = 100 * time.Millisecond

// warnLogLimit caps how often the transient-recv-error warning actually
// reaches the logger: a flaky driver retrying every 100ms would otherwise
// flood the log at 10 lines/sec.
const warnLogLimit = rate.Limit(1) // at most 1 log line/sec
const warnLogBurst = 3

// Pump runs the capture task: it blocks on Source.Recv in a loop and
// forwards every packet to out. If out is full, the packet is dropped
// and Metrics.PacketsDropped is incremented rather than blocking —
// stalling re-injection would degrade the user's own network traffic.
// Pump returns when ctx is done or Recv reports a permanent error.
func Pump(ctx context.Context, src Source, out chan<- Packet, metrics *aggregate.Metrics, logger *slog.Logger) error {
	warnLimiter := rate.NewLimiter(warnLogLimit, warnLogBurst)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pkt, err := src.Recv()
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				logger.Error("capture: fatal permission error", "error", err)
				return err
			}
			if warnLimiter.Allow() {
				logger.Warn("capture: transient recv error, backing off", "error", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(recvBackoff):
			}
			continue
		}

		metrics.PacketsCaptured.Add(1)

		select {
		case out <- pkt:
		default:
			metrics.PacketsDropped.Add(1)
		}
	}
}
