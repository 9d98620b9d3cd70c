//go:build !windows

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"log/slog"

	"github.com/nullstride/resonance-observer/internal/capture"
	"github.com/nullstride/resonance-observer/internal/config"
)

// errNoCaptureBackend is returned on platforms without a WinDivert build,
// since the observer has no non-Windows packet source yet.
var errNoCaptureBackend = errors.New("main: packet capture requires a windows build (WinDivert)")

func openCaptureSource(cfg *config.Config, logger *slog.Logger) (capture.Source, error) {
	return nil, errNoCaptureBackend
}
