//go:build windows

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"log/slog"

	"github.com/nullstride/resonance-observer/internal/capture"
	"github.com/nullstride/resonance-observer/internal/config"
)

func openCaptureSource(cfg *config.Config, logger *slog.Logger) (capture.Source, error) {
	return capture.OpenWinDivert(logger)
}
