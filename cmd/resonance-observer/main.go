// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/config"
	"github.com/nullstride/resonance-observer/internal/core"
	"github.com/nullstride/resonance-observer/internal/httpapi"
	"github.com/nullstride/resonance-observer/internal/logging"
	"github.com/nullstride/resonance-observer/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "/etc/resonance-observer/config.yaml", "path to observer config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	store := aggregate.New(aggregate.GlobalSettings{
		AutoClearOnServerChange: cfg.Settings.AutoClearOnServerChange,
		AutoClearOnTimeout:      cfg.Settings.AutoClearOnTimeout,
		OnlyRecordEliteDummy:    cfg.Settings.OnlyRecordEliteDummy,
	})

	persister, err := snapshot.New(ctx, cfg.Snapshot)
	if err != nil {
		logger.Error("snapshot persister init failed", "error", err)
		os.Exit(1)
	}
	if entries, err := persister.Load(); err != nil {
		logger.Warn("identity snapshot load failed", "error", err)
	} else if entries != nil {
		snapshot.Restore(store, entries)
		logger.Info("restored identity snapshot", "players", len(entries))
	}

	observerCore, err := core.New(cfg, store, persister, logger)
	if err != nil {
		logger.Error("core init failed", "error", err)
		os.Exit(1)
	}

	src, err := openCaptureSource(cfg, logger)
	if err != nil {
		logger.Error("capture source init failed", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	go func() {
		if err := httpapi.Serve(ctx, cfg.HTTP, store, observerCore.HealthStats, logger); err != nil {
			logger.Error("http surface error", "error", err)
		}
	}()

	if err := observerCore.Run(ctx, src); err != nil {
		logger.Error("observer core error", "error", err)
		os.Exit(1)
	}
}
