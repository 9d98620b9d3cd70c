// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package core wires the capture, decode, rate-derivation, snapshot and
// fragment-cleanup tasks into a single runnable observer, the way
// internal/server.Run wires a backup server's accept loop and background
// tasks around a shared context.
package core

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/capture"
	"github.com/nullstride/resonance-observer/internal/config"
	"github.com/nullstride/resonance-observer/internal/envelope"
	"github.com/nullstride/resonance-observer/internal/flowid"
	"github.com/nullstride/resonance-observer/internal/fragment"
	"github.com/nullstride/resonance-observer/internal/health"
	"github.com/nullstride/resonance-observer/internal/ipdecode"
	"github.com/nullstride/resonance-observer/internal/logging"
	"github.com/nullstride/resonance-observer/internal/payload"
	"github.com/nullstride/resonance-observer/internal/rate"
	"github.com/nullstride/resonance-observer/internal/schedule"
	"github.com/nullstride/resonance-observer/internal/snapshot"
	"github.com/nullstride/resonance-observer/internal/stream"
)

const (
	rateTickInterval      = 100 * time.Millisecond // 10 Hz
	fragmentSweepInterval = 30 * time.Second
)

// Core owns every stateful component of the pipeline and the tasks that
// drive it: capture, single-threaded decode, rate derivation, snapshot
// persistence and fragment-bucket eviction.
type Core struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *aggregate.Store
	reassembler *fragment.Reassembler
	identifier  *flowid.Identifier
	streamBuf   *stream.Buffer
	envDecoder  *envelope.Decoder
	dispatcher  *payload.Dispatcher
	rateDeriver *rate.Deriver
	persister   *snapshot.Persister
	health      *health.Monitor

	startedAt time.Time
	packets   chan capture.Packet

	// Per-server-epoch debug log, opened when a flow is elected and closed
	// on migration. sessionLogger is only ever touched from runDecodeLoop,
	// so it needs no locking.
	sessionDir    string
	sessionSeq    int
	sessionLogger *slog.Logger
	sessionCloser io.Closer
}

// New builds a Core from configuration. The caller is responsible for
// persisting and loading identity snapshots across restarts via
// persister, which may be nil to disable persistence.
func New(cfg *config.Config, store *aggregate.Store, persister *snapshot.Persister, logger *slog.Logger) (*Core, error) {
	envDecoder, err := envelope.NewDecoder()
	if err != nil {
		return nil, err
	}

	sig := flowid.Signatures{
		Small:       cfg.Flow.SmallSignature,
		LoginPrefix: cfg.Flow.LoginPrefix,
		LoginSuffix: cfg.Flow.LoginSuffix,
	}

	return &Core{
		cfg:           cfg,
		logger:        logger,
		store:         store,
		reassembler:   fragment.New(30 * time.Second),
		identifier:    flowid.New(sig, cfg.Flow.MismatchThreshold),
		streamBuf:     stream.NewBuffer(cfg.Stream.BufferCapRaw),
		envDecoder:    envDecoder,
		dispatcher:    payload.NewDispatcher(store),
		rateDeriver:   rate.New(store),
		persister:     persister,
		health:        health.NewMonitor(cfg.Health.DiskPath),
		startedAt:     time.Now(),
		packets:       make(chan capture.Packet, cfg.Capture.ChannelSize),
		sessionDir:    cfg.Logging.SessionDir,
		sessionLogger: logger,
		sessionCloser: io.NopCloser(nil),
	}, nil
}

// Run starts every task and blocks until ctx is cancelled or the capture
// task ends, then persists a final snapshot (bounded by a 5-second
// timeout) and returns. It does not wait for the other tasks to exit.
func (c *Core) Run(ctx context.Context, src capture.Source) error {
	defer c.envDecoder.Close()
	defer c.closeSessionLog()

	errCh := make(chan error, 1)
	go func() {
		errCh <- capture.Pump(ctx, src, c.packets, &c.store.Metrics, c.logger)
	}()

	go c.runDecodeLoop(ctx)
	go c.runRateDeriver(ctx)
	go c.runFragmentSweeper(ctx)
	go c.health.Run(ctx, time.Duration(c.cfg.Health.IntervalSeconds)*time.Second)
	go c.runStatsReporter(ctx)
	if c.persister != nil {
		go c.runSnapshotter(ctx)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			c.logger.Error("capture task ended", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c.persister != nil {
		if err := c.persister.Save(shutdownCtx, c.store); err != nil {
			c.logger.Warn("final snapshot save failed", "error", err)
		}
	}
	return nil
}

// runDecodeLoop is the single-threaded stream/decoder task: it owns the
// flow identifier, stream buffer and envelope decoder, so none of them
// need locking.
func (c *Core) runDecodeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-c.packets:
			if !ok {
				return
			}
			c.handlePacket(pkt, time.Now())
		}
	}
}

func (c *Core) handlePacket(pkt capture.Packet, now time.Time) {
	ipHeader, err := ipdecode.DecodeIP(pkt.Raw)
	if err != nil {
		return
	}
	c.store.Metrics.PacketsFiltered.Add(1)

	ipPayload := pkt.Raw[ipHeader.HeaderLen:]
	if ipHeader.IsFragmented() {
		reassembled, complete := c.reassembler.Add(ipHeader, ipPayload, now)
		if !complete {
			return
		}
		ipPayload = reassembled
	}

	tcp, err := ipdecode.DecodeTCP(ipPayload)
	if err != nil {
		return
	}
	if len(tcp.Payload) == 0 {
		return
	}

	pair := ipdecode.PairFor(ipHeader, tcp)
	outcome := c.identifier.Observe(pair, tcp.Payload)

	switch outcome {
	case flowid.OutcomeElected:
		c.openSessionLog()
	case flowid.OutcomeMigrated:
		c.store.Metrics.MismatchedPkts.Add(1)
		c.streamBuf.Flush()
		c.dispatcher.Reset()
		c.closeSessionLog()
		if c.store.Settings().AutoClearOnServerChange {
			c.store.ClearAll()
		}
		return
	case flowid.OutcomeMismatch, flowid.OutcomeUnidentifiedNoMatch:
		if outcome == flowid.OutcomeMismatch {
			c.store.Metrics.MismatchedPkts.Add(1)
		}
		return
	}

	// Only the server->client direction carries framed protocol messages.
	if pair != c.identifier.ServerFlow() {
		return
	}

	c.streamBuf.Append(tcp.Payload)
	msgs, overflowed := c.streamBuf.Drain()
	if overflowed {
		c.sessionLogger.Warn("stream buffer overflow, resynchronizing")
	}
	for _, msg := range msgs {
		c.decodeMessage(msg, now, 0)
	}
}

// openSessionLog starts a dedicated debug log for a newly elected server
// epoch, closing any still-open one first (a migration always closes its
// own before this runs, but a first election has nothing to close).
func (c *Core) openSessionLog() {
	c.closeSessionLog()
	if c.sessionDir == "" {
		return
	}
	c.sessionSeq++
	sessionID := strconv.Itoa(c.sessionSeq)
	sessionLogger, closer, path, err := logging.NewSessionLogger(c.logger, c.sessionDir, sessionID)
	if err != nil {
		c.logger.Warn("session log open failed", "error", err)
		return
	}
	c.sessionLogger = sessionLogger
	c.sessionCloser = closer
	c.logger.Info("server flow elected, opened session log", "session", sessionID, "path", path)
}

func (c *Core) closeSessionLog() {
	c.sessionCloser.Close()
	c.sessionLogger = c.logger
	c.sessionCloser = io.NopCloser(nil)
}

func (c *Core) decodeMessage(msg stream.Message, now time.Time, depth int) {
	decoded, err := c.envDecoder.Decode(msg.Opcode, msg.Body, depth)
	if err != nil {
		c.sessionLogger.Debug("envelope decode failed", "error", err)
		return
	}
	c.applyDecoded(decoded, now, depth)
}

func (c *Core) applyDecoded(decoded envelope.Decoded, now time.Time, depth int) {
	switch decoded.Type {
	case envelope.TypeNotify:
		if decoded.Notify != nil {
			c.dispatcher.Dispatch(*decoded.Notify, now)
		}
	case envelope.TypeFrameDown:
		if decoded.Down != nil {
			nested, err := c.envDecoder.DecodeFrame(decoded.Down.Nested, depth+1)
			if err != nil {
				c.sessionLogger.Debug("frame-down decode failed", "error", err)
				return
			}
			c.applyDecoded(nested, now, depth+1)
		}
	}
}

func (c *Core) runRateDeriver(ctx context.Context) {
	ticker := time.NewTicker(rateTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.rateDeriver.Tick(now)
			c.checkTimeoutClear(now)
		}
	}
}

func (c *Core) checkTimeoutClear(now time.Time) {
	settings := c.store.Settings()
	if !settings.AutoClearOnTimeout {
		return
	}
	if now.Sub(c.store.LastLogTime()) > time.Duration(c.cfg.Settings.TimeoutSeconds)*time.Second {
		c.store.ClearAll()
	}
}

func (c *Core) runFragmentSweeper(ctx context.Context) {
	ticker := time.NewTicker(fragmentSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			evicted := c.reassembler.Sweep(now)
			c.store.Metrics.FragmentCacheSz.Store(int64(c.reassembler.Len()))
			if evicted > 0 {
				c.logger.Debug("evicted idle fragment buckets", "count", evicted)
			}
		}
	}
}

func (c *Core) runSnapshotter(ctx context.Context) {
	save := func() {
		if err := c.persister.Save(ctx, c.store); err != nil {
			c.logger.Warn("periodic snapshot save failed", "error", err)
		}
	}

	if c.cfg.Snapshot.CronSchedule != "" {
		sched, err := schedule.NewCronScheduler(c.cfg.Snapshot.CronSchedule, c.logger, save)
		if err != nil {
			c.logger.Error("invalid snapshot cron schedule, falling back to interval ticker", "error", err)
		} else {
			sched.Start()
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
			return
		}
	}

	ticker := time.NewTicker(time.Duration(c.cfg.Snapshot.IntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			save()
		}
	}
}

// statsSnapshot is the periodic structured summary logged at
// cfg.Health.StatsLogMinutes cadence, mirroring a backup agent's periodic
// job-status report but describing observer pipeline state instead.
type statsSnapshot struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	PacketsCaptured  uint64  `json:"packets_captured"`
	PacketsDropped   uint64  `json:"packets_dropped"`
	PacketsFiltered  uint64  `json:"packets_filtered"`
	MismatchedPkts   uint64  `json:"mismatched_packets"`
	FragmentCacheSz  int64   `json:"fragment_cache_size"`
	PlayerCount      int     `json:"player_count"`
	FlowIdentified   bool    `json:"flow_identified"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	DiskUsagePercent float64 `json:"disk_usage_percent"`
	LoadAverage      float64 `json:"load_average"`
	HealthAge        float64 `json:"health_age_seconds"`
}

func (c *Core) runStatsReporter(ctx context.Context) {
	interval := time.Duration(c.cfg.Health.StatsLogMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.logStats(now)
		}
	}
}

func (c *Core) logStats(now time.Time) {
	h := c.health.Stats()
	snap := statsSnapshot{
		UptimeSeconds:    now.Sub(c.startedAt).Seconds(),
		PacketsCaptured:  c.store.Metrics.PacketsCaptured.Load(),
		PacketsDropped:   c.store.Metrics.PacketsDropped.Load(),
		PacketsFiltered:  c.store.Metrics.PacketsFiltered.Load(),
		MismatchedPkts:   c.store.Metrics.MismatchedPkts.Load(),
		FragmentCacheSz:  c.store.Metrics.FragmentCacheSz.Load(),
		PlayerCount:      len(c.store.Players()),
		FlowIdentified:   c.identifier.ServerFlow() != (ipdecode.Pair{}),
		CPUPercent:       h.CPUPercent,
		MemoryPercent:    h.MemoryPercent,
		DiskUsagePercent: h.DiskUsagePercent,
		LoadAverage:      h.LoadAverage,
	}
	if !h.CollectedAt.IsZero() {
		snap.HealthAge = now.Sub(h.CollectedAt).Seconds()
	}
	c.logger.Info("observer stats", "snapshot", snap)
}

// Store exposes the aggregate store for the HTTP surface.
func (c *Core) Store() *aggregate.Store { return c.store }

// HealthStats exposes the latest host resource snapshot for the HTTP
// surface.
func (c *Core) HealthStats() health.Stats { return c.health.Stats() }
