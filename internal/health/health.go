// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package health polls host resource usage on an interval so the HTTP
// surface can report whether the machine running the observer is itself
// under strain (high CPU/memory/disk usage can show up as dropped
// packets and widen the gap between what's captured and what's real).
package health

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Stats is one collected snapshot of host resource usage.
type Stats struct {
	CPUPercent       float64
	MemoryPercent    float64
	DiskUsagePercent float64
	LoadAverage      float64
	CollectedAt      time.Time
}

// Monitor collects Stats periodically and serves the latest snapshot.
// Safe for concurrent use.
type Monitor struct {
	diskPath string

	mu    sync.RWMutex
	stats Stats
}

// NewMonitor returns a Monitor that reports disk usage for diskPath
// ("/" if empty).
func NewMonitor(diskPath string) *Monitor {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Monitor{diskPath: diskPath}
}

// Stats returns the most recently collected snapshot. Zero until Run's
// first collection, which Run makes as soon as it starts.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Run collects immediately, then on every interval, until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.collect()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Monitor) collect() {
	var s Stats
	s.CollectedAt = time.Now()

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		s.CPUPercent = percentages[0]
	}
	if v, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = v.UsedPercent
	}
	if d, err := disk.Usage(m.diskPath); err == nil {
		s.DiskUsagePercent = d.UsedPercent
	}
	if l, err := load.Avg(); err == nil {
		s.LoadAverage = l.Load1
	}

	m.mu.Lock()
	m.stats = s
	m.mu.Unlock()
}
