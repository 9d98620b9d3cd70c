// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package rate derives rolling damage/healing rates from the cumulative
// totals held in the aggregate store. It never extrapolates past the
// last observed update — a player who stops acting simply stops
// accumulating rate, they are not assumed to keep dealing damage.
package rate

import (
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
)

// Deriver recomputes every player's dps/hps (and running max) from their
// cumulative totals and observed time range.
type Deriver struct {
	store *aggregate.Store
}

// New returns a Deriver bound to store.
func New(store *aggregate.Store) *Deriver {
	return &Deriver{store: store}
}

// Tick recomputes rates for every player, as of now. Intended to be
// called at a fixed cadence (10 Hz) by the lifecycle clock.
func (d *Deriver) Tick(now time.Time) {
	d.store.RangePlayers(func(_ uint32, p *aggregate.Player) {
		deriveRate(&p.DamageStats)
		deriveRate(&p.HealingStats)
	})
}

func deriveRate(stats *aggregate.RateStats) {
	if !stats.TimeRange.Set {
		return
	}
	durationMs := stats.TimeRange.Last.Sub(stats.TimeRange.First).Milliseconds()
	if durationMs <= 0 {
		return
	}
	rate := float64(stats.Total) * 1000 / float64(durationMs)
	stats.Rate = rate
	if rate > stats.RateMax {
		stats.RateMax = rate
	}
}
