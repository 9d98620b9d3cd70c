// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package aggregate holds the concurrent data model of players and
// enemies, and the operations that mutate it from the payload decoder.
package aggregate

import (
	"sync/atomic"
	"time"

	"github.com/nullstride/resonance-observer/internal/shardedstore"
)

// SkillKind discriminates a SkillKey between damage and healing, resolving
// open question 2: a tagged pair instead of the `skillId + 1_000_000_000`
// offset trick.
type SkillKind uint8

const (
	SkillDamage SkillKind = iota
	SkillHealing
)

// SkillKey uniquely identifies one skill-usage bucket on a Player.
type SkillKey struct {
	Kind SkillKind
	ID   uint32
}

// ValueBreakdown holds the cumulative value split across the four
// mutually exclusive damage/healing buckets.
type ValueBreakdown struct {
	Normal    uint64
	Critical  uint64
	Lucky     uint64
	CritLucky uint64
}

// Total returns the sum of all buckets, which must always equal the
// aggregate's reported total.
func (b ValueBreakdown) Total() uint64 {
	return b.Normal + b.Critical + b.Lucky + b.CritLucky
}

// CountBreakdown mirrors ValueBreakdown but counts hits instead of value.
type CountBreakdown struct {
	Normal    uint64
	Critical  uint64
	Lucky     uint64
	CritLucky uint64
}

func (b CountBreakdown) Total() uint64 {
	return b.Normal + b.Critical + b.Lucky + b.CritLucky
}

// TimeRange is the (first, last) timestamp pair over which a player's
// damage or healing was observed.
type TimeRange struct {
	First time.Time
	Last  time.Time
	Set   bool
}

func (t *TimeRange) extend(now time.Time) {
	if !t.Set {
		t.First = now
		t.Last = now
		t.Set = true
		return
	}
	if now.Before(t.First) {
		t.First = now
	}
	if now.After(t.Last) {
		t.Last = now
	}
}

// RateStats holds cumulative totals, bucket breakdowns and the derived
// rolling rate for either damage dealt or healing done.
type RateStats struct {
	Total          uint64
	ValueBreakdown ValueBreakdown
	Count          uint64
	CountBreakdown CountBreakdown
	TimeRange      TimeRange
	Rate           float64 // dps or hps, derived by the rate deriver
	RateMax        float64
}

// SkillStat is the per-skill breakdown recorded under Player.SkillUsage.
type SkillStat struct {
	SkillKey       SkillKey
	Element        string
	TotalValue     uint64
	TotalCount     uint64
	CritCount      uint64
	LuckyCount     uint64
	ValueBreakdown ValueBreakdown
	CountBreakdown CountBreakdown
}

func (s SkillStat) CritRate() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.CritCount) / float64(s.TotalCount)
}

func (s SkillStat) LuckyRate() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.LuckyCount) / float64(s.TotalCount)
}

// Player is one combatant's identity and cumulative statistics, keyed by
// uid. Never destroyed within a session; Clear resets stats in place.
type Player struct {
	UID           uint32
	Name          string
	Profession    string
	SubProfession string
	Level         uint32
	FightPoint    uint32
	HP            uint32
	MaxHP         uint32
	DeadCount     uint64

	DamageStats  RateStats
	HealingStats RateStats
	TakenDamage  uint64

	SkillUsage map[SkillKey]*SkillStat

	LastUpdate time.Time
}

func newPlayer(uid uint32) Player {
	return Player{UID: uid, SkillUsage: make(map[SkillKey]*SkillStat)}
}

// Enemy is a monster entity's observed health, keyed by id.
type Enemy struct {
	ID         uint32
	Name       string
	HP         uint32
	MaxHP      uint32
	LastUpdate time.Time
}

func newEnemy(id uint32) Enemy {
	return Enemy{ID: id}
}

// GlobalSettings mirrors the spec's GlobalSettings record, mutable at
// runtime through the HTTP surface.
type GlobalSettings struct {
	AutoClearOnServerChange bool
	AutoClearOnTimeout      bool
	OnlyRecordEliteDummy    bool
}

// Metrics is the small counters block exposed via the outbound snapshot
// interface.
type Metrics struct {
	PacketsCaptured atomic.Uint64
	PacketsFiltered atomic.Uint64
	PacketsDropped  atomic.Uint64
	MismatchedPkts  atomic.Uint64
	TCPCacheSize    atomic.Int64
	FragmentCacheSz atomic.Int64
}

// Store is the concurrent aggregate store: component H. All mutating
// operations are no-ops while paused.
type Store struct {
	players *shardedstore.Store[uint32, Player]
	enemies *shardedstore.Store[uint32, Enemy]

	paused   atomic.Bool
	settings atomic.Pointer[GlobalSettings]

	lastLogTime atomic.Pointer[time.Time]

	Metrics Metrics
}

// New creates an empty Store with the given initial settings.
func New(settings GlobalSettings) *Store {
	s := &Store{
		players: shardedstore.New[uint32, Player](),
		enemies: shardedstore.New[uint32, Enemy](),
	}
	s.settings.Store(&settings)
	now := time.Now()
	s.lastLogTime.Store(&now)
	return s
}

// Settings returns the current global settings.
func (s *Store) Settings() GlobalSettings { return *s.settings.Load() }

// UpdateSettings replaces the global settings wholesale.
func (s *Store) UpdateSettings(settings GlobalSettings) { s.settings.Store(&settings) }

// Pause toggles write-side no-op behavior.
func (s *Store) Pause(flag bool) { s.paused.Store(flag) }

// IsPaused reports the current pause state.
func (s *Store) IsPaused() bool { return s.paused.Load() }

// LastLogTime returns the timestamp of the most recent accepted write,
// used by the timeout-clear check in the lifecycle task.
func (s *Store) LastLogTime() time.Time { return *s.lastLogTime.Load() }

func (s *Store) touch(now time.Time) { s.lastLogTime.Store(&now) }

// AddDamage records one damage hit on uid for skillId, under the bucket
// selected by isCrit/isLucky, per component H's bucket-exclusivity rule.
func (s *Store) AddDamage(uid, skillID uint32, element string, value uint64, isCrit, isLucky, isCauseLucky bool, hpLessen uint64, now time.Time) {
	if s.paused.Load() {
		return
	}
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) {
		addToRateStats(&p.DamageStats, value, isCrit, isLucky, now)
		addSkill(p, SkillKey{Kind: SkillDamage, ID: skillID}, element, value, isCrit, isLucky, isCauseLucky)
		p.LastUpdate = now
	})
	s.touch(now)
}

// AddHealing mirrors AddDamage for the healing side.
func (s *Store) AddHealing(uid, skillID uint32, element string, value uint64, isCrit, isLucky, isCauseLucky bool, now time.Time) {
	if s.paused.Load() {
		return
	}
	if uid == 0 {
		return
	}
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) {
		addToRateStats(&p.HealingStats, value, isCrit, isLucky, now)
		addSkill(p, SkillKey{Kind: SkillHealing, ID: skillID}, element, value, isCrit, isLucky, isCauseLucky)
		p.LastUpdate = now
	})
	s.touch(now)
}

// AddTakenDamage records damage received by uid.
func (s *Store) AddTakenDamage(uid uint32, amount uint64, isDead bool, now time.Time) {
	if s.paused.Load() {
		return
	}
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) {
		p.TakenDamage += amount
		if isDead {
			p.DeadCount++
			p.HP = 0
		}
		p.LastUpdate = now
	})
	s.touch(now)
}

func addToRateStats(rs *RateStats, value uint64, isCrit, isLucky bool, now time.Time) {
	switch {
	case isCrit && isLucky:
		rs.ValueBreakdown.CritLucky += value
		rs.CountBreakdown.CritLucky++
	case isCrit:
		rs.ValueBreakdown.Critical += value
		rs.CountBreakdown.Critical++
	case isLucky:
		rs.ValueBreakdown.Lucky += value
		rs.CountBreakdown.Lucky++
	default:
		rs.ValueBreakdown.Normal += value
		rs.CountBreakdown.Normal++
	}
	rs.Total += value
	rs.Count++
	rs.TimeRange.extend(now)
}

func addSkill(p *Player, key SkillKey, element string, value uint64, isCrit, isLucky, isCauseLucky bool) {
	st, ok := p.SkillUsage[key]
	if !ok {
		st = &SkillStat{SkillKey: key, Element: element}
		p.SkillUsage[key] = st
	}
	// The skill bucket uses isCauseLucky in place of isLucky, matching
	// the protocol's own (distinct) lucky-attribution convention.
	switch {
	case isCrit && isCauseLucky:
		st.ValueBreakdown.CritLucky += value
		st.CountBreakdown.CritLucky++
	case isCrit:
		st.ValueBreakdown.Critical += value
		st.CountBreakdown.Critical++
	case isCauseLucky:
		st.ValueBreakdown.Lucky += value
		st.CountBreakdown.Lucky++
	default:
		st.ValueBreakdown.Normal += value
		st.CountBreakdown.Normal++
	}
	st.TotalValue += value
	st.TotalCount++
	if isCrit {
		st.CritCount++
	}
	if isLucky {
		st.LuckyCount++
	}
}

// SetUserName sets a player's display name, creating the record if absent.
func (s *Store) SetUserName(uid uint32, name string) {
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) { p.Name = name })
}

// SetUserProfession sets the profession, clearing sub-profession if the
// profession actually changed.
func (s *Store) SetUserProfession(uid uint32, profession string) {
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) {
		if p.Profession != profession {
			p.SubProfession = ""
		}
		p.Profession = profession
	})
}

// SetUserFightPoint sets the player's fight-point score.
func (s *Store) SetUserFightPoint(uid uint32, fightPoint uint32) {
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) { p.FightPoint = fightPoint })
}

// SetSubProfession sets the inferred sub-profession label.
func (s *Store) SetSubProfession(uid uint32, subProfession string) {
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) { p.SubProfession = subProfession })
}

// SetUserLevel sets the player's level.
func (s *Store) SetUserLevel(uid uint32, level uint32) {
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) { p.Level = level })
}

// SetUserHP sets current and max HP, either of which may be left
// unchanged by passing the existing value.
func (s *Store) SetUserHP(uid uint32, hp, maxHP *uint32) {
	s.players.With(uid, func() Player { return newPlayer(uid) }, func(p *Player) {
		if hp != nil {
			p.HP = *hp
		}
		if maxHP != nil {
			p.MaxHP = *maxHP
		}
	})
}

// SetEnemyName sets an enemy's display name, creating the record if absent.
func (s *Store) SetEnemyName(id uint32, name string) {
	s.enemies.With(id, func() Enemy { return newEnemy(id) }, func(e *Enemy) { e.Name = name })
}

// SetEnemyHP sets an enemy's current HP.
func (s *Store) SetEnemyHP(id uint32, hp uint32, now time.Time) {
	s.enemies.With(id, func() Enemy { return newEnemy(id) }, func(e *Enemy) {
		e.HP = hp
		e.LastUpdate = now
	})
}

// SetEnemyMaxHP sets an enemy's max HP.
func (s *Store) SetEnemyMaxHP(id uint32, maxHP uint32) {
	s.enemies.With(id, func() Enemy { return newEnemy(id) }, func(e *Enemy) { e.MaxHP = maxHP })
}

// Player returns a copy of the player's current state, if known.
func (s *Store) Player(uid uint32) (Player, bool) {
	var out Player
	found := s.players.Read(uid, func(p Player) { out = p })
	return out, found
}

// Players returns a snapshot of every known player, keyed by uid.
func (s *Store) Players() map[uint32]Player { return s.players.Snapshot() }

// Enemies returns a snapshot of every known enemy, keyed by id.
func (s *Store) Enemies() map[uint32]Enemy { return s.enemies.Snapshot() }

// RangePlayers visits every player record under its own lock, for the
// rate deriver.
func (s *Store) RangePlayers(fn func(uid uint32, p *Player)) {
	s.players.Range(func(uid uint32, p *Player) bool {
		fn(uid, p)
		return true
	})
}

// ClearAll resets cumulative stats on every player (preserving identity)
// and empties the enemy map. It also resets the idle clock, so a clear
// triggered by AutoClearOnTimeout starts a fresh idle window instead of
// re-triggering on every subsequent tick.
func (s *Store) ClearAll() {
	s.players.Range(func(_ uint32, p *Player) bool {
		p.DamageStats = RateStats{}
		p.HealingStats = RateStats{}
		p.TakenDamage = 0
		p.DeadCount = 0
		p.SkillUsage = make(map[SkillKey]*SkillStat)
		return true
	})
	s.enemies.Clear()
	s.touch(time.Now())
}
