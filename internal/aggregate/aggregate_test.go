// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package aggregate

import (
	"testing"
	"time"
)

func TestAddDamage_BucketExclusivity(t *testing.T) {
	s := New(GlobalSettings{})
	now := time.Now()

	s.AddDamage(1, 100, "fire", 500, false, false, false, 0, now)
	s.AddDamage(1, 100, "fire", 700, true, false, false, 0, now)
	s.AddDamage(1, 100, "fire", 300, false, true, false, 0, now)
	s.AddDamage(1, 100, "fire", 200, true, true, false, 0, now)

	p, ok := s.Player(1)
	if !ok {
		t.Fatal("expected player 1 to exist")
	}
	vb := p.DamageStats.ValueBreakdown
	if vb.Normal != 500 || vb.Critical != 700 || vb.Lucky != 300 || vb.CritLucky != 200 {
		t.Fatalf("unexpected breakdown: %+v", vb)
	}
	if vb.Total() != p.DamageStats.Total {
		t.Fatalf("breakdown total %d != stats total %d", vb.Total(), p.DamageStats.Total)
	}
	cb := p.DamageStats.CountBreakdown
	if cb.Total() != p.DamageStats.Count {
		t.Fatalf("count breakdown total %d != count %d", cb.Total(), p.DamageStats.Count)
	}
}

func TestAddDamage_TimeRangeInvariant(t *testing.T) {
	s := New(GlobalSettings{})
	t0 := time.Now()
	t1 := t0.Add(2 * time.Second)

	s.AddDamage(1, 1, "", 10, false, false, false, 0, t1)
	s.AddDamage(1, 1, "", 10, false, false, false, 0, t0)

	p, _ := s.Player(1)
	if !p.DamageStats.TimeRange.First.Equal(t0) {
		t.Errorf("expected first = t0, got %v", p.DamageStats.TimeRange.First)
	}
	if !p.DamageStats.TimeRange.Last.Equal(t1) {
		t.Errorf("expected last = t1, got %v", p.DamageStats.TimeRange.Last)
	}
	if p.DamageStats.TimeRange.First.After(p.DamageStats.TimeRange.Last) {
		t.Fatal("invariant violated: first must not be after last")
	}
}

func TestAddHealing_SkipsUnknownSource(t *testing.T) {
	s := New(GlobalSettings{})
	s.AddHealing(0, 1, "", 100, false, false, false, time.Now())
	if _, ok := s.Player(0); ok {
		t.Fatal("expected healing from uid 0 to be skipped")
	}
}

func TestAddTakenDamage_DeadSetsHPZero(t *testing.T) {
	s := New(GlobalSettings{})
	s.SetUserHP(1, ptr(uint32(500)), ptr(uint32(1000)))
	s.AddTakenDamage(1, 500, true, time.Now())
	p, _ := s.Player(1)
	if p.HP != 0 {
		t.Errorf("expected HP 0 on death, got %d", p.HP)
	}
	if p.DeadCount != 1 {
		t.Errorf("expected deadCount 1, got %d", p.DeadCount)
	}
}

func TestPauseSafety(t *testing.T) {
	s := New(GlobalSettings{})
	s.Pause(true)
	s.AddDamage(1, 1, "", 100, false, false, false, 0, time.Now())
	if _, ok := s.Player(1); ok {
		t.Fatal("expected write while paused to be a no-op")
	}
	s.Pause(false)
	s.AddDamage(1, 1, "", 100, false, false, false, 0, time.Now())
	if _, ok := s.Player(1); !ok {
		t.Fatal("expected write after resume to succeed")
	}
}

func TestClearAll_PreservesIdentity(t *testing.T) {
	s := New(GlobalSettings{})
	s.SetUserName(1, "Alice")
	s.AddDamage(1, 1, "", 500, false, false, false, 0, time.Now())
	s.SetEnemyName(2, "Dragon")

	s.ClearAll()

	p, ok := s.Player(1)
	if !ok {
		t.Fatal("expected player to survive clear")
	}
	if p.Name != "Alice" {
		t.Errorf("expected name preserved, got %q", p.Name)
	}
	if p.DamageStats.Total != 0 {
		t.Errorf("expected stats zeroed, got %+v", p.DamageStats)
	}
	if len(s.Enemies()) != 0 {
		t.Error("expected enemies map emptied")
	}
}

func TestSetUserProfession_ClearsSubProfession(t *testing.T) {
	s := New(GlobalSettings{})
	s.SetSubProfession(1, "ray")
	s.SetUserProfession(1, "warrior")
	p, _ := s.Player(1)
	if p.SubProfession != "" {
		t.Errorf("expected sub-profession cleared on profession change, got %q", p.SubProfession)
	}

	s.SetUserProfession(1, "warrior") // same profession again: no clear needed
	s.SetSubProfession(1, "ray")
	s.SetUserProfession(1, "warrior")
	p, _ = s.Player(1)
	if p.SubProfession != "ray" {
		t.Errorf("expected sub-profession kept when profession unchanged, got %q", p.SubProfession)
	}
}

func TestSkillKey_DamageVsHealingDoNotCollide(t *testing.T) {
	s := New(GlobalSettings{})
	now := time.Now()
	s.AddDamage(1, 42, "fire", 100, false, false, false, 0, now)
	s.AddHealing(1, 42, "", 50, false, false, false, now)

	p, _ := s.Player(1)
	dmg := p.SkillUsage[SkillKey{Kind: SkillDamage, ID: 42}]
	heal := p.SkillUsage[SkillKey{Kind: SkillHealing, ID: 42}]
	if dmg == nil || heal == nil {
		t.Fatal("expected both damage and healing skill buckets to exist")
	}
	if dmg.TotalValue != 100 || heal.TotalValue != 50 {
		t.Fatalf("unexpected skill totals: dmg=%d heal=%d", dmg.TotalValue, heal.TotalValue)
	}
}

func ptr[T any](v T) *T { return &v }
