// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/config"
)

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := New(context.Background(), config.SnapshotConfig{Path: filepath.Join(dir, "identity.json")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	store := aggregate.New(aggregate.GlobalSettings{})
	store.SetUserName(1, "Alice")
	store.SetUserProfession(1, "雷影剑士")
	store.SetUserFightPoint(1, 99999)
	maxHP := uint32(20000)
	store.SetUserHP(1, nil, &maxHP)

	if err := p.Save(context.Background(), store); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := entries[1]
	if !ok {
		t.Fatal("expected entry for uid 1")
	}
	if e.Name != "Alice" || e.Profession != "雷影剑士" || e.FightPoint != 99999 || e.MaxHP != 20000 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	p, err := New(context.Background(), config.SnapshotConfig{Path: filepath.Join(dir, "nope.json")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := p.Load()
	if err != nil {
		t.Fatalf("expected no error for missing snapshot, got %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %+v", entries)
	}
}

func TestSaveAndLoad_Compressed(t *testing.T) {
	dir := t.TempDir()
	p, err := New(context.Background(), config.SnapshotConfig{
		Path:     filepath.Join(dir, "identity.json.gz"),
		Compress: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	store := aggregate.New(aggregate.GlobalSettings{})
	store.SetUserName(7, "Bob")

	if err := p.Save(context.Background(), store); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entries[7].Name != "Bob" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestRestore_SeedsIdentityOnly(t *testing.T) {
	store := aggregate.New(aggregate.GlobalSettings{})
	now := time.Now()
	store.AddDamage(3, 1241, "physical", 500, false, false, false, 500, now)

	Restore(store, map[uint32]Entry{
		3: {UID: 3, Name: "Carol", Profession: "神射手", FightPoint: 50000, MaxHP: 15000},
	})

	p, ok := store.Player(3)
	if !ok {
		t.Fatal("expected player 3 to exist")
	}
	if p.Name != "Carol" || p.Profession != "神射手" || p.MaxHP != 15000 {
		t.Fatalf("unexpected identity fields: %+v", p)
	}
	if p.DamageStats.Total != 500 {
		t.Fatalf("expected cumulative stats untouched, got %+v", p.DamageStats)
	}
}
