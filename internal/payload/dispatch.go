// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package payload

import (
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/envelope"
	"github.com/nullstride/resonance-observer/internal/skills"
)

// Dispatcher owns the state that must persist across Notify messages for
// a single identified flow: the local player's uuid, learned the first
// time a SyncToMeDeltaInfo is observed. It is not safe for concurrent
// use — the stream/decode task that owns a flow is single-threaded.
type Dispatcher struct {
	store           *aggregate.Store
	currentUserUUID uint64
}

// NewDispatcher returns a Dispatcher that applies decoded Notify payloads
// to store.
func NewDispatcher(store *aggregate.Store) *Dispatcher {
	return &Dispatcher{store: store}
}

// Reset clears the learned local-player identity, used when the flow
// identifier declares a migration.
func (d *Dispatcher) Reset() {
	d.currentUserUUID = 0
}

// Dispatch applies one decoded Notify message to the aggregate store.
func (d *Dispatcher) Dispatch(n envelope.Notify, now time.Time) {
	switch n.MethodID {
	case envelope.MethodSyncNearEntities:
		d.applySyncNearEntities(ParseSyncNearEntities(n.Payload), now)
	case envelope.MethodSyncContainerData:
		d.applySyncContainerData(ParseSyncContainerData(n.Payload).VData)
	case envelope.MethodSyncContainerDirtyData:
		d.applySyncContainerDirtyData(ParseSyncContainerDirtyData(n.Payload).VData)
	case envelope.MethodSyncNearDeltaInfo:
		d.applySyncNearDeltaInfo(ParseSyncNearDeltaInfo(n.Payload), now)
	case envelope.MethodSyncToMeDeltaInfo:
		d.applySyncToMeDeltaInfo(ParseSyncToMeDeltaInfo(n.Payload), now)
	case envelope.MethodSyncServerTime:
		// no-op
	}
}

func (d *Dispatcher) applySyncNearEntities(msg SyncNearEntities, now time.Time) {
	for _, e := range msg.Appear {
		uid := uint32(e.UUID >> 16)
		switch e.Type {
		case EntChar:
			ApplyPlayerAttrs(d.store, uid, e.Attrs)
		case EntMonster:
			ApplyEnemyAttrs(d.store, uid, e.Attrs, now)
		}
	}
}

func (d *Dispatcher) applySyncContainerData(v *VData) {
	if v == nil {
		return
	}
	uid := uint32(v.CharID)
	if v.RoleLevel != nil {
		d.store.SetUserLevel(uid, v.RoleLevel.Level)
	}
	if v.Attr != nil {
		curHP, maxHP := v.Attr.CurHP, v.Attr.MaxHP
		d.store.SetUserHP(uid, &curHP, &maxHP)
	}
	if v.CharBase != nil {
		d.store.SetUserName(uid, v.CharBase.Name)
		d.store.SetUserFightPoint(uid, v.CharBase.FightPoint)
	}
	if v.ProfessionList != nil {
		if name, ok := skills.ProfessionName(v.ProfessionList.CurProfessionID); ok {
			d.store.SetUserProfession(uid, name)
		}
	}
}

func (d *Dispatcher) applySyncContainerDirtyData(v *VData) {
	if v == nil || d.currentUserUUID == 0 {
		return
	}
	uid := uint32(d.currentUserUUID >> 16)
	if len(v.Buffer) > 0 {
		ApplyDirtyBuffer(d.store, uid, v.Buffer)
	}
}

func (d *Dispatcher) applySyncToMeDeltaInfo(msg SyncToMeDeltaInfo, now time.Time) {
	if msg.DeltaInfo == nil || msg.DeltaInfo.BaseDelta == nil {
		return
	}
	delta := *msg.DeltaInfo.BaseDelta
	if d.currentUserUUID == 0 {
		d.currentUserUUID = delta.UUID
	}
	d.applyAoiDelta(delta, now)
}

func (d *Dispatcher) applySyncNearDeltaInfo(msg SyncNearDeltaInfo, now time.Time) {
	for _, delta := range msg.DeltaInfos {
		d.applyAoiDelta(delta, now)
	}
}

func (d *Dispatcher) applyAoiDelta(delta AoiSyncDelta, now time.Time) {
	uid := uint32(delta.UUID >> 16)
	switch {
	case isPlayerUUID(delta.UUID):
		if delta.Attrs != nil {
			ApplyPlayerAttrs(d.store, uid, *delta.Attrs)
		}
	case isMonsterUUID(delta.UUID):
		if delta.Attrs != nil {
			ApplyEnemyAttrs(d.store, uid, *delta.Attrs, now)
		}
	}
	if delta.SkillEffects != nil {
		for _, dmg := range delta.SkillEffects.Damages {
			ApplyDamageRecord(d.store, delta.UUID, dmg, now)
		}
	}
}
