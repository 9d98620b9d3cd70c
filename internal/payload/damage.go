// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package payload

import (
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/skills"
)

const (
	uuidPlayerTag  = 640
	uuidMonsterTag = 64

	eliteDummyTargetUID = 75
)

func isPlayerUUID(uuid uint64) bool  { return uuid&0xFFFF == uuidPlayerTag }
func isMonsterUUID(uuid uint64) bool { return uuid&0xFFFF == uuidMonsterTag }

const (
	typeFlagCrit       = 1 << 0
	typeFlagCauseLucky = 1 << 2
)

// ApplyDamageRecord implements the damage attribution rule: it resolves
// attacker/target uids from a SyncDamageInfo record observed against the
// entity identified by targetUUID, and records it against the store.
func ApplyDamageRecord(store *aggregate.Store, targetUUID uint64, d SyncDamageInfo, now time.Time) {
	attackerSource := d.TopSummonerID
	if attackerSource == 0 {
		attackerSource = d.AttackerUUID
	}
	if attackerSource == 0 {
		return
	}
	attackerUID := uint32(attackerSource >> 16)

	targetUID := uint32(targetUUID >> 16)

	if d.OwnerID == 0 {
		return
	}
	skillID := d.OwnerID

	value := d.Value
	if value <= 0 {
		value = d.LuckyValue
	}
	if value <= 0 {
		return
	}

	isCrit := d.TypeFlag&typeFlagCrit != 0
	isCauseLucky := d.TypeFlag&typeFlagCauseLucky != 0
	isLucky := d.LuckyValue > 0
	isHeal := d.Type == DamageKindHeal
	element := skills.ElementName(d.Property)

	subProfession, hasSubProfession := skills.SubProfessionForSkill(skillID)

	switch {
	case isPlayerUUID(targetUUID):
		if isHeal {
			if !isPlayerUUID(attackerSource) {
				store.AddHealing(0, skillID, element, uint64(value), isCrit, isLucky, isCauseLucky, now)
				return
			}
			if hasSubProfession {
				store.SetSubProfession(attackerUID, subProfession)
			}
			store.AddHealing(attackerUID, skillID, element, uint64(value), isCrit, isLucky, isCauseLucky, now)
			return
		}
		store.AddTakenDamage(targetUID, uint64(value), d.IsDead, now)
	case isMonsterUUID(targetUUID):
		if isPlayerUUID(attackerSource) {
			settings := store.Settings()
			if !settings.OnlyRecordEliteDummy || targetUID == eliteDummyTargetUID {
				if hasSubProfession {
					store.SetSubProfession(attackerUID, subProfession)
				}
				store.AddDamage(attackerUID, skillID, element, uint64(value), isCrit, isLucky, isCauseLucky, d.HPLessenValue, now)
			}
		}
		if d.IsDead {
			store.SetEnemyHP(targetUID, 0, now)
		}
	}
}
