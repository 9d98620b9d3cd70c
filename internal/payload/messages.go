// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package payload

// Field numbers for the messages this decoder consumes. Unknown fields,
// and messages this decoder does not name, are skipped by wire type.
const (
	fEntityUUID  = 1
	fEntityType  = 2
	fEntityAttrs = 3

	fAttrCollectionAttrs = 1

	fAttrID      = 1
	fAttrRawData = 2

	fSyncNearEntitiesAppear = 1

	fSyncContainerDataVData = 1

	fVDataCharID         = 1
	fVDataRoleLevel      = 2
	fVDataAttr           = 3
	fVDataCharBase       = 4
	fVDataProfessionList = 5
	fVDataBuffer         = 6

	fRoleLevelLevel = 1

	fAttrDataCurHP = 1
	fAttrDataMaxHP = 2

	fCharBaseName       = 1
	fCharBaseFightPoint = 2

	fProfessionListCurID = 1

	fSyncNearDeltaInfoDeltas = 1

	fSyncToMeDeltaInfoDelta = 1

	fAoiSyncToMeDeltaBase = 1

	fAoiSyncDeltaUUID         = 1
	fAoiSyncDeltaAttrs        = 2
	fAoiSyncDeltaSkillEffects = 3

	fSkillEffectsDamages = 1

	fDamageOwnerID       = 1
	fDamageAttackerUUID  = 2
	fDamageTargetUUID    = 3
	fDamageValue         = 4
	fDamageLuckyValue    = 5
	fDamageTypeFlag      = 6
	fDamageIsMiss        = 7
	fDamageSource        = 8
	fDamageProperty      = 9
	fDamageHPLessen      = 10
	fDamageIsDead        = 11
	fDamageSummonerID    = 12
	fDamageTopSummonerID = 13
	fDamageType          = 14
)

// EntityType classifies an Entity in a SyncNearEntities appear list.
type EntityType uint32

const (
	EntChar    EntityType = 1
	EntMonster EntityType = 2
)

// DamageKind distinguishes a damage record from a healing record.
type DamageKind uint32

const (
	DamageKindDamage DamageKind = 0
	DamageKindHeal   DamageKind = 1
)

// Attr is a single attribute id/raw-data pair.
type Attr struct {
	ID      uint32
	RawData []byte
}

// AttrCollection is a repeated list of Attr.
type AttrCollection struct {
	Attrs []Attr
}

// Entity appears in a SyncNearEntities message.
type Entity struct {
	UUID  uint64
	Type  EntityType
	Attrs AttrCollection
}

// SyncNearEntities carries the set of entities newly visible to the
// local player.
type SyncNearEntities struct {
	Appear []Entity
}

// RoleLevel carries a character's level.
type RoleLevel struct {
	Level uint32
}

// AttrData carries a character's current/max HP.
type AttrData struct {
	CurHP uint32
	MaxHP uint32
}

// CharBase carries a character's name and fight-point score.
type CharBase struct {
	Name       string
	FightPoint uint32
}

// ProfessionList carries the character's currently selected profession id.
type ProfessionList struct {
	CurProfessionID uint32
}

// VData is a full character snapshot record.
type VData struct {
	CharID         uint64
	RoleLevel      *RoleLevel
	Attr           *AttrData
	CharBase       *CharBase
	ProfessionList *ProfessionList
	Buffer         []byte
}

// SyncContainerData carries a full VData snapshot.
type SyncContainerData struct {
	VData *VData
}

// SyncContainerDirtyData carries a VData whose Buffer holds the compact
// dirty-field grammar parsed by ApplyDirtyBuffer.
type SyncContainerDirtyData struct {
	VData *VData
}

// SyncDamageInfo is one damage or healing record inside SkillEffects.
type SyncDamageInfo struct {
	OwnerID       uint32
	AttackerUUID  uint64
	TargetUUID    uint64
	Value         int64
	LuckyValue    int64
	TypeFlag      uint32
	IsMiss        bool
	DamageSource  uint32
	Property      uint32
	HPLessenValue uint64
	IsDead        bool
	SummonerID    uint64
	TopSummonerID uint64
	Type          DamageKind
}

// SkillEffects is a list of damage/healing records.
type SkillEffects struct {
	Damages []SyncDamageInfo
}

// AoiSyncDelta is one entity's attribute/skill-effect delta.
type AoiSyncDelta struct {
	UUID         uint64
	Attrs        *AttrCollection
	SkillEffects *SkillEffects
}

// AoiSyncToMeDelta wraps the local player's own delta.
type AoiSyncToMeDelta struct {
	BaseDelta *AoiSyncDelta
}

// SyncNearDeltaInfo carries deltas for every nearby entity.
type SyncNearDeltaInfo struct {
	DeltaInfos []AoiSyncDelta
}

// SyncToMeDeltaInfo carries the local player's own delta.
type SyncToMeDeltaInfo struct {
	DeltaInfo *AoiSyncToMeDelta
}

func parseAttr(data []byte) Attr {
	fields := walkFields(data)
	var a Attr
	if v, ok := firstVarint(fields, fAttrID); ok {
		a.ID = uint32(v)
	}
	if b, ok := firstBytes(fields, fAttrRawData); ok {
		a.RawData = b
	}
	return a
}

func parseAttrCollection(data []byte) AttrCollection {
	fields := walkFields(data)
	var ac AttrCollection
	for _, b := range allBytes(fields, fAttrCollectionAttrs) {
		ac.Attrs = append(ac.Attrs, parseAttr(b))
	}
	return ac
}

func parseEntity(data []byte) Entity {
	fields := walkFields(data)
	var e Entity
	if v, ok := firstVarint(fields, fEntityUUID); ok {
		e.UUID = v
	}
	if v, ok := firstVarint(fields, fEntityType); ok {
		e.Type = EntityType(v)
	}
	if b, ok := firstBytes(fields, fEntityAttrs); ok {
		e.Attrs = parseAttrCollection(b)
	}
	return e
}

// ParseSyncNearEntities decodes a SyncNearEntities payload.
func ParseSyncNearEntities(data []byte) SyncNearEntities {
	fields := walkFields(data)
	var msg SyncNearEntities
	for _, b := range allBytes(fields, fSyncNearEntitiesAppear) {
		msg.Appear = append(msg.Appear, parseEntity(b))
	}
	return msg
}

func parseVData(data []byte) *VData {
	fields := walkFields(data)
	v := &VData{}
	if n, ok := firstVarint(fields, fVDataCharID); ok {
		v.CharID = n
	}
	if b, ok := firstBytes(fields, fVDataRoleLevel); ok {
		rl := RoleLevel{}
		rf := walkFields(b)
		if n, ok := firstVarint(rf, fRoleLevelLevel); ok {
			rl.Level = uint32(n)
		}
		v.RoleLevel = &rl
	}
	if b, ok := firstBytes(fields, fVDataAttr); ok {
		ad := AttrData{}
		af := walkFields(b)
		if n, ok := firstVarint(af, fAttrDataCurHP); ok {
			ad.CurHP = uint32(n)
		}
		if n, ok := firstVarint(af, fAttrDataMaxHP); ok {
			ad.MaxHP = uint32(n)
		}
		v.Attr = &ad
	}
	if b, ok := firstBytes(fields, fVDataCharBase); ok {
		cb := CharBase{}
		cf := walkFields(b)
		if s, ok := firstBytes(cf, fCharBaseName); ok {
			cb.Name = string(s)
		}
		if n, ok := firstVarint(cf, fCharBaseFightPoint); ok {
			cb.FightPoint = uint32(n)
		}
		v.CharBase = &cb
	}
	if b, ok := firstBytes(fields, fVDataProfessionList); ok {
		pl := ProfessionList{}
		pf := walkFields(b)
		if n, ok := firstVarint(pf, fProfessionListCurID); ok {
			pl.CurProfessionID = uint32(n)
		}
		v.ProfessionList = &pl
	}
	if b, ok := firstBytes(fields, fVDataBuffer); ok {
		v.Buffer = b
	}
	return v
}

// ParseSyncContainerData decodes a SyncContainerData payload.
func ParseSyncContainerData(data []byte) SyncContainerData {
	fields := walkFields(data)
	var msg SyncContainerData
	if b, ok := firstBytes(fields, fSyncContainerDataVData); ok {
		msg.VData = parseVData(b)
	}
	return msg
}

// ParseSyncContainerDirtyData decodes a SyncContainerDirtyData payload.
func ParseSyncContainerDirtyData(data []byte) SyncContainerDirtyData {
	fields := walkFields(data)
	var msg SyncContainerDirtyData
	if b, ok := firstBytes(fields, fSyncContainerDataVData); ok {
		msg.VData = parseVData(b)
	}
	return msg
}

func parseDamageInfo(data []byte) SyncDamageInfo {
	fields := walkFields(data)
	var d SyncDamageInfo
	if v, ok := firstVarint(fields, fDamageOwnerID); ok {
		d.OwnerID = uint32(v)
	}
	if v, ok := firstVarint(fields, fDamageAttackerUUID); ok {
		d.AttackerUUID = v
	}
	if v, ok := firstVarint(fields, fDamageTargetUUID); ok {
		d.TargetUUID = v
	}
	if v, ok := firstVarint(fields, fDamageValue); ok {
		d.Value = int64(v)
	}
	if v, ok := firstVarint(fields, fDamageLuckyValue); ok {
		d.LuckyValue = int64(v)
	}
	if v, ok := firstVarint(fields, fDamageTypeFlag); ok {
		d.TypeFlag = uint32(v)
	}
	if v, ok := firstVarint(fields, fDamageIsMiss); ok {
		d.IsMiss = v != 0
	}
	if v, ok := firstVarint(fields, fDamageSource); ok {
		d.DamageSource = uint32(v)
	}
	if v, ok := firstVarint(fields, fDamageProperty); ok {
		d.Property = uint32(v)
	}
	if v, ok := firstVarint(fields, fDamageHPLessen); ok {
		d.HPLessenValue = v
	}
	if v, ok := firstVarint(fields, fDamageIsDead); ok {
		d.IsDead = v != 0
	}
	if v, ok := firstVarint(fields, fDamageSummonerID); ok {
		d.SummonerID = v
	}
	if v, ok := firstVarint(fields, fDamageTopSummonerID); ok {
		d.TopSummonerID = v
	}
	if v, ok := firstVarint(fields, fDamageType); ok {
		d.Type = DamageKind(v)
	}
	return d
}

func parseSkillEffects(data []byte) *SkillEffects {
	fields := walkFields(data)
	se := &SkillEffects{}
	for _, b := range allBytes(fields, fSkillEffectsDamages) {
		se.Damages = append(se.Damages, parseDamageInfo(b))
	}
	return se
}

func parseAoiSyncDelta(data []byte) AoiSyncDelta {
	fields := walkFields(data)
	var d AoiSyncDelta
	if v, ok := firstVarint(fields, fAoiSyncDeltaUUID); ok {
		d.UUID = v
	}
	if b, ok := firstBytes(fields, fAoiSyncDeltaAttrs); ok {
		ac := parseAttrCollection(b)
		d.Attrs = &ac
	}
	if b, ok := firstBytes(fields, fAoiSyncDeltaSkillEffects); ok {
		d.SkillEffects = parseSkillEffects(b)
	}
	return d
}

// ParseSyncNearDeltaInfo decodes a SyncNearDeltaInfo payload.
func ParseSyncNearDeltaInfo(data []byte) SyncNearDeltaInfo {
	fields := walkFields(data)
	var msg SyncNearDeltaInfo
	for _, b := range allBytes(fields, fSyncNearDeltaInfoDeltas) {
		msg.DeltaInfos = append(msg.DeltaInfos, parseAoiSyncDelta(b))
	}
	return msg
}

// ParseSyncToMeDeltaInfo decodes a SyncToMeDeltaInfo payload.
func ParseSyncToMeDeltaInfo(data []byte) SyncToMeDeltaInfo {
	fields := walkFields(data)
	var msg SyncToMeDeltaInfo
	if b, ok := firstBytes(fields, fSyncToMeDeltaInfoDelta); ok {
		tf := walkFields(b)
		toMe := &AoiSyncToMeDelta{}
		if bb, ok := firstBytes(tf, fAoiSyncToMeDeltaBase); ok {
			base := parseAoiSyncDelta(bb)
			toMe.BaseDelta = &base
		}
		msg.DeltaInfo = toMe
	}
	return msg
}
