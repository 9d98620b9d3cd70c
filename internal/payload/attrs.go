// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package payload

import (
	"encoding/binary"
	"time"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/skills"
)

// Attribute codes observed in Attr.id; raw data is big-endian where numeric.
const (
	attrName       = 0x01
	attrProfession = 0xDC
	attrFightPoint = 0x272E
	attrLevel      = 0x2710
	attrHP         = 0x2C2E
	attrMaxHP      = 0x2C38
)

// ApplyPlayerAttrs updates a player's identity fields from a decoded
// attribute collection. Attributes this table does not recognize are
// left untouched.
func ApplyPlayerAttrs(store *aggregate.Store, uid uint32, attrs AttrCollection) {
	for _, a := range attrs.Attrs {
		switch a.ID {
		case attrName:
			store.SetUserName(uid, string(a.RawData))
		case attrProfession:
			if v, ok := beUint32(a.RawData); ok {
				if name, ok := skills.ProfessionName(v); ok {
					store.SetUserProfession(uid, name)
				}
			}
		case attrFightPoint:
			if v, ok := beUint32(a.RawData); ok {
				store.SetUserFightPoint(uid, v)
			}
		case attrLevel:
			if v, ok := beUint32(a.RawData); ok {
				store.SetUserLevel(uid, v)
			}
		case attrHP:
			if v, ok := beUint32(a.RawData); ok {
				store.SetUserHP(uid, &v, nil)
			}
		case attrMaxHP:
			if v, ok := beUint32(a.RawData); ok {
				store.SetUserHP(uid, nil, &v)
			}
		}
	}
}

// ApplyEnemyAttrs updates an enemy record the same way ApplyPlayerAttrs
// does for players, using only the fields enemies carry.
func ApplyEnemyAttrs(store *aggregate.Store, id uint32, attrs AttrCollection, now time.Time) {
	for _, a := range attrs.Attrs {
		switch a.ID {
		case attrName:
			store.SetEnemyName(id, string(a.RawData))
		case attrHP:
			if v, ok := beUint32(a.RawData); ok {
				store.SetEnemyHP(id, v, now)
			}
		case attrMaxHP:
			if v, ok := beUint32(a.RawData); ok {
				store.SetEnemyMaxHP(id, v)
			}
		}
	}
}

func beUint32(b []byte) (uint32, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[len(b)-4:]), true
}

// Dirty-buffer field/sub-field indices carried inside
// SyncContainerDirtyData.vData.buffer.
const (
	dirtyFieldCharBase       = 2
	dirtyFieldUserFightAttr  = 16
	dirtyFieldProfessionList = 61

	dirtySubCharBaseName       = 5
	dirtySubCharBaseFightPoint = 35

	dirtySubFightAttrHP    = 1
	dirtySubFightAttrMaxHP = 2

	dirtySubProfessionID = 1
)

// ApplyDirtyBuffer walks the compact little-endian field-update stream
// carried in a SyncContainerDirtyData.vData.buffer for the current user.
func ApplyDirtyBuffer(store *aggregate.Store, uid uint32, buf []byte) {
	r := buf
	for len(r) >= 16 {
		fieldIndex := binary.LittleEndian.Uint32(r[0:4])
		subFieldIndex := binary.LittleEndian.Uint32(r[8:12])
		r = r[16:]

		switch fieldIndex {
		case dirtyFieldCharBase:
			switch subFieldIndex {
			case dirtySubCharBaseName:
				if len(r) < 8 {
					return
				}
				length := binary.LittleEndian.Uint32(r[0:4])
				r = r[8:] // length + its padding word
				if uint32(len(r)) < length {
					return
				}
				name := string(r[:length])
				r = r[length:]
				if len(r) < 4 {
					return
				}
				r = r[4:] // trailing pad
				store.SetUserName(uid, name)
			case dirtySubCharBaseFightPoint:
				if len(r) < 8 {
					return
				}
				fp := binary.LittleEndian.Uint32(r[0:4])
				r = r[8:]
				store.SetUserFightPoint(uid, fp)
			default:
				return
			}
		case dirtyFieldUserFightAttr:
			if len(r) < 4 {
				return
			}
			v := binary.LittleEndian.Uint32(r[0:4])
			r = r[4:]
			switch subFieldIndex {
			case dirtySubFightAttrHP:
				store.SetUserHP(uid, &v, nil)
			case dirtySubFightAttrMaxHP:
				store.SetUserHP(uid, nil, &v)
			default:
				return
			}
		case dirtyFieldProfessionList:
			if subFieldIndex != dirtySubProfessionID {
				return
			}
			if len(r) < 8 {
				return
			}
			profID := binary.LittleEndian.Uint32(r[0:4])
			r = r[8:]
			if name, ok := skills.ProfessionName(profID); ok {
				store.SetUserProfession(uid, name)
			}
		default:
			return
		}
	}
}
