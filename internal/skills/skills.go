// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package skills holds the static lookup tables that translate numeric
// skill, profession and damage-property identifiers observed on the wire
// into the human-readable labels used throughout the aggregate store.
package skills

// SubProfessionBySkillID maps a skill id to the specialization label it
// implies. Not every skill narrows down a sub-profession; absence from
// this table means "unknown", not "no sub-profession".
var subProfessionBySkillID = map[uint32]string{
	1241:    "射线",
	2307:    "协奏",
	2361:    "协奏",
	55302:   "协奏",
	20301:   "愈合",
	1518:    "惩戒",
	1541:    "惩戒",
	21402:   "惩戒",
	2306:    "狂音",
	120901:  "冰矛",
	120902:  "冰矛",
	1714:    "居合",
	1734:    "居合",
	44701:   "月刃",
	179906:  "月刃",
	220112:  "鹰弓",
	2203622: "鹰弓",
	2292:    "狼弓",
	1700820: "狼弓",
	1700825: "狼弓",
	1700827: "狼弓",
	1419:    "空枪",
	1405:    "重装",
	1418:    "重装",
	2405:    "防盾",
	2406:    "光盾",
	199902:  "岩盾",
	1930:    "格挡",
	1931:    "格挡",
	1934:    "格挡",
	1935:    "格挡",
}

// SubProfessionForSkill reports the sub-profession label implied by
// skillID, if known.
func SubProfessionForSkill(skillID uint32) (string, bool) {
	name, ok := subProfessionBySkillID[skillID]
	return name, ok
}

var professionNameByID = map[uint32]string{
	1:  "雷影剑士",
	2:  "冰魔导师",
	3:  "涤罪恶火·战斧",
	4:  "青岚骑士",
	5:  "森语者",
	8:  "雷霆一闪·手炮",
	9:  "巨刃守护者",
	10: "暗灵祈舞·仪刀/仪仗",
	11: "神射手",
	12: "神盾骑士",
	13: "灵魂乐手",
}

// ProfessionName returns the display name for a profession id, if known.
func ProfessionName(id uint32) (string, bool) {
	name, ok := professionNameByID[id]
	return name, ok
}

var elementByProperty = map[uint32]string{
	0: "physical",
	1: "fire",
	2: "ice",
	3: "electric",
	4: "wood",
	5: "wind",
	6: "rock",
	7: "light",
	8: "dark",
}

// ElementName returns the element label for a damage property code,
// defaulting to "physical" for unrecognized codes.
func ElementName(property uint32) string {
	if name, ok := elementByProperty[property]; ok {
		return name
	}
	return "physical"
}
