package model

import (
	"encoding/json"
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

// User 学员账号与技能档案聚合。
// 技能等级与预测分只能由判分/定级流程更新，不允许绕过规则直接写入。
// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:100;unique;not null" json:"email"`
	Password string   `gorm:"size:100;not null" json:"-"`
	Role     UserRole `gorm:"type:enum('student','admin');default:'student'" json:"role"`
	Language string   `gorm:"size:10;default:'en'" json:"language"`
	Disabled bool     `gorm:"default:false" json:"disabled"`

	// 技能档案
	SkillLevels    json.RawMessage `gorm:"type:json" json:"skillLevels"` // map[SkillArea]SkillLevel
	ScoreOverall   int             `gorm:"default:0" json:"scoreOverall"`
	ScoreListening int             `gorm:"default:0" json:"scoreListening"`
	ScoreReading   int             `gorm:"default:0" json:"scoreReading"`
	PlacementDone  bool            `gorm:"default:false" json:"placementDone"`
	PlacementAt    *time.Time      `json:"placementAt"`

	LastLogin time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastLogin"`
}

func (User) TableName() string {
	return "users"
}

// SkillLevel 单个技能分区的等级与最近一次变更时间锚点。
// Since 之后的作答记录才是下一次升降级判定的有效证据。
type SkillLevel struct {
	Level int        `json:"level"`
	Since *time.Time `json:"since,omitempty"`
}

// SkillLevelMap 技能档案的规范形态：分区 -> {level, since}
type SkillLevelMap map[SkillArea]SkillLevel

// ParseSkillLevels 把存储中的技能等级 JSON 规范化为 SkillLevelMap。
// 历史数据存在扁平形态（分区 -> 等级数字），兼容逻辑只允许出现在这里。
func ParseSkillLevels(raw json.RawMessage) SkillLevelMap {
	out := make(SkillLevelMap, len(AllSkillAreas))
	for _, area := range AllSkillAreas {
		out[area] = SkillLevel{Level: MinSkillLevel}
	}
	if len(raw) == 0 {
		return out
	}

	var nested map[SkillArea]SkillLevel
	if err := json.Unmarshal(raw, &nested); err == nil && hasLevels(nested) {
		for area, sl := range nested {
			if area.Valid() && ValidSkillLevel(sl.Level) {
				out[area] = sl
			}
		}
		return out
	}

	// legacy flat shape: {"photographs": 2, ...}
	var flat map[SkillArea]int
	if err := json.Unmarshal(raw, &flat); err == nil {
		for area, lvl := range flat {
			if area.Valid() && ValidSkillLevel(lvl) {
				out[area] = SkillLevel{Level: lvl}
			}
		}
	}
	return out
}

// hasLevels 区分嵌套形态与扁平形态：扁平 JSON 解析到结构体时所有 level 均为 0
func hasLevels(m map[SkillArea]SkillLevel) bool {
	for _, sl := range m {
		if sl.Level != 0 {
			return true
		}
	}
	return false
}

func (m SkillLevelMap) Marshal() json.RawMessage {
	b, _ := json.Marshal(m)
	return b
}

// LevelFor 返回分区当前等级（缺省为最低级）
func (m SkillLevelMap) LevelFor(area SkillArea) SkillLevel {
	if sl, ok := m[area]; ok && ValidSkillLevel(sl.Level) {
		return sl
	}
	return SkillLevel{Level: MinSkillLevel}
}
