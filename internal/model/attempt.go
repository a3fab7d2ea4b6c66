package model

import (
	"encoding/json"
	"time"
)

// AreaStat 单个技能分区的作答统计
type AreaStat struct {
	Count    int     `json:"count"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// QuestionResult 单题判分结果
type QuestionResult struct {
	QuestionID uint   `json:"questionId"`
	Chosen     string `json:"chosen"`
	Correct    string `json:"correct"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Attempt 一次判分完成的作答记录。只追加，提交后不可修改。
// swagger:model Attempt
type Attempt struct {
	BaseModel
	UserID       uint        `gorm:"not null;index:idx_user_kind,priority:1;index:idx_practice,priority:1" json:"userId"`
	User         *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Kind         AttemptKind `gorm:"size:20;not null;index:idx_user_kind,priority:2" json:"kind"`
	PaperVariant *int        `json:"paperVariant"`
	SkillArea    SkillArea   `gorm:"size:50;index:idx_practice,priority:2" json:"skillArea,omitempty"` // 仅专项练习
	Level        int         `gorm:"default:0;index:idx_practice,priority:3" json:"level"`
	PaperNumber  *int        `gorm:"index:idx_practice,priority:4" json:"paperNumber"`

	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`

	SectionStats    json.RawMessage `gorm:"type:json" json:"sectionStats"` // map[SkillArea]AreaStat
	ScoreOverall    int             `json:"scoreOverall"`
	ScoreListening  int             `json:"scoreListening"`
	ScoreReading    int             `json:"scoreReading"`
	WeakAreas       json.RawMessage `gorm:"type:json" json:"weakAreas"`       // []SkillArea，按正确率升序
	QuestionResults json.RawMessage `gorm:"type:json" json:"questionResults"` // []QuestionResult

	TimeSec     int       `json:"timeSec"`
	SubmittedAt time.Time `json:"submittedAt"`
	IsRetake    bool      `gorm:"default:false" json:"isRetake"` // 重刷已做过的练习卷

	// 摸底测试唯一性约束：placement 记录写入 UserID，其余为 NULL。
	// 并发提交时由唯一索引保证先写者胜出。
	PlacementKey *uint `gorm:"uniqueIndex" json:"-"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// AttemptSummary 历史列表视图，不含逐题明细
type AttemptSummary struct {
	ID             uint        `json:"id"`
	Kind           AttemptKind `json:"kind"`
	PaperVariant   *int        `json:"paperVariant"`
	SkillArea      SkillArea   `json:"skillArea,omitempty"`
	Level          int         `json:"level,omitempty"`
	PaperNumber    *int        `json:"paperNumber,omitempty"`
	Total          int         `json:"total"`
	Correct        int         `json:"correct"`
	Accuracy       float64     `json:"accuracy"`
	ScoreOverall   int         `json:"scoreOverall"`
	ScoreListening int         `json:"scoreListening"`
	ScoreReading   int         `json:"scoreReading"`
	IsRetake       bool        `json:"isRetake"`
	SubmittedAt    time.Time   `json:"submittedAt"`
}

func (a *Attempt) ToSummary() AttemptSummary {
	return AttemptSummary{
		ID:             a.ID,
		Kind:           a.Kind,
		PaperVariant:   a.PaperVariant,
		SkillArea:      a.SkillArea,
		Level:          a.Level,
		PaperNumber:    a.PaperNumber,
		Total:          a.Total,
		Correct:        a.Correct,
		Accuracy:       a.Accuracy,
		ScoreOverall:   a.ScoreOverall,
		ScoreListening: a.ScoreListening,
		ScoreReading:   a.ScoreReading,
		IsRetake:       a.IsRetake,
		SubmittedAt:    a.SubmittedAt,
	}
}
