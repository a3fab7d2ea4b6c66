package model

import "encoding/json"

// AttemptKind 测验类型：摸底测试 / 阶段测试 / 专项练习
type AttemptKind string

const (
	KindPlacement AttemptKind = "placement"
	KindProgress  AttemptKind = "progress"
	KindPractice  AttemptKind = "practice"
)

func (k AttemptKind) Valid() bool {
	return k == KindPlacement || k == KindProgress || k == KindPractice
}

// Question 题库题目。由题库内容服务负责写入，本服务只读。
// 发布后不可变更；试卷套号（PaperVariant）为空表示不分套的旧数据。
// swagger:model Question
type Question struct {
	BaseModel
	Kind         AttemptKind     `gorm:"size:20;not null;index:idx_kind_variant" json:"kind"`
	SkillArea    SkillArea       `gorm:"size:50;not null;index" json:"skillArea"`
	Level        int             `gorm:"default:0" json:"level"` // 1-3，0 表示未分级
	PaperVariant *int            `gorm:"index:idx_kind_variant" json:"paperVariant"`
	PaperNumber  *int            `gorm:"index" json:"paperNumber"` // 专项练习卷编号
	Content      string          `gorm:"type:text;not null" json:"content"`
	Options      json.RawMessage `gorm:"type:json" json:"options"`
	Answer       string          `gorm:"type:text" json:"answer"` // 标准答案，仅服务端判分使用
	Order        int             `gorm:"default:0" json:"order"`
	StimulusKey  string          `gorm:"size:255" json:"stimulusKey"` // 音频/图片素材对象键
	Tags         string          `gorm:"size:255" json:"tags"`
	Explanation  string          `gorm:"type:text" json:"explanation"`
}

func (Question) TableName() string {
	return "questions"
}

// StudentQuestion 下发给学员的题目视图（不含答案与解析）
type StudentQuestion struct {
	ID          uint            `json:"id"`
	SkillArea   SkillArea       `json:"skillArea"`
	Content     string          `json:"content"`
	Options     json.RawMessage `json:"options"`
	Order       int             `json:"order"`
	StimulusKey string          `json:"stimulusKey,omitempty"`
}

func (q *Question) ToStudentView() StudentQuestion {
	return StudentQuestion{
		ID:          q.ID,
		SkillArea:   q.SkillArea,
		Content:     q.Content,
		Options:     q.Options,
		Order:       q.Order,
		StimulusKey: q.StimulusKey,
	}
}
