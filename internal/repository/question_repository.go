package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"toeic_prep_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// QuestionRepository 题库只读访问层。内容由题库服务维护，这里不提供写入。
type QuestionRepository struct {
	DB       *gorm.DB
	RDB      *redis.Client
	CacheTTL time.Duration
}

func NewQuestionRepository(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration) *QuestionRepository {
	return &QuestionRepository{DB: db, RDB: rdb, CacheTTL: cacheTTL}
}

// ListVariants 返回某测验类型下存在的所有套卷号（去重）
func (r *QuestionRepository) ListVariants(kind model.AttemptKind) ([]int, error) {
	var variants []int
	err := r.DB.Model(&model.Question{}).
		Where("kind = ? AND paper_variant IS NOT NULL", kind).
		Distinct().
		Order("paper_variant asc").
		Pluck("paper_variant", &variants).Error
	return variants, err
}

// ListByKindVariant 按套卷拉取整卷题目，规范顺序：order 升序，id 升序兜底。
// variant 为 nil 时不过滤套卷（兼容未分套的旧题库）。
// perAreaLimits 非空时对每个分区做截断；缺省返回该分区全部题目。
func (r *QuestionRepository) ListByKindVariant(kind model.AttemptKind, variant *int, perAreaLimits map[model.SkillArea]int) ([]model.Question, error) {
	questions, err := r.listCached(kind, variant)
	if err != nil {
		return nil, err
	}

	if len(perAreaLimits) == 0 {
		return questions, nil
	}

	taken := make(map[model.SkillArea]int)
	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		limit, limited := perAreaLimits[q.SkillArea]
		if limited && taken[q.SkillArea] >= limit {
			continue
		}
		taken[q.SkillArea]++
		out = append(out, q)
	}
	return out, nil
}

// listCached 整卷查询的 Redis 读穿缓存
func (r *QuestionRepository) listCached(kind model.AttemptKind, variant *int) ([]model.Question, error) {
	key := fmt.Sprintf("questions:%s:any", kind)
	if variant != nil {
		key = fmt.Sprintf("questions:%s:v%d", kind, *variant)
	}

	ctx := context.Background()
	if r.RDB != nil {
		if cached, err := r.RDB.Get(ctx, key).Bytes(); err == nil {
			var questions []model.Question
			if json.Unmarshal(cached, &questions) == nil {
				return questions, nil
			}
		}
	}

	var questions []model.Question
	query := r.DB.Where("kind = ?", kind)
	if variant != nil {
		query = query.Where("paper_variant = ?", *variant)
	}
	if err := query.Order("`order` asc, id asc").Find(&questions).Error; err != nil {
		return nil, err
	}

	if r.RDB != nil && len(questions) > 0 {
		if data, err := json.Marshal(questions); err == nil {
			r.RDB.Set(ctx, key, data, r.CacheTTL)
		}
	}
	return questions, nil
}

// ListByIDs 按 ID 拉取标准答案，严格限定在解析出的套卷范围内
func (r *QuestionRepository) ListByIDs(kind model.AttemptKind, ids []uint, variant *int) ([]model.Question, error) {
	var questions []model.Question
	query := r.DB.Where("id IN ? AND kind = ?", ids, kind)
	if variant != nil {
		query = query.Where("paper_variant = ?", *variant)
	}
	err := query.Order("`order` asc, id asc").Find(&questions).Error
	return questions, err
}

// ListPractice 拉取某分区某等级某套练习卷的题目
func (r *QuestionRepository) ListPractice(area model.SkillArea, level int, paperNumber int) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.
		Where("kind = ? AND skill_area = ? AND level = ? AND paper_number = ?",
			model.KindPractice, area, level, paperNumber).
		Order("`order` asc, id asc").
		Find(&questions).Error
	return questions, err
}

// ListPracticePapers 返回某分区某等级下可用的练习卷编号
func (r *QuestionRepository) ListPracticePapers(area model.SkillArea, level int) ([]int, error) {
	var papers []int
	err := r.DB.Model(&model.Question{}).
		Where("kind = ? AND skill_area = ? AND level = ? AND paper_number IS NOT NULL",
			model.KindPractice, area, level).
		Distinct().
		Order("paper_number asc").
		Pluck("paper_number", &papers).Error
	return papers, err
}
