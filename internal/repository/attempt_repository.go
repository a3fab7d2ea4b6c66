package repository

import (
	"errors"
	"strings"
	"time"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/util"

	"gorm.io/gorm"
)

// AttemptRepository 作答记录的追加写账本。正常业务只追加不修改，
// 删除仅限管理员修数据的后门，走 DeleteWithTx。
type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.Attempt) error {
	return r.DB.Create(attempt).Error
}

// IsDuplicatePlacement 判断写入失败是否由定级考试唯一索引冲突引起
func (r *AttemptRepository) IsDuplicatePlacement(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL 1062
	return strings.Contains(err.Error(), "Duplicate entry")
}

func (r *AttemptRepository) FindByID(id uint) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.First(&attempt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// History 分页查询作答历史，kind、area 为空串时不过滤
func (r *AttemptRepository) History(userID uint, kind model.AttemptKind, area model.SkillArea, page, limit int) ([]model.Attempt, int64, error) {
	query := r.DB.Model(&model.Attempt{}).Where("user_id = ?", userID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if area != "" {
		query = query.Where("skill_area = ?", area)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []model.Attempt
	err := query.Order("submitted_at desc, id desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}

// PracticeSince 返回用户在某分区某等级、锚点之后的练习记录，新在前
func (r *AttemptRepository) PracticeSince(userID uint, area model.SkillArea, level int, since *time.Time) ([]model.Attempt, error) {
	query := r.DB.Where("user_id = ? AND kind = ? AND skill_area = ? AND level = ?",
		userID, model.KindPractice, area, level)
	if since != nil {
		query = query.Where("submitted_at >= ?", *since)
	}

	var attempts []model.Attempt
	err := query.Order("submitted_at desc, id desc").Find(&attempts).Error
	return attempts, err
}

// CompletedProgressVariants 返回用户已完成的进度测验套卷号（去重）
func (r *AttemptRepository) CompletedProgressVariants(userID uint) ([]int, error) {
	var variants []int
	err := r.DB.Model(&model.Attempt{}).
		Where("user_id = ? AND kind = ? AND paper_variant IS NOT NULL", userID, model.KindProgress).
		Distinct().
		Order("paper_variant asc").
		Pluck("paper_variant", &variants).Error
	return variants, err
}

// HasPracticePaper 判断用户是否做过某分区某等级的某套练习卷（重刷检测）
func (r *AttemptRepository) HasPracticePaper(userID uint, area model.SkillArea, level int, paperNumber int) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Attempt{}).
		Where("user_id = ? AND kind = ? AND skill_area = ? AND level = ? AND paper_number = ?",
			userID, model.KindPractice, area, level, paperNumber).
		Count(&count).Error
	return count > 0, err
}

// DeleteWithTx 在事务内删除记录，回调里同步修复用户画像
func (r *AttemptRepository) DeleteWithTx(attempt *model.Attempt, repair func(tx *gorm.DB) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Attempt{}, attempt.ID).Error; err != nil {
			return err
		}
		if repair != nil {
			return repair(tx)
		}
		return nil
	})
}
