package service

import (
	"context"
	"encoding/json"
	"errors"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/repository"
	"toeic_prep_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReplayQuestion 回放视图：原题、学员当时的选择与解析
type ReplayQuestion struct {
	ID          uint            `json:"id"`
	SkillArea   model.SkillArea `json:"skillArea"`
	Content     string          `json:"content"`
	Options     json.RawMessage `json:"options"`
	Order       int             `json:"order"`
	StimulusURL string          `json:"stimulusUrl,omitempty"`
	Chosen      string          `json:"chosen"`
	Answer      string          `json:"answer"`
	IsCorrect   bool            `json:"isCorrect"`
	Explanation string          `json:"explanation,omitempty"`
}

type ReplayResponse struct {
	Attempt   model.AttemptSummary `json:"attempt"`
	Questions []ReplayQuestion     `json:"questions"`
}

// AttemptService 作答账本的查询与管理入口
type AttemptService struct {
	AttemptRepo  *repository.AttemptRepository
	QuestionRepo *repository.QuestionRepository
	UserRepo     *repository.UserRepository
	Storage      *StorageService
}

func NewAttemptService(attemptRepo *repository.AttemptRepository, questionRepo *repository.QuestionRepository, userRepo *repository.UserRepository, storage *StorageService) *AttemptService {
	return &AttemptService{AttemptRepo: attemptRepo, QuestionRepo: questionRepo, UserRepo: userRepo, Storage: storage}
}

// History 分页返回用户的作答摘要
func (s *AttemptService) History(userID uint, kind model.AttemptKind, area model.SkillArea, page, limit int) ([]model.AttemptSummary, int64, error) {
	attempts, total, err := s.AttemptRepo.History(userID, kind, area, page, limit)
	if err != nil {
		return nil, 0, err
	}
	summaries := make([]model.AttemptSummary, 0, len(attempts))
	for i := range attempts {
		summaries = append(summaries, attempts[i].ToSummary())
	}
	return summaries, total, nil
}

// Detail 返回单次作答的完整记录
func (s *AttemptService) Detail(id uint) (*model.Attempt, error) {
	return s.AttemptRepo.FindByID(id)
}

// Replay 把逐题判分结果和原题拼成回放视图，含答案与解析。
// 题库中已下架的题目跳过，只回放还能解析到的部分。
func (s *AttemptService) Replay(ctx context.Context, attempt *model.Attempt) (*ReplayResponse, error) {
	var results []model.QuestionResult
	if len(attempt.QuestionResults) > 0 {
		if err := json.Unmarshal(attempt.QuestionResults, &results); err != nil {
			return nil, err
		}
	}

	ids := make([]uint, 0, len(results))
	resultByID := make(map[uint]model.QuestionResult, len(results))
	for _, r := range results {
		ids = append(ids, r.QuestionID)
		resultByID[r.QuestionID] = r
	}

	questions := []model.Question{}
	if len(ids) > 0 {
		var err error
		questions, err = s.QuestionRepo.ListByIDs(attempt.Kind, ids, attempt.PaperVariant)
		if err != nil {
			return nil, err
		}
	}

	replay := make([]ReplayQuestion, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		r := resultByID[q.ID]
		replay = append(replay, ReplayQuestion{
			ID:          q.ID,
			SkillArea:   q.SkillArea,
			Content:     q.Content,
			Options:     q.Options,
			Order:       q.Order,
			StimulusURL: s.Storage.StimulusURL(ctx, q.StimulusKey),
			Chosen:      r.Chosen,
			Answer:      q.Answer,
			IsCorrect:   r.IsCorrect,
			Explanation: q.Explanation,
		})
	}

	return &ReplayResponse{Attempt: attempt.ToSummary(), Questions: replay}, nil
}

// AdminDelete 管理员删除一条作答记录并在同一事务内修复用户画像。
// 删除摸底记录会清掉定级状态，用户可重新参加摸底测试。
func (s *AttemptService) AdminDelete(attempt *model.Attempt) error {
	return s.AttemptRepo.DeleteWithTx(attempt, func(tx *gorm.DB) error {
		if attempt.Kind == model.KindPlacement {
			return tx.Model(&model.User{}).Where("id = ?", attempt.UserID).Updates(map[string]interface{}{
				"placement_done":  false,
				"placement_at":    nil,
				"skill_levels":    model.ParseSkillLevels(nil).Marshal(),
				"score_overall":   0,
				"score_listening": 0,
				"score_reading":   0,
			}).Error
		}

		if attempt.Kind == model.KindProgress {
			return s.repairScores(tx, attempt.UserID, attempt.ID)
		}

		// 练习记录删除后不回滚已发生的升降级，等级以当前档案为准
		logger.Log.Info("practice attempt deleted, skill levels left as-is",
			zap.Uint("userID", attempt.UserID), zap.Uint("attemptID", attempt.ID))
		return nil
	})
}

// repairScores 用剩余账本里最近一次计分测验回填预测分
func (s *AttemptService) repairScores(tx *gorm.DB, userID uint, deletedID uint) error {
	var latest model.Attempt
	err := tx.Where("user_id = ? AND id <> ? AND kind IN ?", userID, deletedID,
		[]model.AttemptKind{model.KindPlacement, model.KindProgress}).
		Order("submitted_at desc, id desc").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"score_overall":   0,
			"score_listening": 0,
			"score_reading":   0,
		}).Error
	}
	if err != nil {
		return err
	}

	return tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"score_overall":   latest.ScoreOverall,
		"score_listening": latest.ScoreListening,
		"score_reading":   latest.ScoreReading,
	}).Error
}
