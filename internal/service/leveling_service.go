package service

import (
	"time"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/pkg/logger"
	"toeic_prep_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// 升降级阈值
const (
	PromotionWindow  = 3
	DemotionWindow   = 3
	PromotionMeanAcc = 0.70
	DemotionPaperAcc = 0.50
)

// LevelDecision 等级评估结果。Direction 为空表示维持现状
type LevelDecision struct {
	NewLevel  int
	Direction string // "promote" / "demote" / ""
}

// EvaluateLevel 对某分区某等级锚点之后的练习记录做纯函数评估。
// attempts 按提交时间降序（新在前）。
//
// 降级优先：取最近 3 套不同练习卷各自的最新成绩，全部低于 50% 则降一级；
// 升级：取最近 3 次非重刷作答，平均正确率不低于 70% 则升一级。
// 窗口不满时维持现状，不做部分窗口外推。
func EvaluateLevel(level int, attempts []model.Attempt) LevelDecision {
	// 按卷分组，新在前保证首次出现即该卷最新成绩
	latestByPaper := make(map[int]float64)
	paperOrder := make([]int, 0, DemotionWindow)
	for _, a := range attempts {
		if a.PaperNumber == nil {
			continue
		}
		if _, seen := latestByPaper[*a.PaperNumber]; seen {
			continue
		}
		latestByPaper[*a.PaperNumber] = a.Accuracy
		paperOrder = append(paperOrder, *a.PaperNumber)
		if len(paperOrder) == DemotionWindow {
			break
		}
	}
	if len(paperOrder) == DemotionWindow && level > model.MinSkillLevel {
		allBelow := true
		for _, p := range paperOrder {
			if latestByPaper[p] >= DemotionPaperAcc {
				allBelow = false
				break
			}
		}
		if allBelow {
			return LevelDecision{NewLevel: level - 1, Direction: "demote"}
		}
	}

	// 升级窗口剔除重刷
	var sum float64
	counted := 0
	for _, a := range attempts {
		if a.IsRetake {
			continue
		}
		sum += a.Accuracy
		counted++
		if counted == PromotionWindow {
			break
		}
	}
	if counted == PromotionWindow && level < model.MaxSkillLevel {
		if sum/float64(PromotionWindow) >= PromotionMeanAcc {
			return LevelDecision{NewLevel: level + 1, Direction: "promote"}
		}
	}

	return LevelDecision{NewLevel: level}
}

// ProfileStore 用户画像的部分字段更新界面
type ProfileStore interface {
	UpdateColumns(id uint, values map[string]interface{}) error
}

// PracticeLedger 等级锚点之后的练习历史查询界面
type PracticeLedger interface {
	PracticeSince(userID uint, area model.SkillArea, level int, since *time.Time) ([]model.Attempt, error)
}

// LevelingService 在练习提交后驱动等级状态机
type LevelingService struct {
	UserRepo    ProfileStore
	AttemptRepo PracticeLedger
}

func NewLevelingService(userRepo ProfileStore, attemptRepo PracticeLedger) *LevelingService {
	return &LevelingService{UserRepo: userRepo, AttemptRepo: attemptRepo}
}

// ApplyPracticeResult 记录一次练习成绩后评估是否升降级。
// 重刷的作答计入账本，但不触发评估。
func (s *LevelingService) ApplyPracticeResult(user *model.User, attempt *model.Attempt) (*LevelDecision, error) {
	if attempt.IsRetake {
		return nil, nil
	}

	levels := model.ParseSkillLevels(user.SkillLevels)
	current := levels.LevelFor(attempt.SkillArea)
	if attempt.Level != current.Level {
		// 旧令牌提交到了已经不是当前等级的卷子，成绩保留但不参与状态机
		return nil, nil
	}

	attempts, err := s.AttemptRepo.PracticeSince(user.ID, attempt.SkillArea, current.Level, current.Since)
	if err != nil {
		return nil, err
	}

	decision := EvaluateLevel(current.Level, attempts)
	if decision.Direction == "" {
		return &decision, nil
	}

	// 等级变更时重置锚点，旧等级的成绩不再进入后续窗口
	now := time.Now()
	levels[attempt.SkillArea] = model.SkillLevel{Level: decision.NewLevel, Since: &now}
	data := levels.Marshal()
	if err := s.UserRepo.UpdateColumns(user.ID, map[string]interface{}{"skill_levels": data}); err != nil {
		return nil, err
	}
	user.SkillLevels = data

	monitoring.LevelTransitions.WithLabelValues(decision.Direction).Inc()
	logger.Log.Info("skill level transition",
		zap.Uint("userID", user.ID),
		zap.String("area", string(attempt.SkillArea)),
		zap.String("direction", decision.Direction),
		zap.Int("newLevel", decision.NewLevel))

	return &decision, nil
}
