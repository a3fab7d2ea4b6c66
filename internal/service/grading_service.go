package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/internal/event"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/util"
	"toeic_prep_backend/pkg/logger"
	"toeic_prep_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// 摸底定级与薄弱分区阈值
const (
	PlacementLevelHighAcc = 0.70 // 达到则定 3 级
	PlacementLevelMidAcc  = 0.40 // 达到则定 2 级，否则 1 级
	WeakAreaAcc           = 0.60
)

// AnswerItem 单题作答。Answer 为 null 表示放弃作答，按错误计
type AnswerItem struct {
	QuestionID uint    `json:"questionId" binding:"required"`
	Answer     *string `json:"answer"`
}

// SubmitRequest 摸底/阶段测试的提交体。令牌优先从 Cookie 取，兼容请求体。
// Variant 是客户端声明的套卷号，只用于对账，判分一律以令牌为准。
type SubmitRequest struct {
	Token   string       `json:"token"`
	Variant *int         `json:"variant"`
	Answers []AnswerItem `json:"answers" binding:"required,min=1,dive"`
	TimeSec int          `json:"timeSec"`
}

// PracticeSubmitRequest 专项练习的提交体
type PracticeSubmitRequest struct {
	SkillArea   model.SkillArea `json:"skillArea" binding:"required"`
	PaperNumber int             `json:"paperNumber" binding:"required"`
	Answers     []AnswerItem    `json:"answers" binding:"required,min=1,dive"`
	TimeSec     int             `json:"timeSec"`
}

// GradeResult 判分明细，预览与落库共用
type GradeResult struct {
	Total     int                                `json:"total"`
	Correct   int                                `json:"correct"`
	Accuracy  float64                            `json:"accuracy"`
	AreaStats map[model.SkillArea]model.AreaStat `json:"areaStats"`
	WeakAreas []model.SkillArea                  `json:"weakAreas"`
	Results   []model.QuestionResult             `json:"results"`
}

// SubmitResponse 提交后的完整反馈
type SubmitResponse struct {
	AttemptID uint              `json:"attemptId"`
	Kind      model.AttemptKind `json:"kind"`
	Grade     GradeResult       `json:"grade"`
	Score     *ScoreTriple      `json:"score,omitempty"`
	Leveling  *LevelDecision    `json:"leveling,omitempty"`
	IsRetake  bool              `json:"isRetake,omitempty"`
}

// QuestionResolver 判分所需的题库读取界面
type QuestionResolver interface {
	ListByIDs(kind model.AttemptKind, ids []uint, variant *int) ([]model.Question, error)
	ListPractice(area model.SkillArea, level int, paperNumber int) ([]model.Question, error)
}

// AttemptRecorder 作答账本的写入界面
type AttemptRecorder interface {
	Create(attempt *model.Attempt) error
	IsDuplicatePlacement(err error) bool
	HasPracticePaper(userID uint, area model.SkillArea, level int, paperNumber int) (bool, error)
}

// GradingService 服务端判分与成绩落库。答案只存在服务端，
// 判分永远不信任客户端上送的对错标记。
type GradingService struct {
	QuestionRepo QuestionResolver
	AttemptRepo  AttemptRecorder
	UserRepo     ProfileStore
	Leveling     *LevelingService
	Publisher    *event.Publisher
	Cfg          *config.Config
}

func NewGradingService(
	questionRepo QuestionResolver,
	attemptRepo AttemptRecorder,
	userRepo ProfileStore,
	leveling *LevelingService,
	publisher *event.Publisher,
	cfg *config.Config,
) *GradingService {
	return &GradingService{
		QuestionRepo: questionRepo,
		AttemptRepo:  attemptRepo,
		UserRepo:     userRepo,
		Leveling:     leveling,
		Publisher:    publisher,
		Cfg:          cfg,
	}
}

// gradeQuestions 纯函数判分。questions 是本次判分的权威题目集；
// answers 里出现卷外题目视为非法（整卷拒绝，不做部分判分），
// 卷内未作答的题按错误计。
func gradeQuestions(questions []model.Question, answers []AnswerItem) (*GradeResult, error) {
	byID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	chosen := make(map[uint]string, len(answers))
	for _, a := range answers {
		if _, ok := byID[a.QuestionID]; !ok {
			return nil, util.ErrMissingItems
		}
		if a.Answer != nil {
			chosen[a.QuestionID] = *a.Answer
		}
	}

	result := &GradeResult{
		Total:     len(questions),
		AreaStats: make(map[model.SkillArea]model.AreaStat),
		Results:   make([]model.QuestionResult, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		picked, answered := chosen[q.ID]
		isCorrect := answered && picked == q.Answer

		stat := result.AreaStats[q.SkillArea]
		stat.Count++
		if isCorrect {
			stat.Correct++
			result.Correct++
		}
		result.AreaStats[q.SkillArea] = stat

		result.Results = append(result.Results, model.QuestionResult{
			QuestionID: q.ID,
			Chosen:     picked,
			Correct:    q.Answer,
			IsCorrect:  isCorrect,
		})
	}

	for area, stat := range result.AreaStats {
		if stat.Count > 0 {
			stat.Accuracy = float64(stat.Correct) / float64(stat.Count)
		}
		result.AreaStats[area] = stat
	}
	if result.Total > 0 {
		result.Accuracy = float64(result.Correct) / float64(result.Total)
	}
	result.WeakAreas = weakAreas(result.AreaStats)

	return result, nil
}

// weakAreas 按正确率升序列出低于阈值的分区
func weakAreas(stats map[model.SkillArea]model.AreaStat) []model.SkillArea {
	out := make([]model.SkillArea, 0, len(stats))
	for area, stat := range stats {
		if stat.Accuracy < WeakAreaAcc {
			out = append(out, area)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := stats[out[i]], stats[out[j]]
		if si.Accuracy != sj.Accuracy {
			return si.Accuracy < sj.Accuracy
		}
		return out[i] < out[j]
	})
	return out
}

// sectionAccuracy 把分区统计聚合成听力、阅读两段正确率
func sectionAccuracy(stats map[model.SkillArea]model.AreaStat) (listening, reading float64) {
	var lCount, lCorrect, rCount, rCorrect int
	for area, stat := range stats {
		if area.Section() == model.SectionListening {
			lCount += stat.Count
			lCorrect += stat.Correct
		} else {
			rCount += stat.Count
			rCorrect += stat.Correct
		}
	}
	if lCount > 0 {
		listening = float64(lCorrect) / float64(lCount)
	}
	if rCount > 0 {
		reading = float64(rCorrect) / float64(rCount)
	}
	return listening, reading
}

// Preview 判分但不落库，供交卷前的自查
func (s *GradingService) Preview(kind model.AttemptKind, token string, req *SubmitRequest) (*GradeResult, *ScoreTriple, error) {
	questions, assignment, err := s.resolveSubmitted(kind, token, req.Answers)
	if err != nil {
		return nil, nil, err
	}
	reconcileVariant(assignment, req.Variant)
	grade, err := gradeQuestions(questions, req.Answers)
	if err != nil {
		return nil, nil, err
	}
	listening, reading := sectionAccuracy(grade.AreaStats)
	score := PredictScore(listening, reading)
	return grade, &score, nil
}

// Submit 摸底/阶段测试交卷：判分、落账本、更新用户画像。
// 摸底测试由唯一索引保证一人一次，并发提交先写者胜出。
func (s *GradingService) Submit(ctx context.Context, user *model.User, kind model.AttemptKind, token string, req *SubmitRequest) (*SubmitResponse, error) {
	if kind == model.KindPlacement && user.PlacementDone {
		return nil, util.ErrDuplicatePlacement
	}

	questions, assignment, err := s.resolveSubmitted(kind, token, req.Answers)
	if err != nil {
		return nil, err
	}
	reconcileVariant(assignment, req.Variant)

	grade, err := gradeQuestions(questions, req.Answers)
	if err != nil {
		return nil, err
	}

	listening, reading := sectionAccuracy(grade.AreaStats)
	score := PredictScore(listening, reading)

	attempt := &model.Attempt{
		UserID:          user.ID,
		Kind:            kind,
		PaperVariant:    assignment.Variant,
		Total:           grade.Total,
		Correct:         grade.Correct,
		Accuracy:        grade.Accuracy,
		SectionStats:    mustJSON(grade.AreaStats),
		WeakAreas:       mustJSON(grade.WeakAreas),
		QuestionResults: mustJSON(grade.Results),
		ScoreOverall:    score.Overall,
		ScoreListening:  score.Listening,
		ScoreReading:    score.Reading,
		TimeSec:         req.TimeSec,
		SubmittedAt:     time.Now(),
	}
	if kind == model.KindPlacement {
		key := user.ID
		attempt.PlacementKey = &key
	}

	if err := s.AttemptRepo.Create(attempt); err != nil {
		if kind == model.KindPlacement && s.AttemptRepo.IsDuplicatePlacement(err) {
			return nil, util.ErrDuplicatePlacement
		}
		return nil, err
	}

	if err := s.updateProfile(user, kind, grade, score, attempt.SubmittedAt); err != nil {
		// 账本已写入，画像更新失败只记日志，下次提交可修复
		logger.Log.Error("update user profile after grading failed",
			zap.Uint("userID", user.ID), zap.Uint("attemptID", attempt.ID), zap.Error(err))
	}

	s.afterGraded(user.ID, attempt)

	return &SubmitResponse{
		AttemptID: attempt.ID,
		Kind:      kind,
		Grade:     *grade,
		Score:     &score,
	}, nil
}

// SubmitPractice 专项练习交卷：判分、落账本、驱动升降级状态机
func (s *GradingService) SubmitPractice(ctx context.Context, user *model.User, req *PracticeSubmitRequest) (*SubmitResponse, error) {
	if !req.SkillArea.Valid() {
		return nil, util.ErrInvalidSkillArea
	}

	level := model.ParseSkillLevels(user.SkillLevels).LevelFor(req.SkillArea).Level

	questions, err := s.QuestionRepo.ListPractice(req.SkillArea, level, req.PaperNumber)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, util.ErrNoQuestions
	}

	grade, err := gradeQuestions(questions, req.Answers)
	if err != nil {
		return nil, err
	}

	isRetake, err := s.AttemptRepo.HasPracticePaper(user.ID, req.SkillArea, level, req.PaperNumber)
	if err != nil {
		return nil, err
	}

	paperNumber := req.PaperNumber
	attempt := &model.Attempt{
		UserID:          user.ID,
		Kind:            model.KindPractice,
		SkillArea:       req.SkillArea,
		Level:           level,
		PaperNumber:     &paperNumber,
		Total:           grade.Total,
		Correct:         grade.Correct,
		Accuracy:        grade.Accuracy,
		SectionStats:    mustJSON(grade.AreaStats),
		WeakAreas:       mustJSON(grade.WeakAreas),
		QuestionResults: mustJSON(grade.Results),
		TimeSec:         req.TimeSec,
		SubmittedAt:     time.Now(),
		IsRetake:        isRetake,
	}
	if err := s.AttemptRepo.Create(attempt); err != nil {
		return nil, err
	}

	decision, err := s.Leveling.ApplyPracticeResult(user, attempt)
	if err != nil {
		logger.Log.Error("leveling evaluation failed",
			zap.Uint("userID", user.ID), zap.Uint("attemptID", attempt.ID), zap.Error(err))
	}

	s.afterGraded(user.ID, attempt)

	return &SubmitResponse{
		AttemptID: attempt.ID,
		Kind:      model.KindPractice,
		Grade:     *grade,
		Leveling:  decision,
		IsRetake:  isRetake,
	}, nil
}

// reconcileVariant 对账客户端声明的套卷号。不一致只记告警，服务端令牌胜出。
func reconcileVariant(assignment *util.PaperAssignment, claimed *int) {
	if claimed == nil || assignment.Variant == nil {
		return
	}
	if *claimed != *assignment.Variant {
		logger.Log.Warn("client variant claim mismatches assignment token",
			zap.Int("claimed", *claimed),
			zap.Int("assigned", *assignment.Variant))
	}
}

// resolveSubmitted 从令牌还原分配，再按提交的题目 ID 在套卷范围内拉取
// 标准答案。只判学员实际拿到的题：按分区截断过的卷子以提交集为准，
// 不会被整套卷稀释正确率。任何 ID 落在套卷之外都整卷拒绝。
func (s *GradingService) resolveSubmitted(kind model.AttemptKind, token string, answers []AnswerItem) ([]model.Question, *util.PaperAssignment, error) {
	if token == "" {
		return nil, nil, util.ErrStaleAssignment
	}
	assignment, err := util.ParsePaperAssignment(token, s.Cfg.JWT.Secret)
	if err != nil {
		return nil, nil, util.ErrStaleAssignment
	}
	if assignment.Kind != kind || assignment.Expired(time.Now()) {
		return nil, nil, util.ErrStaleAssignment
	}

	ids := make([]uint, 0, len(answers))
	seen := make(map[uint]bool, len(answers))
	for _, a := range answers {
		if a.QuestionID == 0 || seen[a.QuestionID] {
			return nil, nil, util.ErrInvalidSubmission
		}
		seen[a.QuestionID] = true
		ids = append(ids, a.QuestionID)
	}

	questions, err := s.QuestionRepo.ListByIDs(kind, ids, assignment.Variant)
	if err != nil {
		return nil, nil, err
	}
	if len(questions) != len(ids) {
		return nil, nil, util.ErrMissingItems
	}
	return questions, assignment, nil
}

// updateProfile 按测验类型更新用户画像
func (s *GradingService) updateProfile(user *model.User, kind model.AttemptKind, grade *GradeResult, score ScoreTriple, at time.Time) error {
	values := map[string]interface{}{
		"score_overall":   score.Overall,
		"score_listening": score.Listening,
		"score_reading":   score.Reading,
	}

	if kind == model.KindPlacement {
		levels := make(model.SkillLevelMap, len(model.AllSkillAreas))
		since := at
		for _, area := range model.AllSkillAreas {
			levels[area] = model.SkillLevel{Level: placementLevel(grade.AreaStats[area].Accuracy), Since: &since}
		}
		values["skill_levels"] = levels.Marshal()
		values["placement_done"] = true
		values["placement_at"] = at

		user.SkillLevels = levels.Marshal()
		user.PlacementDone = true
		user.PlacementAt = &at
	}

	user.ScoreOverall = score.Overall
	user.ScoreListening = score.Listening
	user.ScoreReading = score.Reading

	return s.UserRepo.UpdateColumns(user.ID, values)
}

// placementLevel 摸底正确率到初始等级的映射
func placementLevel(accuracy float64) int {
	switch {
	case accuracy >= PlacementLevelHighAcc:
		return 3
	case accuracy >= PlacementLevelMidAcc:
		return 2
	default:
		return 1
	}
}

// afterGraded 异步旁路：打点并向下游投递事件，失败不影响请求
func (s *GradingService) afterGraded(userID uint, attempt *model.Attempt) {
	monitoring.AttemptsGraded.WithLabelValues(string(attempt.Kind)).Inc()

	if s.Publisher == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("event publish panic", zap.Any("recover", r))
			}
		}()
		payload := map[string]interface{}{
			"userId":    userID,
			"kind":      attempt.Kind,
			"attemptId": attempt.ID,
		}
		if err := s.Publisher.Publish("attempt.graded."+string(attempt.Kind), payload); err != nil {
			logger.Log.Warn("event publish failed", zap.Error(err))
		}
	}()
}

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
