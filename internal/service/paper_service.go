package service

import (
	"context"
	"math/rand"
	"time"
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/repository"
	"toeic_prep_backend/internal/util"
	"toeic_prep_backend/pkg/logger"

	"go.uber.org/zap"
)

// PaperQuestion 下发视图外加素材访问链接
type PaperQuestion struct {
	model.StudentQuestion
	StimulusURL string `json:"stimulusUrl,omitempty"`
}

// PaperResponse 一份已分配的试卷：题目、分配令牌与有效期
type PaperResponse struct {
	Kind      model.AttemptKind `json:"kind"`
	Variant   *int              `json:"variant"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Questions []PaperQuestion   `json:"questions"`
}

// PracticePaperResponse 专项练习卷，不走令牌，按分区/等级/卷号定位
type PracticePaperResponse struct {
	SkillArea   model.SkillArea `json:"skillArea"`
	Level       int             `json:"level"`
	PaperNumber int             `json:"paperNumber"`
	IsRetake    bool            `json:"isRetake"`
	Questions   []PaperQuestion `json:"questions"`
}

// PaperService 负责试卷分配。分配结果签进客户端令牌，服务端不落库。
type PaperService struct {
	QuestionRepo *repository.QuestionRepository
	AttemptRepo  *repository.AttemptRepository
	Storage      *StorageService
	Cfg          *config.Config
}

func NewPaperService(questionRepo *repository.QuestionRepository, attemptRepo *repository.AttemptRepository, storage *StorageService, cfg *config.Config) *PaperService {
	return &PaperService{QuestionRepo: questionRepo, AttemptRepo: attemptRepo, Storage: storage, Cfg: cfg}
}

// PlacementPaper 分配摸底测试卷。已有有效令牌时沿用原分配，保证刷新页面
// 拿到同一套题；没有则随机选一套。已完成摸底的用户直接拒绝。
// perAreaLimits 可按分区截断题量，缩短摸底时长。
func (s *PaperService) PlacementPaper(ctx context.Context, user *model.User, priorToken string, perAreaLimits map[model.SkillArea]int) (*PaperResponse, error) {
	if user.PlacementDone {
		return nil, util.ErrDuplicatePlacement
	}

	assignment := s.reuseOrNil(priorToken, model.KindPlacement)
	if assignment == nil {
		variant, err := s.pickRandomVariant(model.KindPlacement)
		if err != nil {
			return nil, err
		}
		assignment = &util.PaperAssignment{
			Variant:  variant,
			Kind:     model.KindPlacement,
			IssuedAt: time.Now(),
			TTL:      s.Cfg.Assessment.PlacementTTL(),
		}
	}

	return s.buildPaper(ctx, assignment, perAreaLimits)
}

// ProgressPaper 分配阶段测试卷：取编号最小的未完成套卷。
// 全部完成后从最小编号轮转，允许复测。
func (s *PaperService) ProgressPaper(ctx context.Context, user *model.User, priorToken string) (*PaperResponse, error) {
	assignment := s.reuseOrNil(priorToken, model.KindProgress)
	if assignment == nil {
		variant, err := s.pickProgressVariant(user.ID)
		if err != nil {
			return nil, err
		}
		assignment = &util.PaperAssignment{
			Variant:  variant,
			Kind:     model.KindProgress,
			IssuedAt: time.Now(),
			TTL:      s.Cfg.Assessment.ProgressTTL(),
		}
	}

	return s.buildPaper(ctx, assignment, nil)
}

// PracticePaperNumber 单套练习卷的编号与完成状态
type PracticePaperNumber struct {
	PaperNumber int  `json:"paperNumber"`
	Done        bool `json:"done"`
}

// PracticePapers 列出用户当前等级下可选的练习卷及完成状态
func (s *PaperService) PracticePapers(user *model.User, area model.SkillArea) (int, []PracticePaperNumber, error) {
	if !area.Valid() {
		return 0, nil, util.ErrInvalidSkillArea
	}

	level := model.ParseSkillLevels(user.SkillLevels).LevelFor(area).Level
	papers, err := s.QuestionRepo.ListPracticePapers(area, level)
	if err != nil {
		return 0, nil, err
	}

	out := make([]PracticePaperNumber, 0, len(papers))
	for _, p := range papers {
		done, err := s.AttemptRepo.HasPracticePaper(user.ID, area, level, p)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, PracticePaperNumber{PaperNumber: p, Done: done})
	}
	return level, out, nil
}

// PracticePaper 按用户当前等级发练习卷。requested 非 nil 时取指定卷，
// 否则取下一套未做过的卷；全部做完则回到编号最小的卷，提交时记为重刷。
func (s *PaperService) PracticePaper(ctx context.Context, user *model.User, area model.SkillArea, requested *int) (*PracticePaperResponse, error) {
	if !area.Valid() {
		return nil, util.ErrInvalidSkillArea
	}

	level := model.ParseSkillLevels(user.SkillLevels).LevelFor(area).Level

	papers, err := s.QuestionRepo.ListPracticePapers(area, level)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, util.ErrNoQuestions
	}

	var paperNumber int
	var isRetake bool
	if requested != nil {
		found := false
		for _, p := range papers {
			if p == *requested {
				found = true
				break
			}
		}
		if !found {
			return nil, util.ErrNoQuestions
		}
		paperNumber = *requested
		isRetake, err = s.AttemptRepo.HasPracticePaper(user.ID, area, level, paperNumber)
		if err != nil {
			return nil, err
		}
	} else {
		paperNumber = papers[0]
		isRetake = true
		for _, p := range papers {
			done, err := s.AttemptRepo.HasPracticePaper(user.ID, area, level, p)
			if err != nil {
				return nil, err
			}
			if !done {
				paperNumber = p
				isRetake = false
				break
			}
		}
	}

	questions, err := s.QuestionRepo.ListPractice(area, level, paperNumber)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, util.ErrNoQuestions
	}

	return &PracticePaperResponse{
		SkillArea:   area,
		Level:       level,
		PaperNumber: paperNumber,
		IsRetake:    isRetake,
		Questions:   s.studentViews(ctx, questions),
	}, nil
}

// reuseOrNil 校验客户端带来的旧令牌，类型匹配且未过期则沿用
func (s *PaperService) reuseOrNil(priorToken string, kind model.AttemptKind) *util.PaperAssignment {
	if priorToken == "" {
		return nil
	}
	assignment, err := util.ParsePaperAssignment(priorToken, s.Cfg.JWT.Secret)
	if err != nil || assignment.Kind != kind || assignment.Expired(time.Now()) {
		return nil
	}
	return assignment
}

// pickRandomVariant 随机选套卷。题库未分套时返回 nil，走降级路径。
func (s *PaperService) pickRandomVariant(kind model.AttemptKind) (*int, error) {
	variants, err := s.QuestionRepo.ListVariants(kind)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		logger.Log.Warn("question bank has no paper variants, serving unsegmented paper", zap.String("kind", string(kind)))
		return nil, nil
	}
	v := variants[rand.Intn(len(variants))]
	return &v, nil
}

func (s *PaperService) pickProgressVariant(userID uint) (*int, error) {
	variants, err := s.QuestionRepo.ListVariants(model.KindProgress)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, nil
	}

	completed, err := s.AttemptRepo.CompletedProgressVariants(userID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(completed))
	for _, v := range completed {
		done[v] = true
	}

	for _, v := range variants {
		if !done[v] {
			variant := v
			return &variant, nil
		}
	}
	variant := variants[0]
	return &variant, nil
}

func (s *PaperService) buildPaper(ctx context.Context, assignment *util.PaperAssignment, perAreaLimits map[model.SkillArea]int) (*PaperResponse, error) {
	questions, err := s.QuestionRepo.ListByKindVariant(assignment.Kind, assignment.Variant, perAreaLimits)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, util.ErrNoQuestions
	}

	token, err := util.SignPaperAssignment(*assignment, s.Cfg.JWT.Secret)
	if err != nil {
		return nil, err
	}

	return &PaperResponse{
		Kind:      assignment.Kind,
		Variant:   assignment.Variant,
		Token:     token,
		ExpiresAt: assignment.IssuedAt.Add(assignment.TTL),
		Questions: s.studentViews(ctx, questions),
	}, nil
}

func (s *PaperService) studentViews(ctx context.Context, questions []model.Question) []PaperQuestion {
	out := make([]PaperQuestion, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		out = append(out, PaperQuestion{
			StudentQuestion: q.ToStudentView(),
			StimulusURL:     s.Storage.StimulusURL(ctx, q.StimulusKey),
		})
	}
	return out
}
