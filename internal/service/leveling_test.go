package service

import (
	"os"
	"sort"
	"testing"
	"time"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// practiceAttempt 构造一条练习记录。列表按新在前排列，
// offset 越小表示越新。
func practiceAttempt(paper int, accuracy float64, retake bool, offset int) model.Attempt {
	p := paper
	return model.Attempt{
		Kind:        model.KindPractice,
		SkillArea:   model.AreaConversations,
		Level:       2,
		PaperNumber: &p,
		Accuracy:    accuracy,
		IsRetake:    retake,
		SubmittedAt: time.Now().Add(-time.Duration(offset) * time.Hour),
	}
}

func TestEvaluateLevelPromotes(t *testing.T) {
	attempts := []model.Attempt{
		practiceAttempt(3, 0.9, false, 0),
		practiceAttempt(2, 0.75, false, 1),
		practiceAttempt(1, 0.8, false, 2),
	}

	got := EvaluateLevel(2, attempts)
	assert.Equal(t, "promote", got.Direction)
	assert.Equal(t, 3, got.NewLevel)
}

func TestEvaluateLevelPartialWindowNoOp(t *testing.T) {
	attempts := []model.Attempt{
		practiceAttempt(2, 0.95, false, 0),
		practiceAttempt(1, 0.9, false, 1),
	}

	got := EvaluateLevel(2, attempts)
	assert.Empty(t, got.Direction)
	assert.Equal(t, 2, got.NewLevel)
}

func TestEvaluateLevelPromotionNeedsMeanSeventy(t *testing.T) {
	attempts := []model.Attempt{
		practiceAttempt(3, 0.69, false, 0),
		practiceAttempt(2, 0.70, false, 1),
		practiceAttempt(1, 0.70, false, 2),
	}

	got := EvaluateLevel(2, attempts)
	assert.Empty(t, got.Direction)
}

func TestEvaluateLevelDemotes(t *testing.T) {
	attempts := []model.Attempt{
		practiceAttempt(3, 0.3, false, 0),
		practiceAttempt(2, 0.45, false, 1),
		practiceAttempt(1, 0.49, false, 2),
	}

	got := EvaluateLevel(2, attempts)
	assert.Equal(t, "demote", got.Direction)
	assert.Equal(t, 1, got.NewLevel)
}

func TestEvaluateLevelDemotionNeedsThreeDistinctPapers(t *testing.T) {
	// 五次失败但只覆盖两套卷，不足以降级
	attempts := []model.Attempt{
		practiceAttempt(2, 0.2, true, 0),
		practiceAttempt(1, 0.3, true, 1),
		practiceAttempt(2, 0.25, true, 2),
		practiceAttempt(1, 0.1, false, 3),
		practiceAttempt(2, 0.4, false, 4),
	}

	got := EvaluateLevel(2, attempts)
	assert.Empty(t, got.Direction)
	assert.Equal(t, 2, got.NewLevel)
}

func TestEvaluateLevelDemotionUsesLatestPerPaper(t *testing.T) {
	// 每套卷的旧成绩很差，但最新一次都及格了
	attempts := []model.Attempt{
		practiceAttempt(3, 0.6, true, 0),
		practiceAttempt(2, 0.55, true, 1),
		practiceAttempt(1, 0.5, true, 2),
		practiceAttempt(3, 0.1, false, 3),
		practiceAttempt(2, 0.2, false, 4),
		practiceAttempt(1, 0.15, false, 5),
	}

	got := EvaluateLevel(2, attempts)
	assert.NotEqual(t, "demote", got.Direction)
}

func TestEvaluateLevelPromotionExcludesRetakes(t *testing.T) {
	// 最近两条是高分重刷，不应把升级窗口凑满
	attempts := []model.Attempt{
		practiceAttempt(1, 0.95, true, 0),
		practiceAttempt(2, 0.9, true, 1),
		practiceAttempt(3, 0.85, false, 2),
		practiceAttempt(2, 0.6, false, 3),
		practiceAttempt(1, 0.5, false, 4),
	}

	got := EvaluateLevel(2, attempts)
	// 非重刷窗口为 0.85/0.6/0.5，均值不到 0.7
	assert.Empty(t, got.Direction)
}

func TestEvaluateLevelDemotionWinsOverPromotion(t *testing.T) {
	// 每套卷的最新成绩（重刷）都不及格，尽管非重刷窗口均分很高
	attempts := []model.Attempt{
		practiceAttempt(1, 0.4, true, 0),
		practiceAttempt(2, 0.45, true, 1),
		practiceAttempt(3, 0.3, true, 2),
		practiceAttempt(1, 0.9, false, 3),
		practiceAttempt(2, 0.8, false, 4),
		practiceAttempt(3, 0.85, false, 5),
	}

	got := EvaluateLevel(2, attempts)
	assert.Equal(t, "demote", got.Direction)
	assert.Equal(t, 1, got.NewLevel)
}

func TestEvaluateLevelRespectsBounds(t *testing.T) {
	failing := []model.Attempt{
		practiceAttempt(3, 0.1, false, 0),
		practiceAttempt(2, 0.2, false, 1),
		practiceAttempt(1, 0.3, false, 2),
	}
	got := EvaluateLevel(model.MinSkillLevel, failing)
	assert.Empty(t, got.Direction)
	assert.Equal(t, model.MinSkillLevel, got.NewLevel)

	acing := []model.Attempt{
		practiceAttempt(3, 0.9, false, 0),
		practiceAttempt(2, 0.95, false, 1),
		practiceAttempt(1, 1.0, false, 2),
	}
	got = EvaluateLevel(model.MaxSkillLevel, acing)
	assert.Empty(t, got.Direction)
	assert.Equal(t, model.MaxSkillLevel, got.NewLevel)
}

type fakeProfileStore struct {
	updates []map[string]interface{}
}

func (f *fakeProfileStore) UpdateColumns(id uint, values map[string]interface{}) error {
	f.updates = append(f.updates, values)
	return nil
}

// fakePracticeLedger 内存账本，和真实仓储一样按锚点过滤、新在前返回
type fakePracticeLedger struct {
	attempts []model.Attempt
}

func (f *fakePracticeLedger) PracticeSince(userID uint, area model.SkillArea, level int, since *time.Time) ([]model.Attempt, error) {
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.UserID != userID || a.SkillArea != area || a.Level != level {
			continue
		}
		if since != nil && a.SubmittedAt.Before(*since) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func levelingFixture() (*LevelingService, *fakePracticeLedger, *fakeProfileStore) {
	ledger := &fakePracticeLedger{}
	profile := &fakeProfileStore{}
	return NewLevelingService(profile, ledger), ledger, profile
}

func ledgerAttempt(userID uint, paper int, accuracy float64, level int, at time.Time) model.Attempt {
	a := practiceAttempt(paper, accuracy, false, 0)
	a.UserID = userID
	a.Level = level
	a.SubmittedAt = at
	return a
}

func TestApplyPracticeResultPromotesAndResetsAnchor(t *testing.T) {
	svc, ledger, profile := levelingFixture()

	user := &model.User{}
	user.ID = 7
	user.SkillLevels = model.SkillLevelMap{model.AreaConversations: {Level: 2}}.Marshal()

	old := time.Now().Add(-time.Hour)
	ledger.attempts = append(ledger.attempts,
		ledgerAttempt(7, 1, 0.8, 2, old),
		ledgerAttempt(7, 2, 0.75, 2, old.Add(time.Minute)),
	)

	trigger := ledgerAttempt(7, 3, 0.9, 2, time.Now())
	ledger.attempts = append(ledger.attempts, trigger)

	decision, err := svc.ApplyPracticeResult(user, &trigger)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, "promote", decision.Direction)
	assert.Equal(t, 3, decision.NewLevel)
	require.Len(t, profile.updates, 1)

	got := model.ParseSkillLevels(user.SkillLevels).LevelFor(model.AreaConversations)
	assert.Equal(t, 3, got.Level)
	require.NotNil(t, got.Since)

	// 锚点已重置：新等级下锚点之前的高分成绩凑不满窗口，
	// 同一批证据不能再次触发升级
	ledger.attempts = append(ledger.attempts,
		ledgerAttempt(7, 1, 0.95, 3, old),
		ledgerAttempt(7, 2, 0.95, 3, old.Add(time.Minute)),
	)
	next := ledgerAttempt(7, 1, 0.95, 3, time.Now())
	ledger.attempts = append(ledger.attempts, next)

	decision, err = svc.ApplyPracticeResult(user, &next)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Empty(t, decision.Direction)
	assert.Len(t, profile.updates, 1)
	assert.Equal(t, 3, model.ParseSkillLevels(user.SkillLevels).LevelFor(model.AreaConversations).Level)
}

func TestApplyPracticeResultSkipsRetakes(t *testing.T) {
	svc, ledger, profile := levelingFixture()

	user := &model.User{}
	user.ID = 7
	user.SkillLevels = model.SkillLevelMap{model.AreaConversations: {Level: 2}}.Marshal()

	// 三条非重刷高分已够升级窗口，但重刷提交不触发评估
	old := time.Now().Add(-time.Hour)
	ledger.attempts = append(ledger.attempts,
		ledgerAttempt(7, 1, 0.9, 2, old),
		ledgerAttempt(7, 2, 0.9, 2, old.Add(time.Minute)),
		ledgerAttempt(7, 3, 0.9, 2, old.Add(2*time.Minute)),
	)

	retake := ledgerAttempt(7, 1, 0.95, 2, time.Now())
	retake.IsRetake = true
	ledger.attempts = append(ledger.attempts, retake)

	decision, err := svc.ApplyPracticeResult(user, &retake)
	require.NoError(t, err)
	assert.Nil(t, decision)
	assert.Empty(t, profile.updates)
	assert.Equal(t, 2, model.ParseSkillLevels(user.SkillLevels).LevelFor(model.AreaConversations).Level)
}

func TestApplyPracticeResultIgnoresStaleLevelSubmissions(t *testing.T) {
	svc, ledger, profile := levelingFixture()

	user := &model.User{}
	user.ID = 7
	user.SkillLevels = model.SkillLevelMap{model.AreaConversations: {Level: 2}}.Marshal()

	// 旧客户端拿着一级卷子提交，成绩入账但不驱动状态机
	old := time.Now().Add(-time.Hour)
	ledger.attempts = append(ledger.attempts,
		ledgerAttempt(7, 1, 0.9, 1, old),
		ledgerAttempt(7, 2, 0.9, 1, old.Add(time.Minute)),
	)
	stale := ledgerAttempt(7, 3, 0.9, 1, time.Now())
	ledger.attempts = append(ledger.attempts, stale)

	decision, err := svc.ApplyPracticeResult(user, &stale)
	require.NoError(t, err)
	assert.Nil(t, decision)
	assert.Empty(t, profile.updates)
}

func TestEvaluateLevelSkipsAttemptsWithoutPaperNumber(t *testing.T) {
	noPaper := model.Attempt{
		Kind:        model.KindPractice,
		SkillArea:   model.AreaConversations,
		Level:       2,
		Accuracy:    0.1,
		SubmittedAt: time.Now(),
	}
	attempts := []model.Attempt{
		noPaper,
		practiceAttempt(2, 0.2, false, 1),
		practiceAttempt(1, 0.3, false, 2),
	}

	got := EvaluateLevel(2, attempts)
	// 缺卷号的记录不计入降级分组，distinct 卷数只有 2
	assert.NotEqual(t, "demote", got.Direction)
}
