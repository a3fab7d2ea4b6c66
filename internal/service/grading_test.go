package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func question(id uint, area model.SkillArea, answer string) model.Question {
	q := model.Question{SkillArea: area, Answer: answer}
	q.ID = id
	return q
}

func strPtr(s string) *string { return &s }

func TestGradeQuestionsCountsCorrect(t *testing.T) {
	questions := []model.Question{
		question(1, model.AreaPhotographs, "A"),
		question(2, model.AreaPhotographs, "B"),
		question(3, model.AreaIncompleteSentences, "C"),
	}
	answers := []AnswerItem{
		{QuestionID: 1, Answer: strPtr("A")},
		{QuestionID: 2, Answer: strPtr("C")},
		{QuestionID: 3, Answer: strPtr("C")},
	}

	got, err := gradeQuestions(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Correct)
	assert.InDelta(t, 2.0/3.0, got.Accuracy, 1e-9)
	assert.Equal(t, model.AreaStat{Count: 2, Correct: 1, Accuracy: 0.5}, got.AreaStats[model.AreaPhotographs])
	assert.Equal(t, model.AreaStat{Count: 1, Correct: 1, Accuracy: 1}, got.AreaStats[model.AreaIncompleteSentences])
	assert.Len(t, got.Results, 3)
}

func TestGradeQuestionsNullAnswerIsIncorrect(t *testing.T) {
	questions := []model.Question{question(1, model.AreaTalks, "A")}
	answers := []AnswerItem{{QuestionID: 1, Answer: nil}}

	got, err := gradeQuestions(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 0, got.Correct)
	assert.False(t, got.Results[0].IsCorrect)
	assert.Empty(t, got.Results[0].Chosen)
}

func TestGradeQuestionsUnansweredCountsIncorrect(t *testing.T) {
	questions := []model.Question{
		question(1, model.AreaTalks, "A"),
		question(2, model.AreaTalks, "B"),
	}
	answers := []AnswerItem{{QuestionID: 1, Answer: strPtr("A")}}

	got, err := gradeQuestions(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Correct)
}

func TestGradeQuestionsRejectsUnknownIDs(t *testing.T) {
	questions := []model.Question{question(1, model.AreaTalks, "A")}
	answers := []AnswerItem{
		{QuestionID: 1, Answer: strPtr("A")},
		{QuestionID: 99, Answer: strPtr("B")},
	}

	// 卷外题目整卷拒绝，不做部分判分
	got, err := gradeQuestions(questions, answers)
	assert.ErrorIs(t, err, util.ErrMissingItems)
	assert.Nil(t, got)
}

func TestGradeQuestionsEmptyPaper(t *testing.T) {
	got, err := gradeQuestions(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Total)
	assert.Zero(t, got.Accuracy)
}

func TestWeakAreasSortedByAccuracy(t *testing.T) {
	stats := map[model.SkillArea]model.AreaStat{
		model.AreaPhotographs:         {Count: 10, Correct: 3, Accuracy: 0.3},
		model.AreaTalks:               {Count: 10, Correct: 9, Accuracy: 0.9},
		model.AreaIncompleteSentences: {Count: 20, Correct: 11, Accuracy: 0.55},
	}

	got := weakAreas(stats)
	assert.Equal(t, []model.SkillArea{model.AreaPhotographs, model.AreaIncompleteSentences}, got)
}

func TestSectionAccuracyAggregatesByPart(t *testing.T) {
	stats := map[model.SkillArea]model.AreaStat{
		model.AreaPhotographs:         {Count: 10, Correct: 8},
		model.AreaConversations:       {Count: 10, Correct: 6},
		model.AreaIncompleteSentences: {Count: 20, Correct: 10},
	}

	listening, reading := sectionAccuracy(stats)
	assert.InDelta(t, 0.7, listening, 1e-9)
	assert.InDelta(t, 0.5, reading, 1e-9)
}

func TestSectionAccuracyZeroQuestions(t *testing.T) {
	listening, reading := sectionAccuracy(map[model.SkillArea]model.AreaStat{})
	assert.Zero(t, listening)
	assert.Zero(t, reading)
}

func TestPlacementLevelThresholds(t *testing.T) {
	assert.Equal(t, 3, placementLevel(0.70))
	assert.Equal(t, 3, placementLevel(1))
	assert.Equal(t, 2, placementLevel(0.69))
	assert.Equal(t, 2, placementLevel(0.40))
	assert.Equal(t, 1, placementLevel(0.39))
	assert.Equal(t, 1, placementLevel(0))
}

// fakeQuestionSource 内存题库，和真实仓储一样按类型和套卷号过滤
type fakeQuestionSource struct {
	questions []model.Question
}

func (f *fakeQuestionSource) ListByIDs(kind model.AttemptKind, ids []uint, variant *int) ([]model.Question, error) {
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Question
	for _, q := range f.questions {
		if q.Kind != kind || !want[q.ID] {
			continue
		}
		if variant != nil && (q.PaperVariant == nil || *q.PaperVariant != *variant) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeQuestionSource) ListPractice(area model.SkillArea, level int, paperNumber int) ([]model.Question, error) {
	var out []model.Question
	for _, q := range f.questions {
		if q.Kind == model.KindPractice && q.SkillArea == area && q.Level == level &&
			q.PaperNumber != nil && *q.PaperNumber == paperNumber {
			out = append(out, q)
		}
	}
	return out, nil
}

var errDuplicateEntry = errors.New("Error 1062: Duplicate entry '7' for key 'attempts.placement_key'")

type fakeAttemptStore struct {
	created   []*model.Attempt
	practiced map[int]bool
}

func (f *fakeAttemptStore) Create(a *model.Attempt) error {
	if a.PlacementKey != nil {
		for _, prev := range f.created {
			if prev.PlacementKey != nil && *prev.PlacementKey == *a.PlacementKey {
				return errDuplicateEntry
			}
		}
	}
	a.ID = uint(len(f.created) + 1)
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAttemptStore) IsDuplicatePlacement(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

func (f *fakeAttemptStore) HasPracticePaper(userID uint, area model.SkillArea, level int, paperNumber int) (bool, error) {
	return f.practiced[paperNumber], nil
}

func placementQuestion(id uint, variant int, area model.SkillArea, answer string) model.Question {
	q := question(id, area, answer)
	q.Kind = model.KindPlacement
	q.PaperVariant = &variant
	return q
}

func gradingFixture(questions ...model.Question) (*GradingService, *fakeAttemptStore, *fakeProfileStore) {
	attempts := &fakeAttemptStore{}
	profile := &fakeProfileStore{}
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	svc := NewGradingService(&fakeQuestionSource{questions: questions}, attempts, profile, nil, nil, cfg)
	return svc, attempts, profile
}

func signedAssignment(t *testing.T, kind model.AttemptKind, variant int) string {
	t.Helper()
	token, err := util.SignPaperAssignment(util.PaperAssignment{
		Variant:  &variant,
		Kind:     kind,
		IssuedAt: time.Now(),
		TTL:      time.Hour,
	}, testSecret)
	require.NoError(t, err)
	return token
}

// 摸底卷可按分区截断下发，判分必须以学员实际拿到的题为准，
// 不能被整套卷稀释正确率、错报薄弱分区
func TestSubmitGradesOnlyServedQuestions(t *testing.T) {
	svc, attempts, profile := gradingFixture(
		placementQuestion(1, 1, model.AreaPhotographs, "A"),
		placementQuestion(2, 1, model.AreaPhotographs, "B"),
		placementQuestion(3, 1, model.AreaIncompleteSentences, "C"),
		placementQuestion(4, 1, model.AreaIncompleteSentences, "D"),
	)

	user := &model.User{}
	user.ID = 7
	token := signedAssignment(t, model.KindPlacement, 1)

	// 截断后的卷只有 1、3 两题，学员全部答对
	req := &SubmitRequest{Answers: []AnswerItem{
		{QuestionID: 1, Answer: strPtr("A")},
		{QuestionID: 3, Answer: strPtr("C")},
	}}

	resp, err := svc.Submit(context.Background(), user, model.KindPlacement, token, req)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Grade.Total)
	assert.Equal(t, 2, resp.Grade.Correct)
	assert.InDelta(t, 1.0, resp.Grade.Accuracy, 1e-9)
	assert.Empty(t, resp.Grade.WeakAreas)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 990, resp.Score.Overall)

	require.Len(t, attempts.created, 1)
	assert.Equal(t, 2, attempts.created[0].Total)
	require.NotNil(t, attempts.created[0].PlacementKey)
	assert.Equal(t, uint(7), *attempts.created[0].PlacementKey)

	require.Len(t, profile.updates, 1)
	assert.Equal(t, true, profile.updates[0]["placement_done"])
}

func TestPreviewGradesOnlyServedQuestions(t *testing.T) {
	svc, _, _ := gradingFixture(
		placementQuestion(1, 1, model.AreaConversations, "B"),
		placementQuestion(2, 1, model.AreaConversations, "C"),
		placementQuestion(3, 1, model.AreaTextCompletion, "A"),
	)

	token := signedAssignment(t, model.KindPlacement, 1)
	grade, score, err := svc.Preview(model.KindPlacement, token, &SubmitRequest{
		Answers: []AnswerItem{{QuestionID: 2, Answer: strPtr("C")}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, grade.Total)
	assert.InDelta(t, 1.0, grade.Accuracy, 1e-9)
	assert.Empty(t, grade.WeakAreas)
	require.NotNil(t, score)
}

func TestSubmitRejectsQuestionsOutsideAssignment(t *testing.T) {
	svc, attempts, _ := gradingFixture(
		placementQuestion(1, 1, model.AreaPhotographs, "A"),
		placementQuestion(2, 2, model.AreaPhotographs, "B"), // 其他套卷
	)

	user := &model.User{}
	user.ID = 7
	token := signedAssignment(t, model.KindPlacement, 1)

	// 题库不存在的题
	_, err := svc.Submit(context.Background(), user, model.KindPlacement, token, &SubmitRequest{
		Answers: []AnswerItem{
			{QuestionID: 1, Answer: strPtr("A")},
			{QuestionID: 99, Answer: strPtr("B")},
		},
	})
	assert.ErrorIs(t, err, util.ErrMissingItems)

	// 属于别的套卷的题
	_, err = svc.Submit(context.Background(), user, model.KindPlacement, token, &SubmitRequest{
		Answers: []AnswerItem{{QuestionID: 2, Answer: strPtr("B")}},
	})
	assert.ErrorIs(t, err, util.ErrMissingItems)

	assert.Empty(t, attempts.created)
}

func TestSubmitRejectsDuplicateAnswerIDs(t *testing.T) {
	svc, attempts, _ := gradingFixture(placementQuestion(1, 1, model.AreaPhotographs, "A"))

	user := &model.User{}
	user.ID = 7
	token := signedAssignment(t, model.KindPlacement, 1)

	_, err := svc.Submit(context.Background(), user, model.KindPlacement, token, &SubmitRequest{
		Answers: []AnswerItem{
			{QuestionID: 1, Answer: strPtr("A")},
			{QuestionID: 1, Answer: strPtr("B")},
		},
	})
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)
	assert.Empty(t, attempts.created)
}

func TestSubmitPlacementRaceLoserRejected(t *testing.T) {
	svc, attempts, _ := gradingFixture(placementQuestion(1, 1, model.AreaPhotographs, "A"))

	user := &model.User{}
	user.ID = 7
	token := signedAssignment(t, model.KindPlacement, 1)
	req := &SubmitRequest{Answers: []AnswerItem{{QuestionID: 1, Answer: strPtr("A")}}}

	_, err := svc.Submit(context.Background(), user, model.KindPlacement, token, req)
	require.NoError(t, err)
	assert.True(t, user.PlacementDone)

	// 并发提交读到旧画像，绕过前置检查也会被唯一索引拦下
	user.PlacementDone = false
	_, err = svc.Submit(context.Background(), user, model.KindPlacement, token, req)
	assert.ErrorIs(t, err, util.ErrDuplicatePlacement)
	assert.Len(t, attempts.created, 1)
}
