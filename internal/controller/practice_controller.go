package controller

import (
	"net/http"
	"strconv"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/repository"
	"toeic_prep_backend/internal/service"
	"toeic_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// PracticeController 专项练习的发卷与交卷入口
type PracticeController struct {
	PaperService   *service.PaperService
	GradingService *service.GradingService
	UserRepo       *repository.UserRepository
}

func NewPracticeController(paperService *service.PaperService, gradingService *service.GradingService, userRepo *repository.UserRepository) *PracticeController {
	return &PracticeController{PaperService: paperService, GradingService: gradingService, UserRepo: userRepo}
}

// Papers godoc
// @Summary 可选练习卷列表
// @Description 返回用户当前等级下某分区的练习卷编号与完成状态
// @Tags practice
// @Produce json
// @Security BearerAuth
// @Param skillArea query string true "技能分区"
// @Success 200 {object} util.Response
// @Router /api/v1/practice/papers [get]
func (ctl *PracticeController) Papers(c *gin.Context) {
	user, ok := ctl.currentUser(c)
	if !ok {
		return
	}

	area := model.SkillArea(c.Query("skillArea"))
	level, papers, err := ctl.PaperService.PracticePapers(user, area)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, gin.H{"skillArea": area, "level": level, "papers": papers})
}

// Paper godoc
// @Summary 获取专项练习卷
// @Description 默认取下一套未做过的卷，全部做完后回到第一套按重刷处理；paper 参数可指定卷号
// @Tags practice
// @Produce json
// @Security BearerAuth
// @Param skillArea query string true "技能分区" Enums(photographs, question_response, conversations, talks, incomplete_sentences, text_completion, reading_comprehension)
// @Param paper query int false "指定练习卷编号"
// @Success 200 {object} util.Response{data=service.PracticePaperResponse}
// @Failure 404 {object} util.Response
// @Router /api/v1/practice/paper [get]
func (ctl *PracticeController) Paper(c *gin.Context) {
	user, ok := ctl.currentUser(c)
	if !ok {
		return
	}

	area := model.SkillArea(c.Query("skillArea"))

	var requested *int
	if raw := c.Query("paper"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			util.ErrorCode(c, http.StatusBadRequest, util.CodeValidation, "invalid paper number")
			return
		}
		requested = &n
	}

	resp, err := ctl.PaperService.PracticePaper(c.Request.Context(), user, area, requested)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, resp)
}

// Submit godoc
// @Summary 提交专项练习
// @Description 服务端判分落库，并按升降级规则评估技能等级。重刷计入历史但不触发评估
// @Tags practice
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.PracticeSubmitRequest true "作答"
// @Success 201 {object} util.Response{data=service.SubmitResponse}
// @Failure 422 {object} util.Response
// @Router /api/v1/practice/submit [post]
func (ctl *PracticeController) Submit(c *gin.Context) {
	user, ok := ctl.currentUser(c)
	if !ok {
		return
	}

	var req service.PracticeSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ErrorCode(c, http.StatusBadRequest, util.CodeValidation, err.Error())
		return
	}

	resp, err := ctl.GradingService.SubmitPractice(c.Request.Context(), user, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Created(c, resp)
}

func (ctl *PracticeController) currentUser(c *gin.Context) (*model.User, bool) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return nil, false
	}
	user, err := ctl.UserRepo.FindByID(claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return user, true
}
