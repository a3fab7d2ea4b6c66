package controller

import (
	"net/http"
	"strconv"
	"time"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/repository"
	"toeic_prep_backend/internal/service"
	"toeic_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AssessmentController 摸底测试与阶段测试的发卷、判分入口
type AssessmentController struct {
	PaperService   *service.PaperService
	GradingService *service.GradingService
	UserRepo       *repository.UserRepository
}

func NewAssessmentController(paperService *service.PaperService, gradingService *service.GradingService, userRepo *repository.UserRepository) *AssessmentController {
	return &AssessmentController{PaperService: paperService, GradingService: gradingService, UserRepo: userRepo}
}

// PlacementPaper godoc
// @Summary 获取摸底测试卷
// @Description 随机分配一套摸底卷；持有未过期令牌时返回同一套。已完成摸底的用户返回 403。支持 limit_<分区> 参数按分区截断题量
// @Tags assessment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.PaperResponse}
// @Failure 403 {object} util.Response
// @Router /api/v1/assessment/placement/paper [get]
func (ctl *AssessmentController) PlacementPaper(c *gin.Context) {
	ctl.paper(c, model.KindPlacement)
}

// ProgressPaper godoc
// @Summary 获取阶段测试卷
// @Description 分配编号最小的未完成套卷；全部完成后从头轮转
// @Tags assessment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.PaperResponse}
// @Router /api/v1/assessment/progress/paper [get]
func (ctl *AssessmentController) ProgressPaper(c *gin.Context) {
	ctl.paper(c, model.KindProgress)
}

func (ctl *AssessmentController) paper(c *gin.Context, kind model.AttemptKind) {
	user, ok := ctl.currentUser(c)
	if !ok {
		return
	}

	prior := paperToken(c, "")
	var resp *service.PaperResponse
	var err error
	if kind == model.KindPlacement {
		resp, err = ctl.PaperService.PlacementPaper(c.Request.Context(), user, prior, areaLimits(c))
	} else {
		resp, err = ctl.PaperService.ProgressPaper(c.Request.Context(), user, prior)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	setPaperCookie(c, resp.Token, time.Until(resp.ExpiresAt))
	util.Success(c, resp)
}

// PlacementPreview godoc
// @Summary 摸底测试判分预览
// @Description 按当前作答判分并试算预测分，不落库
// @Tags assessment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.SubmitRequest true "作答"
// @Success 200 {object} util.Response
// @Router /api/v1/assessment/placement/preview [post]
func (ctl *AssessmentController) PlacementPreview(c *gin.Context) {
	ctl.preview(c, model.KindPlacement)
}

// ProgressPreview godoc
// @Summary 阶段测试判分预览
// @Tags assessment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.SubmitRequest true "作答"
// @Success 200 {object} util.Response
// @Router /api/v1/assessment/progress/preview [post]
func (ctl *AssessmentController) ProgressPreview(c *gin.Context) {
	ctl.preview(c, model.KindProgress)
}

func (ctl *AssessmentController) preview(c *gin.Context, kind model.AttemptKind) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ErrorCode(c, http.StatusBadRequest, util.CodeValidation, err.Error())
		return
	}

	grade, score, err := ctl.GradingService.Preview(kind, paperToken(c, req.Token), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, gin.H{"grade": grade, "score": score})
}

// PlacementSubmit godoc
// @Summary 提交摸底测试
// @Description 服务端判分并落库，写入初始技能等级与预测分。一人只能提交一次
// @Tags assessment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.SubmitRequest true "作答"
// @Success 201 {object} util.Response{data=service.SubmitResponse}
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/v1/assessment/placement/submit [post]
func (ctl *AssessmentController) PlacementSubmit(c *gin.Context) {
	ctl.submit(c, model.KindPlacement)
}

// ProgressSubmit godoc
// @Summary 提交阶段测试
// @Description 服务端判分并落库，更新预测分
// @Tags assessment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.SubmitRequest true "作答"
// @Success 201 {object} util.Response{data=service.SubmitResponse}
// @Router /api/v1/assessment/progress/submit [post]
func (ctl *AssessmentController) ProgressSubmit(c *gin.Context) {
	ctl.submit(c, model.KindProgress)
}

func (ctl *AssessmentController) submit(c *gin.Context, kind model.AttemptKind) {
	user, ok := ctl.currentUser(c)
	if !ok {
		return
	}

	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ErrorCode(c, http.StatusBadRequest, util.CodeValidation, err.Error())
		return
	}

	resp, err := ctl.GradingService.Submit(c.Request.Context(), user, kind, paperToken(c, req.Token), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// 交卷成功后作废客户端令牌
	clearPaperCookie(c)
	util.Created(c, resp)
}

// ScorePreview godoc
// @Summary 预测分试算
// @Description 按听力、阅读正确率映射到 10-990 托业量表
// @Tags assessment
// @Produce json
// @Security BearerAuth
// @Param listening query number true "听力正确率 0-1"
// @Param reading query number true "阅读正确率 0-1"
// @Success 200 {object} util.Response{data=service.ScoreTriple}
// @Router /api/v1/score/preview [get]
func (ctl *AssessmentController) ScorePreview(c *gin.Context) {
	listening, errL := strconv.ParseFloat(c.DefaultQuery("listening", "0"), 64)
	reading, errR := strconv.ParseFloat(c.DefaultQuery("reading", "0"), 64)
	if errL != nil || errR != nil || listening < 0 || listening > 1 || reading < 0 || reading > 1 {
		util.ErrorCode(c, http.StatusBadRequest, util.CodeValidation, "accuracies must be within [0,1]")
		return
	}

	util.Success(c, service.PredictScore(listening, reading))
}

// areaLimits 解析 limit_<分区> 形式的分区题量上限
func areaLimits(c *gin.Context) map[model.SkillArea]int {
	limits := make(map[model.SkillArea]int)
	for _, area := range model.AllSkillAreas {
		raw := c.Query("limit_" + string(area))
		if raw == "" {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limits[area] = n
		}
	}
	if len(limits) == 0 {
		return nil
	}
	return limits
}

func (ctl *AssessmentController) currentUser(c *gin.Context) (*model.User, bool) {
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

// paperToken 取分配令牌：Cookie 优先，其次专用请求头，最后请求体
func paperToken(c *gin.Context, bodyToken string) string {
	if cookie, err := c.Cookie(util.PaperCookie); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader(util.PaperHeader); header != "" {
		return header
	}
	return bodyToken
}

func setPaperCookie(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(util.PaperCookie, token, int(ttl.Seconds()), "/", "", false, true)
}

func clearPaperCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(util.PaperCookie, "", -1, "/", "", false, true)
}
