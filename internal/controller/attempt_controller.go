package controller

import (
	"strconv"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/service"
	"toeic_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AttemptController 作答历史的查询与管理入口
type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

// History godoc
// @Summary 作答历史
// @Description 分页返回当前用户的作答摘要，可按测验类型过滤
// @Tags attempt
// @Produce json
// @Security BearerAuth
// @Param kind query string false "测验类型" Enums(placement, progress, practice)
// @Param skillArea query string false "技能分区（仅专项练习）"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/v1/attempts [get]
func (ctl *AttemptController) History(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	kind := model.AttemptKind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		util.BadRequest(c, "invalid kind")
		return
	}
	area := model.SkillArea(c.Query("skillArea"))
	if area != "" && !area.Valid() {
		util.BadRequest(c, "invalid skill area")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	summaries, total, err := ctl.AttemptService.History(claims.UserID, kind, area, page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, util.PageResponse{List: summaries, Total: total, Page: page, Limit: limit})
}

// Detail godoc
// @Summary 作答详情
// @Description 返回单次作答的完整判分记录，仅本人或管理员可见
// @Tags attempt
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答记录ID"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Failure 404 {object} util.Response
// @Router /api/v1/attempts/{id} [get]
func (ctl *AttemptController) Detail(c *gin.Context) {
	attempt, ok := ctl.ownedAttempt(c)
	if !ok {
		return
	}
	util.Success(c, attempt)
}

// Replay godoc
// @Summary 作答回放
// @Description 原题、学员选择、标准答案与解析的逐题对照视图
// @Tags attempt
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答记录ID"
// @Success 200 {object} util.Response{data=service.ReplayResponse}
// @Failure 404 {object} util.Response
// @Router /api/v1/attempts/{id}/replay [get]
func (ctl *AttemptController) Replay(c *gin.Context) {
	attempt, ok := ctl.ownedAttempt(c)
	if !ok {
		return
	}

	resp, err := ctl.AttemptService.Replay(c.Request.Context(), attempt)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, resp)
}

// AdminDelete godoc
// @Summary 删除作答记录（管理员）
// @Description 删除记录并修复用户画像：删摸底记录会重置定级状态
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答记录ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/v1/admin/attempts/{id} [delete]
func (ctl *AttemptController) AdminDelete(c *gin.Context) {
	attempt, err := ctl.AttemptService.Detail(util.MustParseUint(c.Param("id")))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if err := ctl.AttemptService.AdminDelete(attempt); err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, gin.H{"deleted": attempt.ID})
}

// ownedAttempt 取路径里的作答记录并做属主校验，管理员放行
func (ctl *AttemptController) ownedAttempt(c *gin.Context) (*model.Attempt, bool) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return nil, false
	}

	attempt, err := ctl.AttemptService.Detail(util.MustParseUint(c.Param("id")))
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}

	if attempt.UserID != claims.UserID && claims.Role != model.Admin {
		// 资源存在与否不向非属主泄露
		util.NotFound(c)
		return nil, false
	}
	return attempt, true
}
