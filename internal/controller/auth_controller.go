package controller

import (
	"errors"
	"net/http"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/repository"
	"toeic_prep_backend/internal/service"
	"toeic_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
	UserRepo    *repository.UserRepository
}

func NewAuthController(authService *service.AuthService, userRepo *repository.UserRepository) *AuthController {
	return &AuthController{AuthService: authService, UserRepo: userRepo}
}

// Register godoc
// @Summary 用户注册
// @Description 创建学员账号，技能档案初始为各分区最低级
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.RegisterRequest true "注册信息"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/v1/auth/register [post]
func (ctl *AuthController) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	resp, err := ctl.AuthService.Register(&req)
	if err != nil {
		if errors.Is(err, util.ErrEmailRegistered) {
			util.Error(c, http.StatusConflict, err.Error())
			return
		}
		respondServiceError(c, err)
		return
	}

	util.Created(c, resp)
}

// Login godoc
// @Summary 用户登录
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.LoginRequest true "登录信息"
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response
// @Router /api/v1/auth/login [post]
func (ctl *AuthController) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	resp, err := ctl.AuthService.Login(&req)
	if err != nil {
		util.Error(c, http.StatusUnauthorized, "邮箱或密码错误")
		return
	}

	util.Success(c, resp)
}

// Profile godoc
// @Summary 当前用户画像
// @Description 返回账号信息、各分区技能等级与最近预测分
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/v1/profile [get]
func (ctl *AuthController) Profile(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	user, err := ctl.UserRepo.FindByID(claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.Success(c, gin.H{
		"user":        user,
		"skillLevels": model.ParseSkillLevels(user.SkillLevels),
		"score": service.ScoreTriple{
			Overall:   user.ScoreOverall,
			Listening: user.ScoreListening,
			Reading:   user.ScoreReading,
		},
	})
}
