package app

import (
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/internal/middleware"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由（无需登录）
	public := router.Group("/api/v1")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	// 登录后路由
	authorized := router.Group("/api/v1")
	authorized.Use(middleware.AuthMiddleware(cfg))
	{
		authorized.GET("/profile", c.auth.Profile)

		assessment := authorized.Group("/assessment")
		{
			assessment.GET("/placement/paper", c.assessment.PlacementPaper)
			assessment.POST("/placement/preview", c.assessment.PlacementPreview)
			assessment.POST("/placement/submit", c.assessment.PlacementSubmit)
			assessment.GET("/progress/paper", c.assessment.ProgressPaper)
			assessment.POST("/progress/preview", c.assessment.ProgressPreview)
			assessment.POST("/progress/submit", c.assessment.ProgressSubmit)
		}

		authorized.GET("/score/preview", c.assessment.ScorePreview)

		practice := authorized.Group("/practice")
		{
			practice.GET("/papers", c.practice.Papers)
			practice.GET("/paper", c.practice.Paper)
			practice.POST("/submit", c.practice.Submit)
		}

		attempts := authorized.Group("/attempts")
		{
			attempts.GET("", c.attempt.History)
			attempts.GET("/:id", c.attempt.Detail)
			attempts.GET("/:id/replay", c.attempt.Replay)
		}
	}

	// 管理员路由
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.DELETE("/attempts/:id", c.attempt.AdminDelete)
	}
}
