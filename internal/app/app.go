package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/internal/controller"
	"toeic_prep_backend/internal/event"
	"toeic_prep_backend/internal/repository"
	"toeic_prep_backend/internal/service"
	"toeic_prep_backend/pkg/database"
	"toeic_prep_backend/pkg/logger"
	"toeic_prep_backend/pkg/monitoring"
	"toeic_prep_backend/pkg/security"
	"toeic_prep_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config    *config.Config
	Router    *gin.Engine
	DB        *gorm.DB
	Redis     *redis.Client
	publisher *event.Publisher
}

type repositories struct {
	user     *repository.UserRepository
	question *repository.QuestionRepository
	attempt  *repository.AttemptRepository
}

type services struct {
	auth     *service.AuthService
	storage  *service.StorageService
	paper    *service.PaperService
	leveling *service.LevelingService
	grading  *service.GradingService
	attempt  *service.AttemptService
}

type controllers struct {
	auth       *controller.AuthController
	assessment *controller.AssessmentController
	practice   *controller.PracticeController
	attempt    *controller.AttemptController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		question: repository.NewQuestionRepository(db, rdb, cfg.Assessment.QuestionCacheTTL()),
		attempt:  repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	storage, err := service.NewStorageService(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	s.storage = storage

	s.auth = service.NewAuthService(repos.user, cfg)
	s.paper = service.NewPaperService(repos.question, repos.attempt, s.storage, cfg)
	s.leveling = service.NewLevelingService(repos.user, repos.attempt)
	s.grading = service.NewGradingService(repos.question, repos.attempt, repos.user, s.leveling, a.publisher, cfg)
	s.attempt = service.NewAttemptService(repos.attempt, repos.question, repos.user, s.storage)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth, repos.user),
		assessment: controller.NewAssessmentController(s.paper, s.grading, repos.user),
		practice:   controller.NewPracticeController(s.paper, s.grading, repos.user),
		attempt:    controller.NewAttemptController(s.attempt),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 600
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	// 事件总线可选，连不上只降级为不发事件
	if cfg.Event.AmqpURL != "" {
		publisher, err := event.NewPublisher(cfg.Event.AmqpURL, cfg.Event.Exchange)
		if err != nil {
			logger.Log.Warn("Failed to connect event broker, events disabled", zap.Error(err))
		} else {
			app.publisher = publisher
		}
	}

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg)
	controllers := app.initControllers(services, repos, db)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("toeic-prep", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	return app
}

// ReloadConfig 热更新运行期可调的参数。服务持有同一份 Config 指针，
// 这里只覆盖改了能即时生效的字段。
func (a *App) ReloadConfig(cfg *config.Config) {
	a.Config.Assessment = cfg.Assessment
	a.Config.CORS = cfg.CORS
	logger.Log.Info("config reloaded")
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	a.publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
