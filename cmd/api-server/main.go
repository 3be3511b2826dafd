package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusdesk/student-admin-api/api/swagger"
	"github.com/campusdesk/student-admin-api/internal/handler"
	"github.com/campusdesk/student-admin-api/internal/middleware"
	"github.com/campusdesk/student-admin-api/internal/models"
	"github.com/campusdesk/student-admin-api/internal/repository"
	"github.com/campusdesk/student-admin-api/internal/service"
	"github.com/campusdesk/student-admin-api/pkg/cache"
	"github.com/campusdesk/student-admin-api/pkg/config"
	"github.com/campusdesk/student-admin-api/pkg/database"
	"github.com/campusdesk/student-admin-api/pkg/logger"
	corsmiddleware "github.com/campusdesk/student-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusdesk/student-admin-api/pkg/middleware/requestid"
	"github.com/campusdesk/student-admin-api/pkg/storage"
)

// @title Student Admin API
// @version 1.0.0
// @description Student roster management with admin CRUD and student self-service
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	uploads, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare uploads dir", "error", err)
	}
	exports, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare exports dir", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, studentRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.Auth.TokenSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		BcryptCost:  cfg.Auth.BcryptCost,
	})

	studentSvc := service.NewStudentService(studentRepo, userRepo, cacheRepo, uploads, exports, metricsSvc, validate, logr, service.StudentConfig{
		UploadPublicPath: cfg.Uploads.PublicPath,
		ListCacheTTL:     cfg.Cache.StudentListTTL,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.Static(cfg.Uploads.PublicPath, cfg.Uploads.Dir)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
	}

	students := api.Group("/students", middleware.JWT(authSvc))
	{
		adminOnly := middleware.RequireRoles(models.RoleAdmin)
		anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleStudent)

		students.GET("", adminOnly, studentHandler.List)
		students.POST("", adminOnly, studentHandler.Create)
		students.DELETE("", adminOnly, studentHandler.ClearAll)
		students.GET("/search", adminOnly, studentHandler.Search)
		students.GET("/export/csv", adminOnly, studentHandler.ExportCSV)
		students.GET("/export/pdf", adminOnly, studentHandler.ExportPDF)

		students.GET("/me", anyRole, studentHandler.GetMine)
		students.PUT("/me", anyRole, studentHandler.UpdateMine)
		students.POST("/me/upload", middleware.RequireRoles(models.RoleStudent), studentHandler.UploadPicture)

		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
