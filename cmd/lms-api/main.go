package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jetbrains-academy/lms-sub000/api/swagger"
	"github.com/jetbrains-academy/lms-sub000/internal/handler"
	"github.com/jetbrains-academy/lms-sub000/internal/middleware"
	"github.com/jetbrains-academy/lms-sub000/internal/repository"
	"github.com/jetbrains-academy/lms-sub000/internal/service"
	"github.com/jetbrains-academy/lms-sub000/pkg/cache"
	"github.com/jetbrains-academy/lms-sub000/pkg/config"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
	"github.com/jetbrains-academy/lms-sub000/pkg/logger"
	corsmiddleware "github.com/jetbrains-academy/lms-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/jetbrains-academy/lms-sub000/pkg/middleware/requestid"

	"github.com/go-playground/validator/v10"
)

// @title LMS Enrollment API
// @version 1.0.0
// @description Course enrollment and student group membership service
// @BasePath /api/v1
// @schemes http

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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, group cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	txManager := database.NewTxManager(db)

	courseRepo := repository.NewCourseRepository(db)
	bindingRepo := repository.NewBindingRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	groupRepo := repository.NewStudentGroupRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	recordRepo := repository.NewStudentAssignmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Groups.CacheTTL, logr, cfg.Groups.CacheEnabled && redisClient != nil)
	notificationSvc := service.NewNotificationService(notificationRepo, cfg.Notifications, logr)
	syncSvc := service.NewAssignmentSyncService(assignmentRepo, enrollmentRepo, recordRepo, notificationSvc, logr)
	groupSvc := service.NewStudentGroupService(groupRepo, courseRepo, bindingRepo, profileRepo, enrollmentRepo, assignmentRepo, syncSvc, txManager, cacheSvc, metricsSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, profileRepo, bindingRepo, groupSvc, assignmentRepo, syncSvc, notificationSvc, txManager, metricsSvc, validate, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	groupHandler := handler.NewStudentGroupHandler(groupSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/enrollments", enrollmentHandler.Create)
		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.POST("/enrollments/:id/leave", enrollmentHandler.Leave)
		api.PUT("/enrollments/:id/grade", enrollmentHandler.UpdateGrade)

		api.GET("/courses/:courseId/groups", groupHandler.List)
		api.POST("/courses/:courseId/groups", groupHandler.Create)
		api.PUT("/groups/:id", groupHandler.Update)
		api.DELETE("/groups/:id", groupHandler.Delete)
		api.GET("/groups/:id/enrollments", groupHandler.Members)
		api.GET("/groups/:id/safe-transfer-targets", groupHandler.SafeTransferTargets)
		api.POST("/groups/:id/transfer", groupHandler.Transfer)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
