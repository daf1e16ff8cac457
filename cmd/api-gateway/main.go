package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/hallpass-api/api/swagger"
	"github.com/noah-isme/hallpass-api/internal/handler"
	"github.com/noah-isme/hallpass-api/internal/middleware"
	"github.com/noah-isme/hallpass-api/internal/models"
	"github.com/noah-isme/hallpass-api/internal/repository"
	"github.com/noah-isme/hallpass-api/internal/service"
	"github.com/noah-isme/hallpass-api/pkg/cache"
	"github.com/noah-isme/hallpass-api/pkg/config"
	"github.com/noah-isme/hallpass-api/pkg/database"
	"github.com/noah-isme/hallpass-api/pkg/jobs"
	"github.com/noah-isme/hallpass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hallpass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hallpass-api/pkg/middleware/requestid"

	"go.uber.org/zap"
)

// @title Hall Pass API
// @version 1.0.0
// @description Hall pass issuance, tracking and escalation service
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The service degrades without Redis: no board cache, no rate
		// limiting.
		logr.Warn("redis unavailable, running degraded", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	passRepo := repository.NewPassRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	restrictionRepo := repository.NewRestrictionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	eventRepo := repository.NewEventRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient, cfg.RateLimit.PassCreationLimit, cfg.RateLimit.PassCreationWindow)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: firstOrEmpty(cfg.JWT.Audience),
	}, logr)
	policySvc := service.NewPolicyService(policyRepo, restrictionRepo, groupRepo, validate, logr)
	notifier := service.NewLogNotificationService(logr)
	escalationSvc := service.NewEscalationService(passRepo, notifier, eventRepo, nil, metricsSvc, cfg.Escalation, logr)
	boardSvc := service.NewBoardService(passRepo, escalationSvc, cacheRepo, cfg.Board.CacheTTL, logr)
	escalationSvc.SetBoardInvalidator(boardSvc)
	passSvc := service.NewPassService(passRepo, policySvc, rateLimitRepo, studentRepo, eventRepo, boardSvc, metricsSvc, validate, logr)
	groupSvc := service.NewGroupService(groupRepo, validate, logr)
	restrictionSvc := service.NewRestrictionService(restrictionRepo, validate, logr)
	reportSvc := service.NewReportService(passRepo, nil, nil, cfg.Reports.SchoolName, logr)

	sweeper := jobs.NewSweeper("pass-escalation", func(ctx context.Context, now time.Time) error {
		start := time.Now()
		err := escalationSvc.Sweep(ctx, now)
		metricsSvc.ObserveSweep(time.Since(start))
		return err
	}, jobs.SweeperConfig{Interval: cfg.Escalation.SweepInterval, Logger: logr})

	passHandler := handler.NewPassHandler(passSvc, eventRepo)
	boardHandler := handler.NewBoardHandler(boardSvc)
	policyHandler := handler.NewPolicyHandler(policySvc)
	groupHandler := handler.NewGroupHandler(groupSvc)
	restrictionHandler := handler.NewRestrictionHandler(restrictionSvc)
	reportHandler := handler.NewReportHandler(reportSvc)

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
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := []string{string(models.RoleAdmin), string(models.RoleTeacher)}
	admin := []string{string(models.RoleAdmin)}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		passes := api.Group("/passes")
		{
			passes.POST("", passHandler.Create)
			passes.GET("", middleware.RBAC(staff...), passHandler.List)
			passes.GET("/:id", passHandler.Get)
			passes.GET("/:id/events", middleware.RBAC(staff...), passHandler.Events)
			passes.POST("/:id/arrive", passHandler.Arrive)
			passes.POST("/:id/continue", passHandler.Continue)
			passes.POST("/:id/return", passHandler.Return)
			passes.POST("/:id/approve", middleware.RBAC(staff...), passHandler.Approve)
			passes.POST("/:id/reject", middleware.RBAC(staff...), passHandler.Reject)
			passes.POST("/:id/claim", middleware.RBAC(staff...), passHandler.Claim)
		}

		api.GET("/students/:studentId/passes/open", middleware.RBAC(append(staff, "SELF")...), passHandler.OpenForStudent)
		api.GET("/students/:studentId/restrictions", middleware.RBAC(staff...), restrictionHandler.ListFor)
		api.POST("/students/:studentId/restrictions", middleware.RBAC(staff...), restrictionHandler.Create)
		api.DELETE("/restrictions/:id", middleware.RBAC(staff...), restrictionHandler.Lift)

		api.GET("/board/active", middleware.RBAC(staff...), boardHandler.Active)

		policies := api.Group("/policies")
		{
			policies.POST("/evaluate", middleware.RBAC(staff...), policyHandler.Evaluate)
			policies.GET("/locations/:locationId", middleware.RBAC(staff...), policyHandler.GetClassroomPolicy)
			policies.PUT("/locations/:locationId", middleware.RBAC(admin...), policyHandler.SetClassroomPolicy)
			policies.GET("/locations/:locationId/students/:studentId", middleware.RBAC(staff...), policyHandler.Overrides)
			policies.PUT("/locations/:locationId/students/:studentId", middleware.RBAC(staff...), policyHandler.SetOverride)
			policies.DELETE("/locations/:locationId/students/:studentId", middleware.RBAC(staff...), policyHandler.RemoveOverride)
		}

		groups := api.Group("/groups", middleware.RBAC(staff...))
		{
			groups.GET("", groupHandler.List)
			groups.POST("", groupHandler.Create)
			groups.GET("/:id", groupHandler.Get)
			groups.PUT("/:id", groupHandler.Update)
			groups.DELETE("/:id", middleware.RBAC(admin...), groupHandler.Delete)
			groups.POST("/:id/members", groupHandler.AddMember)
			groups.DELETE("/:id/members/:studentId", groupHandler.RemoveMember)
		}

		api.GET("/reports/passes", middleware.RBAC(staff...), reportHandler.Passes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
