package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/assessment-admin-api/api/swagger"
	"github.com/noah-isme/assessment-admin-api/internal/authz"
	"github.com/noah-isme/assessment-admin-api/internal/handler"
	"github.com/noah-isme/assessment-admin-api/internal/middleware"
	"github.com/noah-isme/assessment-admin-api/internal/repository"
	"github.com/noah-isme/assessment-admin-api/internal/service"
	"github.com/noah-isme/assessment-admin-api/pkg/cache"
	"github.com/noah-isme/assessment-admin-api/pkg/config"
	"github.com/noah-isme/assessment-admin-api/pkg/database"
	"github.com/noah-isme/assessment-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/assessment-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assessment-admin-api/pkg/middleware/requestid"
)

// @title Assessment Admin API
// @version 1.0.0
// @description Read API for assessment administrations: visibility, structure and assigned task variants
// @BasePath /api/v1
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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	// Redis is optional: without it role resolution simply skips the cache.
	var cacheSvc *service.CacheService
	if cfg.Authz.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, role cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Authz.RoleCacheTTL, logr, true)
		}
	}

	adminRepo := repository.NewAdministrationRepository(db)
	orgRepo := repository.NewOrgRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	userRepo := repository.NewUserRepository(db)
	runRepo := repository.NewRunRepository(db)

	resolver := authz.NewResolver(orgRepo, membershipRepo, logr)

	audience := ""
	if len(cfg.JWT.Audience) > 0 {
		audience = cfg.JWT.Audience[0]
	}
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: audience,
	})

	adminSvc := service.NewAdministrationService(service.AdministrationServiceParams{
		Repo:     adminRepo,
		Users:    userRepo,
		Runs:     runRepo,
		Resolver: resolver,
		Cache:    cacheSvc,
		Metrics:  metricsSvc,
		Logger:   logr,
		Config: service.AdministrationServiceConfig{
			DefaultPageSize: cfg.Listing.DefaultPageSize,
			MaxPageSize:     cfg.Listing.MaxPageSize,
			RoleCacheTTL:    cfg.Authz.RoleCacheTTL,
		},
	})

	adminHandler := handler.NewAdministrationHandler(adminSvc)

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		administrations := api.Group("/administrations")
		administrations.GET("", adminHandler.List)
		administrations.GET("/:id", adminHandler.Get)
		administrations.GET("/:id/districts", adminHandler.ListDistricts)
		administrations.GET("/:id/schools", adminHandler.ListSchools)
		administrations.GET("/:id/classes", adminHandler.ListClasses)
		administrations.GET("/:id/groups", adminHandler.ListGroups)
		administrations.GET("/:id/task-variants", adminHandler.ListTaskVariants)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
