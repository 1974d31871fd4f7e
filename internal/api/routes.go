package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phRestore/internal/api/middleware"
	"phRestore/internal/auth"
	"phRestore/internal/config"
	"phRestore/internal/jobs"
	"phRestore/internal/site"
	"phRestore/internal/theme"
)

// Deps 汇总路由所需的外部依赖。Scanner 为 nil 时跳过病毒扫描。
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Jobs        jobs.Store
	Storage     objectStorage
	Queue       taskEnqueuer
	Scanner     uploadScanner
	AuthService *auth.AuthService
	Redis       redis.UniversalClient
	Themes      *theme.Catalog
}

// RegisterRoutes 在 /api 下注册业务路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	cfg := deps.Config

	jobHandler := NewProcessingJobHandler(
		deps.Jobs,
		deps.Storage,
		deps.Queue,
		deps.Scanner,
		cfg.API.MaxUploadBytes,
		cfg.Worker.MaxRetry,
		cfg.Worker.DownloadURLTTL,
	)
	storageHandler := NewStorageHandler(deps.Storage, cfg.Worker.DownloadURLTTL)
	siteHandler := NewSiteHandler(site.FromConfig(cfg.Site), deps.Themes)
	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Redis, cfg.Auth.LoginRateLimitPerHour, cfg.Auth.CookieDomain)
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, cfg.API.AllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(deps.AuthService)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/ws", wsHandler.HandleConnection)
		apiGroup.GET("/site", siteHandler.GetSite)
		apiGroup.GET("/themes", siteHandler.ListThemes)
		apiGroup.GET("/themes/:name", siteHandler.GetTheme)

		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
		}

		jobGroup := apiGroup.Group("/processing-jobs")
		{
			jobGroup.GET("", jobHandler.ListJobs)
			jobGroup.POST("", authMiddleware, jobHandler.CreateJob)
			jobGroup.GET("/:id", authMiddleware, jobHandler.GetJob)
			jobGroup.GET("/:id/download-link", authMiddleware, jobHandler.GetDownloadLink)
		}

		apiGroup.GET("/storage", authMiddleware, storageHandler.ListStorage)
	}
}
