package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phRestore/internal/api/middleware"
	"phRestore/internal/config"
	"phRestore/internal/metrics"
)

// 应用入口固定跳转到存储页。
const (
	appEntryPath   = "/app"
	appStoragePath = "/app/storage"
)

// NewRouter 构建 Gin 路由引擎并挂载通用中间件、健康检查、指标与 /app 跳转。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		middleware.Recovery(),
		metrics.GinMiddleware(),
		cors.New(corsConfig(cfg.API.AllowedOrigins)),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	redirectToStorage := func(c *gin.Context) {
		c.Redirect(http.StatusFound, appStoragePath)
	}
	router.GET(appEntryPath, redirectToStorage)
	router.GET(appEntryPath+"/", redirectToStorage)

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Correlation-ID"},
		ExposeHeaders:    []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		// 未配置时仅允许同源访问。
		cfg.AllowOriginFunc = func(string) bool { return false }
		return cfg
	}
	cfg.AllowOrigins = allowedOrigins
	return cfg
}
