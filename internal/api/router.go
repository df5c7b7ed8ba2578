package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventcert/internal/api/middleware"
	"eventcert/internal/config"
	"eventcert/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎并挂载公共中间件、健康检查与指标端点。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
	)
	if cfg != nil && cfg.API.MaxUploadSize > 0 {
		// 多个文件字段时留出余量，超出部分落盘。
		router.MaxMultipartMemory = cfg.API.MaxUploadSize * 2
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
