package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/handler"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"
	"github.com/Wei-Shaw/muse2api/internal/server/routes"
)

// StorageHealthChecker 上报对象存储的可用状态，健康检查接口使用。
type StorageHealthChecker interface {
	Configured() bool
	IsHealthy(ctx context.Context) bool
}

// NewEngine 构建 gin 引擎并注册全部路由。
func NewEngine(cfg *config.Config, h *handler.Handlers, jwtAuth middleware.JWTAuthMiddleware, storage StorageHealthChecker) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())

	engine.GET("/health", func(c *gin.Context) {
		storageState := "unconfigured"
		if storage != nil && storage.Configured() {
			if storage.IsHealthy(c.Request.Context()) {
				storageState = "ok"
			} else {
				storageState = "degraded"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": storageState})
	})

	v1 := engine.Group("/api/v1")
	routes.RegisterAuthRoutes(v1, h)
	routes.RegisterFileRoutes(v1, h, jwtAuth)
	routes.RegisterMusicRoutes(v1, h, jwtAuth)
	routes.RegisterSessionRoutes(v1, h, jwtAuth)
	routes.RegisterBillingRoutes(v1, h, jwtAuth)

	return engine
}

// NewHTTPServer 包装 gin 引擎为 http.Server，超时取自配置。
func NewHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// WebSocket 升级后连接交给 handler 长期持有，访问日志意义不大
		if c.Writer.Status() == http.StatusSwitchingProtocols {
			return
		}

		logger.L().Info("http.access",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
