package routes

import (
	"github.com/Wei-Shaw/muse2api/internal/handler"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes 注册认证路由（无需登录态）。
func RegisterAuthRoutes(v1 *gin.RouterGroup, h *handler.Handlers) {
	auth := v1.Group("/auth")
	{
		auth.POST("/login-callback", h.Auth.LoginCallback)
	}
}
