package routes

import (
	"github.com/Wei-Shaw/muse2api/internal/handler"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterSessionRoutes 注册创作会话路由（需要用户认证）。
func RegisterSessionRoutes(
	v1 *gin.RouterGroup,
	h *handler.Handlers,
	jwtAuth middleware.JWTAuthMiddleware,
) {
	authenticated := v1.Group("/sessions")
	authenticated.Use(gin.HandlerFunc(jwtAuth))
	{
		authenticated.POST("", h.Session.CreateSession)
		authenticated.GET("", h.Session.ListSessions)
		authenticated.GET("/:id", h.Session.GetSession)
		authenticated.PUT("/:id", h.Session.RenameSession)
		authenticated.DELETE("/:id", h.Session.DeleteSession)
		authenticated.POST("/:id/messages", h.Session.SendMessage)
	}
}
