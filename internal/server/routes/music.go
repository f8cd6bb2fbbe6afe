package routes

import (
	"github.com/Wei-Shaw/muse2api/internal/handler"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterMusicRoutes 注册音乐生成任务路由（需要用户认证）。
func RegisterMusicRoutes(
	v1 *gin.RouterGroup,
	h *handler.Handlers,
	jwtAuth middleware.JWTAuthMiddleware,
) {
	authenticated := v1.Group("/music")
	authenticated.Use(gin.HandlerFunc(jwtAuth))
	{
		authenticated.POST("/generate", h.Task.Generate)
		authenticated.GET("/tasks", h.Task.ListTasks)
		authenticated.GET("/tasks/stream", h.TaskStream.Stream)
		authenticated.GET("/tasks/:id", h.Task.GetTask)
		authenticated.POST("/tasks/:id/retry", h.Task.RetryTask)
		authenticated.DELETE("/tasks/:id", h.Task.CancelTask)
		authenticated.GET("/tasks/:id/download", h.Task.DownloadTask)
	}
}
