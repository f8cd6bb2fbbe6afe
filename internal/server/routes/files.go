package routes

import (
	"github.com/Wei-Shaw/muse2api/internal/handler"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterFileRoutes 注册文件上传路由。
// mock-upload 是对象存储未配置时的兜底直传端点，由签发的 uploadUrl 指向，不走鉴权。
func RegisterFileRoutes(
	v1 *gin.RouterGroup,
	h *handler.Handlers,
	jwtAuth middleware.JWTAuthMiddleware,
) {
	v1.PUT("/files/mock-upload/*fileKey", h.File.MockUpload)

	authenticated := v1.Group("/files")
	authenticated.Use(gin.HandlerFunc(jwtAuth))
	{
		authenticated.POST("/upload-url", h.File.GetUploadURL)
	}
}
