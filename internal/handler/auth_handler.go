package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// AuthHandler 处理登录回调。
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建鉴权 Handler。
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginCallback OAuth 回调落地：find-or-create 用户并签发令牌。
// POST /api/v1/auth/login-callback
func (h *AuthHandler) LoginCallback(c *gin.Context) {
	var input service.LoginCallbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, "参数错误: "+err.Error())
		return
	}
	result, err := h.authService.LoginCallback(c.Request.Context(), input)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, result)
}

// currentUserID 读取鉴权中间件写入的用户 ID，未登录返回 0。
func currentUserID(c *gin.Context) int64 {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0
	}
	return id
}
