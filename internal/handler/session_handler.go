package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// SessionHandler 处理创作会话接口，requestStatus 信封。
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建会话 Handler。
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSessionRequest 创建会话请求。
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest 会话消息请求。
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateSession 创建会话。
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	var req CreateSessionRequest
	// body 可为空，标题缺省由 service 兜底
	_ = c.ShouldBindJSON(&req)
	session, err := h.sessionService.Create(c.Request.Context(), userID, req.Title)
	if err != nil {
		response.RSError(c, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "创建会话失败")
		return
	}
	response.RSSuccess(c, gin.H{"session": session})
}

// ListSessions 查询会话列表，最近更新在前。
// GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	sessions, err := h.sessionService.List(c.Request.Context(), userID)
	if err != nil {
		response.RSError(c, http.StatusInternalServerError, "SESSION_LIST_FAILED", "查询会话失败")
		return
	}
	response.RSSuccess(c, gin.H{"sessions": sessions})
}

// GetSession 查询会话详情（消息 + 歌曲）。
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	session, err := h.sessionService.Get(c.Request.Context(), userID, c.Param("id"))
	if h.writeSessionError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{"session": session})
}

// RenameSessionRequest 重命名请求。
type RenameSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// RenameSession 重命名会话。
// PUT /api/v1/sessions/:id
func (h *SessionHandler) RenameSession(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RSError(c, http.StatusBadRequest, "INVALID_REQUEST", "参数错误: "+err.Error())
		return
	}
	session, err := h.sessionService.Rename(c.Request.Context(), userID, c.Param("id"), req.Title)
	if h.writeSessionError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{"session": session})
}

// DeleteSession 删除会话。
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	err := h.sessionService.Delete(c.Request.Context(), userID, c.Param("id"))
	if h.writeSessionError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{})
}

// SendMessage 投递消息，返回消息与歌曲增量。
// POST /api/v1/sessions/:id/messages
func (h *SessionHandler) SendMessage(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RSError(c, http.StatusBadRequest, "INVALID_REQUEST", "参数错误: "+err.Error())
		return
	}
	update, err := h.sessionService.SendMessage(c.Request.Context(), userID, c.Param("id"), req.Content)
	if h.writeSessionError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{
		"messageUpdates": update.MessageUpdates,
		"songUpdates":    update.SongUpdates,
	})
}

func (h *SessionHandler) writeSessionError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, service.ErrSessionNotFound):
		response.RSError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "会话不存在")
	case errors.Is(err, service.ErrSessionForbidden):
		response.RSError(c, http.StatusForbidden, "FORBIDDEN", "无权访问该会话")
	default:
		response.RSError(c, http.StatusInternalServerError, "INTERNAL", "服务内部错误")
	}
	return true
}
