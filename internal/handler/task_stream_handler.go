package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// TaskStreamHandler 通过 WebSocket 推送任务状态变更。
// 客户端收不到推送时退回轮询任务列表，推送不保证必达。
type TaskStreamHandler struct {
	hub      *service.TaskEventHub
	upgrader websocket.Upgrader
}

// NewTaskStreamHandler 创建推送 Handler。
func NewTaskStreamHandler(hub *service.TaskEventHub) *TaskStreamHandler {
	return &TaskStreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 前端与 API 同源部署，跨域交给网关层管
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Stream 升级为 WebSocket 并订阅当前用户的任务事件。
// GET /api/v1/music/tasks/stream
func (h *TaskStreamHandler) Stream(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "未登录")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.LegacyPrintf("handler.stream", "[Stream] 升级失败 user=%d err=%v", userID, err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(userID)
	defer cancel()

	// 读协程只消费控制帧并探测断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
