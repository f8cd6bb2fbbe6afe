package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// TaskEvent 任务状态变更事件，推送给订阅该用户的客户端。
type TaskEvent struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ResultURL    string `json:"result_url,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const taskEventBuffer = 16

// TaskEventHub 按用户分发任务事件。订阅方消费过慢时事件被丢弃，
// 客户端以任务列表接口兜底，不依赖事件不丢。
type TaskEventHub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan TaskEvent]struct{}
}

// NewTaskEventHub 创建事件分发器。
func NewTaskEventHub() *TaskEventHub {
	return &TaskEventHub{subs: make(map[int64]map[chan TaskEvent]struct{})}
}

// Subscribe 订阅某用户的任务事件，返回事件通道和取消函数。
func (h *TaskEventHub) Subscribe(userID int64) (<-chan TaskEvent, func()) {
	ch := make(chan TaskEvent, taskEventBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan TaskEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish 向用户的所有订阅方广播事件。
func (h *TaskEventHub) Publish(userID int64, ev TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			logger.L().With(
				zap.Int64("user_id", userID),
				zap.String("task_id", ev.TaskID),
			).Warn("task_events.subscriber_slow_drop")
		}
	}
}
