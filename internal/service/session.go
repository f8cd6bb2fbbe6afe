package service

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound 会话不存在或已过期。
var ErrSessionNotFound = errors.New("session not found")

// ChatSession 创作会话：消息流 + 会话内产出的歌曲列表。
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    int64         `json:"user_id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	Songs     []Song        `json:"songs"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ChatMessage 会话消息。
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user / assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Song 会话内的歌曲条目。
type Song struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"` // GENERATING / COMPLETED / FAILED / EDITING
	Style     string    `json:"style,omitempty"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// 歌曲状态常量
const (
	SongStatusGenerating = "GENERATING"
	SongStatusCompleted  = "COMPLETED"
	SongStatusFailed     = "FAILED"
	SongStatusEditing    = "EDITING"
)

// 消息角色常量
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// SessionUpdate sendMessage 的增量返回：新增/变更的消息与歌曲。
type SessionUpdate struct {
	MessageUpdates []ChatMessage `json:"messageUpdates"`
	SongUpdates    []Song        `json:"songUpdates"`
}

// SessionRepository 会话存储接口。
type SessionRepository interface {
	Create(ctx context.Context, session *ChatSession) error
	GetByID(ctx context.Context, id string) (*ChatSession, error)
	Update(ctx context.Context, session *ChatSession) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID int64) ([]*ChatSession, error)
}
