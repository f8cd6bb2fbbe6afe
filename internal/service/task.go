package service

import (
	"context"
	"time"
)

// GenerationTask 代表一条配乐生成任务记录。Wire 字段为 snake_case，
// 客户端 SDK 在边界处转换命名。
type GenerationTask struct {
	ID               string     `json:"id"`
	UserID           int64      `json:"user_id"`
	VideoDescription string     `json:"video_description"`
	VideoFileName    string     `json:"video_file_name,omitempty"`
	VideoFileSize    int64      `json:"video_file_size,omitempty"`
	VideoFileKey     string     `json:"video_file_key,omitempty"` // 对象存储中的视频 key
	Status           string     `json:"status"`                   // pending / processing / completed / failed
	Progress         int        `json:"progress"`                 // 0-100
	ResultURL        string     `json:"result_url,omitempty"`
	ResultKey        string     `json:"-"`                  // 结果音频的 S3 object key
	Duration         int        `json:"duration,omitempty"` // 结果时长（秒）
	ErrorMessage     string     `json:"error_message,omitempty"`
	FrozenCredits    int64      `json:"-"` // 本次生成冻结的积分
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// 生成任务状态常量
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Active 任务是否仍在推进中（pending 或 processing）。
func (t *GenerationTask) Active() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusProcessing
}

// Terminal 任务是否已进入终态。
func (t *GenerationTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// TaskListParams 查询任务列表的参数。
type TaskListParams struct {
	UserID int64
	Status string // 可选筛选
	Limit  int    // <=0 表示不限制
	Offset int
}

// TaskRepository 任务存储接口。实现必须保证同一用户的列表按创建时间
// 倒序排列（最新在前），且所有方法并发安全。
type TaskRepository interface {
	Create(ctx context.Context, task *GenerationTask) error
	GetByID(ctx context.Context, id string) (*GenerationTask, error)
	Update(ctx context.Context, task *GenerationTask) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params TaskListParams) ([]*GenerationTask, int64, error)
	CountByUserAndStatus(ctx context.Context, userID int64, statuses []string) (int64, error)
}
