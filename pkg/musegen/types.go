package musegen

import "time"

// 任务状态。
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Task 配乐生成任务，字段与服务端 snake_case 线格式一一对应。
type Task struct {
	ID               string     `json:"id"`
	VideoDescription string     `json:"video_description"`
	VideoFileName    string     `json:"video_file_name,omitempty"`
	VideoFileSize    int64      `json:"video_file_size,omitempty"`
	VideoFileKey     string     `json:"video_file_key,omitempty"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	ResultURL        string     `json:"result_url,omitempty"`
	Duration         int        `json:"duration,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Terminal 任务是否已终结（completed / failed）。
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// TaskPage 分页的任务列表。
type TaskPage struct {
	Tasks    []*Task `json:"tasks"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}

// GenerateInput 提交生成任务的入参。视频文件可选，
// 带文件时 VideoFileKey 必须来自 UploadAndSubmit 流程签发的槽位。
type GenerateInput struct {
	VideoDescription string `json:"video_description"`
	VideoFileName    string `json:"video_file_name,omitempty"`
	VideoFileSize    int64  `json:"video_file_size,omitempty"`
	VideoFileKey     string `json:"video_file_key,omitempty"`
}

// CreditInfo 积分快照。可用余额 = permanent + renewable - frozen。
type CreditInfo struct {
	PermanentCredits int       `json:"permanentCredits"`
	RenewableCredits int       `json:"renewableCredits"`
	FrozenCredits    int       `json:"frozenCredits"`
	NextResetTime    time.Time `json:"nextResetTime"`
	Plan             string    `json:"plan,omitempty"`
}

// Available 计算可用积分。
func (c *CreditInfo) Available() int {
	return c.PermanentCredits + c.RenewableCredits - c.FrozenCredits
}

// SubscriptionInfo 订阅快照。
type SubscriptionInfo struct {
	Plan        string    `json:"plan"`
	PlanName    string    `json:"planName"`
	Credits     int       `json:"credits"`
	Total       int       `json:"totalCredits"`
	NextResetAt time.Time `json:"nextResetAt"`
	Active      bool      `json:"active"`
}

// UploadSlot 服务端签发的直传槽位。
type UploadSlot struct {
	UploadURL string    `json:"uploadUrl"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TaskEvent WebSocket 推送的任务状态增量。
type TaskEvent struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ResultURL    string `json:"result_url,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
