package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

var (
	// ErrTaskNotFound 表示任务不存在。
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskStateConflict 表示任务状态已发生变化（例如已被取消）。
	ErrTaskStateConflict = errors.New("task state conflict")
	// ErrTaskNotFailed 表示任务不在 failed 状态，无法重试。
	ErrTaskNotFailed = errors.New("task is not failed")
	// ErrTaskNotCompleted 表示任务尚未完成，没有可下载的结果。
	ErrTaskNotCompleted = errors.New("task is not completed")
	// ErrTaskForbidden 表示任务不属于当前用户。
	ErrTaskForbidden = errors.New("task belongs to another user")
	// ErrUploadNotValidated 表示提交的 fileKey 不是本服务签发的有效上传槽位。
	ErrUploadNotValidated = errors.New("upload file key not validated")
	// ErrTooManyActiveTasks 表示用户进行中的任务数已达上限。
	ErrTooManyActiveTasks = errors.New("too many active tasks")
)

type taskRepoConditionalUpdater interface {
	UpdateProcessingIfPending(ctx context.Context, id string, progress int) (bool, error)
	UpdateProgressIfProcessing(ctx context.Context, id string, progress int) (bool, error)
	UpdateCompletedIfActive(ctx context.Context, id, resultURL, resultKey string, duration int, completedAt time.Time) (bool, error)
	UpdateFailedIfActive(ctx context.Context, id, errMsg string, completedAt time.Time) (bool, error)
	ResetPendingIfFailed(ctx context.Context, id string, frozenCredits int64) (bool, error)
}

// TaskRunner 驱动任务从 pending 推进到终态。mock 模式下由模拟器实现，
// 生产环境替换为真实生成引擎的调度客户端。
type TaskRunner interface {
	Launch(task *GenerationTask)
	Halt(taskID string) bool
}

// CreateTaskInput 创建生成任务的入参。视频文件可选：
// 带文件时 file_key 必须是本服务签发的上传槽位。
type CreateTaskInput struct {
	VideoDescription string `json:"video_description" binding:"required"`
	VideoFileName    string `json:"video_file_name"`
	VideoFileSize    int64  `json:"video_file_size"`
	VideoFileKey     string `json:"video_file_key"`
}

// UploadSlotValidator 校验 fileKey 是否为本服务签发且未过期的上传槽位。
type UploadSlotValidator interface {
	ValidateFileKey(userID int64, fileKey string) bool
}

// MediaStore 任务服务用到的对象存储操作子集。
type MediaStore interface {
	Configured() bool
	GetAccessURL(ctx context.Context, objectKey string) (string, error)
	DeleteObjects(ctx context.Context, objectKeys []string) error
}

// TaskService 管理配乐生成任务的生命周期：创建、重试、取消、查询、下载。
// 任务只在提交成功后才会出现在列表中，提交失败不留痕。
type TaskService struct {
	taskRepo      TaskRepository
	creditService *CreditService
	runner        TaskRunner
	hub           *TaskEventHub
	storage       MediaStore
	uploads       UploadSlotValidator
	cfg           *config.Config
}

// NewTaskService 创建任务服务。
func NewTaskService(
	taskRepo TaskRepository,
	creditService *CreditService,
	hub *TaskEventHub,
	storage MediaStore,
	uploads UploadSlotValidator,
	cfg *config.Config,
) *TaskService {
	return &TaskService{
		taskRepo:      taskRepo,
		creditService: creditService,
		hub:           hub,
		storage:       storage,
		uploads:       uploads,
		cfg:           cfg,
	}
}

// SetRunner 注入任务推进器。模拟器和任务服务互相引用，装配时后设。
func (s *TaskService) SetRunner(r TaskRunner) { s.runner = r }

// Create 创建生成任务：校验上传槽位 → 冻结积分 → 落库 → 触发推进。
// 任何一步失败都不会留下任务记录。
func (s *TaskService) Create(ctx context.Context, userID int64, input CreateTaskInput) (*GenerationTask, error) {
	if input.VideoFileKey != "" && s.uploads != nil && !s.uploads.ValidateFileKey(userID, input.VideoFileKey) {
		return nil, ErrUploadNotValidated
	}

	if limit := s.cfg.Tasks.MaxActive; limit > 0 {
		active, err := s.taskRepo.CountByUserAndStatus(ctx, userID, []string{TaskStatusPending, TaskStatusProcessing})
		if err != nil {
			return nil, fmt.Errorf("count active tasks: %w", err)
		}
		if active >= int64(limit) {
			return nil, ErrTooManyActiveTasks
		}
	}

	cost := s.cfg.Credits.TaskCost
	if err := s.creditService.Freeze(ctx, userID, cost); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &GenerationTask{
		ID:               uuid.NewString(),
		UserID:           userID,
		VideoDescription: strings.TrimSpace(input.VideoDescription),
		VideoFileName:    input.VideoFileName,
		VideoFileSize:    input.VideoFileSize,
		VideoFileKey:     input.VideoFileKey,
		Status:           TaskStatusPending,
		Progress:         0,
		FrozenCredits:    cost,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		// 落库失败要把冻结的积分还回去
		_ = s.creditService.Release(ctx, userID, cost)
		return nil, fmt.Errorf("create task: %w", err)
	}

	logger.LegacyPrintf("service.task", "[Task] 创建任务 id=%s user=%d", task.ID, userID)
	if s.runner != nil {
		s.runner.Launch(task)
	}
	s.publish(task)
	return task, nil
}

// Get 查询任务，校验归属。
func (s *TaskService) Get(ctx context.Context, userID int64, taskID string) (*GenerationTask, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, ErrTaskForbidden
	}
	return task, nil
}

// List 查询用户任务列表页，最新在前。
func (s *TaskService) List(ctx context.Context, userID int64, status string, limit, offset int) ([]*GenerationTask, int64, error) {
	return s.taskRepo.List(ctx, TaskListParams{UserID: userID, Status: status, Limit: limit, Offset: offset})
}

// Retry 重试失败的任务：failed → pending，清空进度与错误信息，
// 重新冻结积分后再次触发推进。非 failed 状态返回 ErrTaskNotFailed。
func (s *TaskService) Retry(ctx context.Context, userID int64, taskID string) (*GenerationTask, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskStatusFailed {
		return nil, ErrTaskNotFailed
	}

	cost := s.cfg.Credits.TaskCost
	if err := s.creditService.Freeze(ctx, userID, cost); err != nil {
		return nil, err
	}

	if updater, ok := s.taskRepo.(taskRepoConditionalUpdater); ok {
		reset, err := updater.ResetPendingIfFailed(ctx, taskID, cost)
		if err != nil {
			_ = s.creditService.Release(ctx, userID, cost)
			return nil, err
		}
		if !reset {
			_ = s.creditService.Release(ctx, userID, cost)
			return nil, ErrTaskNotFailed
		}
	} else {
		task.Status = TaskStatusPending
		task.Progress = 0
		task.ErrorMessage = ""
		task.ResultURL = ""
		task.ResultKey = ""
		task.Duration = 0
		task.FrozenCredits = cost
		task.UpdatedAt = time.Now()
		task.CompletedAt = nil
		if err := s.taskRepo.Update(ctx, task); err != nil {
			_ = s.creditService.Release(ctx, userID, cost)
			return nil, err
		}
	}

	task, err = s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	logger.LegacyPrintf("service.task", "[Task] 重试任务 id=%s user=%d", taskID, userID)
	if s.runner != nil {
		s.runner.Launch(task)
	}
	s.publish(task)
	return task, nil
}

// Cancel 取消任务：停掉定时器链，释放冻结积分，然后从列表删除。
// 终态任务取消等同于删除记录，不退积分。
func (s *TaskService) Cancel(ctx context.Context, userID int64, taskID string) error {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}

	if s.runner != nil {
		s.runner.Halt(taskID)
	}
	if task.Active() && task.FrozenCredits > 0 {
		if err := s.creditService.Release(ctx, userID, task.FrozenCredits); err != nil {
			logger.LegacyPrintf("service.task", "[Task] 取消时释放积分失败 id=%s err=%v", taskID, err)
		}
	}
	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		return err
	}
	s.removeTaskObjects(ctx, task)
	logger.LegacyPrintf("service.task", "[Task] 取消任务 id=%s user=%d status=%s", taskID, userID, task.Status)
	return nil
}

// removeTaskObjects 清理任务关联的存储对象（视频源文件、结果音频）。
// 清理失败只记日志，不影响取消本身。
func (s *TaskService) removeTaskObjects(ctx context.Context, task *GenerationTask) {
	if s.storage == nil || !s.storage.Configured() {
		return
	}
	keys := make([]string, 0, 2)
	if task.VideoFileKey != "" {
		keys = append(keys, task.VideoFileKey)
	}
	if task.ResultKey != "" {
		keys = append(keys, task.ResultKey)
	}
	if len(keys) == 0 {
		return
	}
	if err := s.storage.DeleteObjects(ctx, keys); err != nil {
		logger.LegacyPrintf("service.task", "[Task] 清理存储对象失败 id=%s err=%v", task.ID, err)
	}
}

// ResolveDownload 返回结果音频的访问 URL。仅 completed 状态可下载；
// 配置了对象存储时返回预签名/CDN URL，否则回退任务自带的 ResultURL。
func (s *TaskService) ResolveDownload(ctx context.Context, userID int64, taskID string) (string, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return "", err
	}
	if task.Status != TaskStatusCompleted {
		return "", ErrTaskNotCompleted
	}
	if s.storage != nil && s.storage.Configured() && task.ResultKey != "" {
		url, err := s.storage.GetAccessURL(ctx, task.ResultKey)
		if err == nil {
			return url, nil
		}
		logger.LegacyPrintf("service.task", "[Task] 预签名失败，回退固定 URL id=%s err=%v", taskID, err)
	}
	return task.ResultURL, nil
}

func (s *TaskService) publish(task *GenerationTask) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(task.UserID, TaskEvent{
		TaskID:       task.ID,
		Status:       task.Status,
		Progress:     task.Progress,
		ResultURL:    task.ResultURL,
		Duration:     task.Duration,
		ErrorMessage: task.ErrorMessage,
	})
}
