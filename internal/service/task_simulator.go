package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// 模拟失败时随机返回的错误文案，与真实生成引擎的失败类别对齐。
var simulatedFailureMessages = []string{
	"Failed to analyze video content",
	"Audio generation service temporarily unavailable",
	"File format not supported",
	"Processing timeout occurred",
}

// 进入 processing 后依次推进的进度档位。
var simulatorProgressSteps = []int{25, 50, 75, 90}

const simulatorInitialProgress = 10

// TaskSimulator 在 mock 模式下驱动任务状态推进：
//
//	pending --StartDelay--> processing(10) --StepInterval--> 25/50/75/90 --StepInterval--> completed|failed
//
// 每个任务同一时刻只持有一个待触发的定时器，句柄登记在 timers 中，
// 取消任务时 Halt 停表并摘除句柄，后续转移不再发生。
// 状态转移本身在协程池中执行，定时器回调只做投递。
type TaskSimulator struct {
	taskRepo      TaskRepository
	creditService *CreditService
	hub           *TaskEventHub
	storage       *MediaStorage
	cfg           config.SimulatorConfig

	pool pond.Pool

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewTaskSimulator 创建模拟器。
func NewTaskSimulator(
	taskRepo TaskRepository,
	creditService *CreditService,
	hub *TaskEventHub,
	storage *MediaStorage,
	cfg config.SimulatorConfig,
) *TaskSimulator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	return &TaskSimulator{
		taskRepo:      taskRepo,
		creditService: creditService,
		hub:           hub,
		storage:       storage,
		cfg:           cfg,
		pool:          pond.NewPool(workers),
		timers:        make(map[string]*time.Timer),
	}
}

// Launch 为任务安排第一段定时器（pending → processing）。
func (s *TaskSimulator) Launch(task *GenerationTask) {
	s.schedule(task.ID, s.cfg.StartDelay, func(ctx context.Context) {
		s.toProcessing(ctx, task.ID)
	})
}

// Halt 停掉任务当前的定时器。返回是否确实摘除了句柄。
func (s *TaskSimulator) Halt(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[taskID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, taskID)
	return true
}

// Shutdown 停掉所有定时器并等待协程池排空。
func (s *TaskSimulator) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.pool.StopAndWait()
}

// schedule 登记一段定时器。已关闭时直接丢弃。
func (s *TaskSimulator) schedule(taskID string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[taskID]; ok {
		old.Stop()
	}
	s.timers[taskID] = time.AfterFunc(delay, func() {
		// 回调只负责投递，转移在池中执行
		s.pool.Submit(func() { fn(context.Background()) })
	})
}

// release 转移执行前摘掉自己的句柄；句柄已被 Halt 摘除说明任务取消，返回 false。
func (s *TaskSimulator) release(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[taskID]; !ok {
		return false
	}
	delete(s.timers, taskID)
	return true
}

func (s *TaskSimulator) toProcessing(ctx context.Context, taskID string) {
	if !s.release(taskID) {
		return
	}
	updated, err := s.conditional().UpdateProcessingIfPending(ctx, taskID, simulatorInitialProgress)
	if err != nil || !updated {
		s.abandon(taskID, "processing", err)
		return
	}
	s.publishCurrent(ctx, taskID)
	s.schedule(taskID, s.cfg.StepInterval, func(ctx context.Context) {
		s.toProgress(ctx, taskID, 0)
	})
}

func (s *TaskSimulator) toProgress(ctx context.Context, taskID string, step int) {
	if !s.release(taskID) {
		return
	}
	updated, err := s.conditional().UpdateProgressIfProcessing(ctx, taskID, simulatorProgressSteps[step])
	if err != nil || !updated {
		s.abandon(taskID, "progress", err)
		return
	}
	s.publishCurrent(ctx, taskID)

	next := step + 1
	if next < len(simulatorProgressSteps) {
		s.schedule(taskID, s.cfg.StepInterval, func(ctx context.Context) {
			s.toProgress(ctx, taskID, next)
		})
		return
	}
	s.schedule(taskID, s.cfg.StepInterval, func(ctx context.Context) {
		s.toTerminal(ctx, taskID)
	})
}

func (s *TaskSimulator) toTerminal(ctx context.Context, taskID string) {
	if !s.release(taskID) {
		return
	}
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		s.abandon(taskID, "terminal", err)
		return
	}

	if rand.Float64() < s.cfg.SuccessRate {
		s.complete(ctx, task)
	} else {
		s.fail(ctx, task)
	}
}

func (s *TaskSimulator) complete(ctx context.Context, task *GenerationTask) {
	duration := s.cfg.MinDuration + rand.IntN(s.cfg.MaxDuration-s.cfg.MinDuration+1)
	resultURL := fmt.Sprintf("/api/download/music-%s.mp3", task.ID)
	var resultKey string
	if s.storage != nil && s.storage.Configured() {
		resultKey = s.storage.GenerateResultKey(task.UserID, task.ID)
	}

	updated, err := s.conditional().UpdateCompletedIfActive(ctx, task.ID, resultURL, resultKey, duration, time.Now())
	if err != nil || !updated {
		s.abandon(task.ID, "completed", err)
		return
	}
	if err := s.creditService.Commit(ctx, task.UserID, task.FrozenCredits); err != nil {
		logger.LegacyPrintf("service.simulator", "[Simulator] 扣除积分失败 task=%s err=%v", task.ID, err)
	}
	logger.LegacyPrintf("service.simulator", "[Simulator] 任务完成 task=%s duration=%ds", task.ID, duration)
	s.publishCurrent(ctx, task.ID)
}

func (s *TaskSimulator) fail(ctx context.Context, task *GenerationTask) {
	msg := simulatedFailureMessages[rand.IntN(len(simulatedFailureMessages))]
	updated, err := s.conditional().UpdateFailedIfActive(ctx, task.ID, msg, time.Now())
	if err != nil || !updated {
		s.abandon(task.ID, "failed", err)
		return
	}
	if err := s.creditService.Release(ctx, task.UserID, task.FrozenCredits); err != nil {
		logger.LegacyPrintf("service.simulator", "[Simulator] 返还积分失败 task=%s err=%v", task.ID, err)
	}
	logger.LegacyPrintf("service.simulator", "[Simulator] 任务失败 task=%s msg=%s", task.ID, msg)
	s.publishCurrent(ctx, task.ID)
}

// ScheduleOutcome 复用模拟引擎的定时、掷签与协程池，为任务之外的生成体
// （会话歌曲）安排一次终态。延迟为一条完整任务链的时长。
// key 需全局唯一，Halt/Shutdown 对其同样生效。
func (s *TaskSimulator) ScheduleOutcome(key string, apply func(success bool, duration int, failMsg string)) {
	delay := s.cfg.StartDelay + time.Duration(len(simulatorProgressSteps)+1)*s.cfg.StepInterval
	s.schedule(key, delay, func(ctx context.Context) {
		if !s.release(key) {
			return
		}
		if rand.Float64() < s.cfg.SuccessRate {
			duration := s.cfg.MinDuration + rand.IntN(s.cfg.MaxDuration-s.cfg.MinDuration+1)
			apply(true, duration, "")
			return
		}
		apply(false, 0, simulatedFailureMessages[rand.IntN(len(simulatedFailureMessages))])
	})
}

// abandon 任务已取消或状态冲突，终止后续转移。
func (s *TaskSimulator) abandon(taskID, stage string, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.LegacyPrintf("service.simulator", "[Simulator] 转移中止 task=%s stage=%s err=%v", taskID, stage, err)
	}
}

func (s *TaskSimulator) publishCurrent(ctx context.Context, taskID string) {
	if s.hub == nil {
		return
	}
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
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

func (s *TaskSimulator) conditional() taskRepoConditionalUpdater {
	if u, ok := s.taskRepo.(taskRepoConditionalUpdater); ok {
		return u
	}
	return &fallbackTaskUpdater{repo: s.taskRepo}
}

// fallbackTaskUpdater 为不支持条件更新的存储实现提供读-改-写回退。
type fallbackTaskUpdater struct {
	repo TaskRepository
}

func (f *fallbackTaskUpdater) UpdateProcessingIfPending(ctx context.Context, id string, progress int) (bool, error) {
	t, err := f.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status != TaskStatusPending {
		return false, nil
	}
	t.Status = TaskStatusProcessing
	t.Progress = progress
	t.UpdatedAt = time.Now()
	return true, f.repo.Update(ctx, t)
}

func (f *fallbackTaskUpdater) UpdateProgressIfProcessing(ctx context.Context, id string, progress int) (bool, error) {
	t, err := f.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status != TaskStatusProcessing || progress < t.Progress {
		return false, nil
	}
	t.Progress = progress
	t.UpdatedAt = time.Now()
	return true, f.repo.Update(ctx, t)
}

func (f *fallbackTaskUpdater) UpdateCompletedIfActive(ctx context.Context, id, resultURL, resultKey string, duration int, completedAt time.Time) (bool, error) {
	t, err := f.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !t.Active() {
		return false, nil
	}
	t.Status = TaskStatusCompleted
	t.Progress = 100
	t.ResultURL = resultURL
	t.ResultKey = resultKey
	t.Duration = duration
	t.ErrorMessage = ""
	t.UpdatedAt = completedAt
	t.CompletedAt = &completedAt
	return true, f.repo.Update(ctx, t)
}

func (f *fallbackTaskUpdater) UpdateFailedIfActive(ctx context.Context, id, errMsg string, completedAt time.Time) (bool, error) {
	t, err := f.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !t.Active() {
		return false, nil
	}
	t.Status = TaskStatusFailed
	t.ErrorMessage = errMsg
	t.UpdatedAt = completedAt
	t.CompletedAt = &completedAt
	return true, f.repo.Update(ctx, t)
}

func (f *fallbackTaskUpdater) ResetPendingIfFailed(ctx context.Context, id string, frozenCredits int64) (bool, error) {
	t, err := f.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status != TaskStatusFailed {
		return false, nil
	}
	t.Status = TaskStatusPending
	t.Progress = 0
	t.ErrorMessage = ""
	t.ResultURL = ""
	t.ResultKey = ""
	t.Duration = 0
	t.FrozenCredits = frozenCredits
	t.UpdatedAt = time.Now()
	t.CompletedAt = nil
	return true, f.repo.Update(ctx, t)
}
