package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Wei-Shaw/muse2api/internal/service"
)

// MemoryTaskRepo 内存任务存储。任务记录不落盘，进程重启即丢失，
// 这与任务的生命周期语义一致（结果文件另存对象存储）。
//
// 同一用户的任务 ID 按创建时间倒序维护，List 直接按序返回。
type MemoryTaskRepo struct {
	mu     sync.RWMutex
	tasks  map[string]*service.GenerationTask
	byUser map[int64][]string // 新任务插入头部
}

// NewMemoryTaskRepo 创建内存任务存储。
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{
		tasks:  make(map[string]*service.GenerationTask),
		byUser: make(map[int64][]string),
	}
}

func cloneTask(t *service.GenerationTask) *service.GenerationTask {
	cp := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// Create 插入任务，新任务排在该用户列表头部。
func (r *MemoryTaskRepo) Create(_ context.Context, task *service.GenerationTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return errors.New("task id already exists")
	}
	r.tasks[task.ID] = cloneTask(task)
	r.byUser[task.UserID] = append([]string{task.ID}, r.byUser[task.UserID]...)
	return nil
}

// GetByID 按 ID 查询，返回副本。
func (r *MemoryTaskRepo) GetByID(_ context.Context, id string) (*service.GenerationTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, service.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// Update 整条覆盖。
func (r *MemoryTaskRepo) Update(_ context.Context, task *service.GenerationTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return service.ErrTaskNotFound
	}
	r.tasks[task.ID] = cloneTask(task)
	return nil
}

// Delete 删除任务并从用户列表中摘除。
func (r *MemoryTaskRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return service.ErrTaskNotFound
	}
	delete(r.tasks, id)
	ids := r.byUser[t.UserID]
	for i, tid := range ids {
		if tid == id {
			r.byUser[t.UserID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// List 返回用户任务页，最新在前，total 为筛选后的总数。
func (r *MemoryTaskRepo) List(_ context.Context, params service.TaskListParams) ([]*service.GenerationTask, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*service.GenerationTask, 0, len(r.byUser[params.UserID]))
	for _, id := range r.byUser[params.UserID] {
		t := r.tasks[id]
		if params.Status != "" && t.Status != params.Status {
			continue
		}
		matched = append(matched, t)
	}
	total := int64(len(matched))

	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return []*service.GenerationTask{}, total, nil
		}
		matched = matched[params.Offset:]
	}
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	out := make([]*service.GenerationTask, 0, len(matched))
	for _, t := range matched {
		out = append(out, cloneTask(t))
	}
	return out, total, nil
}

// CountByUserAndStatus 统计用户处于指定状态的任务数。
func (r *MemoryTaskRepo) CountByUserAndStatus(_ context.Context, userID int64, statuses []string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, id := range r.byUser[userID] {
		t := r.tasks[id]
		for _, s := range statuses {
			if t.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

// ---- 条件更新（状态机守卫在锁内一次完成） ----

// UpdateProcessingIfPending pending -> processing，携带初始进度。
func (r *MemoryTaskRepo) UpdateProcessingIfPending(_ context.Context, id string, progress int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, service.ErrTaskNotFound
	}
	if t.Status != service.TaskStatusPending {
		return false, nil
	}
	t.Status = service.TaskStatusProcessing
	t.Progress = progress
	t.UpdatedAt = time.Now()
	return true, nil
}

// UpdateProgressIfProcessing 仅在 processing 状态下推进进度，进度不回退。
func (r *MemoryTaskRepo) UpdateProgressIfProcessing(_ context.Context, id string, progress int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, service.ErrTaskNotFound
	}
	if t.Status != service.TaskStatusProcessing || progress < t.Progress {
		return false, nil
	}
	t.Progress = progress
	t.UpdatedAt = time.Now()
	return true, nil
}

// UpdateCompletedIfActive 活跃状态 -> completed，写入结果字段。
func (r *MemoryTaskRepo) UpdateCompletedIfActive(_ context.Context, id, resultURL, resultKey string, duration int, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, service.ErrTaskNotFound
	}
	if !t.Active() {
		return false, nil
	}
	t.Status = service.TaskStatusCompleted
	t.Progress = 100
	t.ResultURL = resultURL
	t.ResultKey = resultKey
	t.Duration = duration
	t.ErrorMessage = ""
	t.UpdatedAt = completedAt
	t.CompletedAt = &completedAt
	return true, nil
}

// UpdateFailedIfActive 活跃状态 -> failed。
func (r *MemoryTaskRepo) UpdateFailedIfActive(_ context.Context, id, errMsg string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, service.ErrTaskNotFound
	}
	if !t.Active() {
		return false, nil
	}
	t.Status = service.TaskStatusFailed
	t.ErrorMessage = errMsg
	t.UpdatedAt = completedAt
	t.CompletedAt = &completedAt
	return true, nil
}

// ResetPendingIfFailed failed -> pending，清空进度与错误信息并记录新冻结的积分，用于重试。
func (r *MemoryTaskRepo) ResetPendingIfFailed(_ context.Context, id string, frozenCredits int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, service.ErrTaskNotFound
	}
	if t.Status != service.TaskStatusFailed {
		return false, nil
	}
	t.Status = service.TaskStatusPending
	t.Progress = 0
	t.ErrorMessage = ""
	t.ResultURL = ""
	t.ResultKey = ""
	t.Duration = 0
	t.FrozenCredits = frozenCredits
	t.UpdatedAt = time.Now()
	t.CompletedAt = nil
	return true, nil
}
