//go:build unit

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Wei-Shaw/muse2api/internal/config"
)

// ==================== Stub: TaskRepository ====================

var _ TaskRepository = (*stubTaskRepo)(nil)

type stubTaskRepo struct {
	tasks     map[string]*GenerationTask
	order     []string // 头插，最新在前
	createErr error
}

func newStubTaskRepo() *stubTaskRepo {
	return &stubTaskRepo{tasks: make(map[string]*GenerationTask)}
}

func (r *stubTaskRepo) Create(_ context.Context, task *GenerationTask) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.tasks[task.ID] = task
	r.order = append([]string{task.ID}, r.order...)
	return nil
}

func (r *stubTaskRepo) GetByID(_ context.Context, id string) (*GenerationTask, error) {
	if task, ok := r.tasks[id]; ok {
		return task, nil
	}
	return nil, ErrTaskNotFound
}

func (r *stubTaskRepo) Update(_ context.Context, task *GenerationTask) error {
	r.tasks[task.ID] = task
	return nil
}

func (r *stubTaskRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(r.tasks, id)
	for i, tid := range r.order {
		if tid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *stubTaskRepo) List(_ context.Context, params TaskListParams) ([]*GenerationTask, int64, error) {
	var out []*GenerationTask
	for _, id := range r.order {
		task := r.tasks[id]
		if task.UserID != params.UserID {
			continue
		}
		if params.Status != "" && task.Status != params.Status {
			continue
		}
		out = append(out, task)
	}
	return out, int64(len(out)), nil
}

func (r *stubTaskRepo) CountByUserAndStatus(_ context.Context, userID int64, statuses []string) (int64, error) {
	var n int64
	for _, task := range r.tasks {
		if task.UserID != userID {
			continue
		}
		for _, s := range statuses {
			if task.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

// ==================== Stub: TaskRunner ====================

type stubRunner struct {
	launched []string
	halted   []string
}

func (r *stubRunner) Launch(task *GenerationTask) { r.launched = append(r.launched, task.ID) }

func (r *stubRunner) Halt(taskID string) bool {
	r.halted = append(r.halted, taskID)
	return true
}

// ==================== Fixture ====================

func newTaskFixture(t *testing.T, credits int64) (*TaskService, *stubTaskRepo, *stubRunner, *User) {
	t.Helper()
	userRepo := newStubUserRepo()
	user := userRepo.addUser(&User{Plan: PlanFree, RenewableCredits: credits})
	cfg := testCreditConfig()
	creditService := NewCreditService(userRepo, cfg)
	taskRepo := newStubTaskRepo()
	runner := &stubRunner{}
	svc := NewTaskService(taskRepo, creditService, NewTaskEventHub(), nil, nil, cfg)
	svc.SetRunner(runner)
	return svc, taskRepo, runner, user
}

// ==================== Tests ====================

func TestTaskService_CreateFreezesAndLaunches(t *testing.T) {
	svc, _, runner, user := newTaskFixture(t, 5)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "  sunset drone footage  "})
	require.NoError(t, err)
	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, 0, task.Progress)
	require.Equal(t, "sunset drone footage", task.VideoDescription)
	require.EqualValues(t, 1, user.FrozenCredits)
	require.Equal(t, []string{task.ID}, runner.launched)

	second, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "second"})
	require.NoError(t, err)

	// 最新在前
	list, total, err := svc.List(ctx, user.ID, "", 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, task.ID, list[1].ID)
}

func TestTaskService_CreateInsufficientCredits(t *testing.T) {
	svc, repo, runner, user := newTaskFixture(t, 0)

	_, err := svc.Create(context.Background(), user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.ErrorIs(t, err, ErrCreditInsufficient)
	require.Empty(t, repo.tasks)
	require.Empty(t, runner.launched)
}

func TestTaskService_CreateRepoFailureReleasesCredits(t *testing.T) {
	svc, repo, runner, user := newTaskFixture(t, 5)
	repo.createErr = context.DeadlineExceeded

	_, err := svc.Create(context.Background(), user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.Error(t, err)
	// 失败不留任务、不留冻结
	require.Empty(t, repo.tasks)
	require.EqualValues(t, 0, user.FrozenCredits)
	require.Empty(t, runner.launched)
}

func TestTaskService_CreateRejectsUnknownFileKey(t *testing.T) {
	svc, _, _, user := newTaskFixture(t, 5)
	svc.uploads = rejectAllSlots{}

	_, err := svc.Create(context.Background(), user.ID, CreateTaskInput{
		VideoDescription: "demo",
		VideoFileKey:     "uploads/999/x.mp4",
	})
	require.ErrorIs(t, err, ErrUploadNotValidated)
	require.EqualValues(t, 0, user.FrozenCredits)
}

type rejectAllSlots struct{}

func (rejectAllSlots) ValidateFileKey(int64, string) bool { return false }

func TestTaskService_CreateActiveTaskCap(t *testing.T) {
	userRepo := newStubUserRepo()
	user := userRepo.addUser(&User{Plan: PlanFree, RenewableCredits: 5})
	other := userRepo.addUser(&User{Plan: PlanFree, RenewableCredits: 5})
	cfg := testCreditConfig()
	cfg.Tasks.MaxActive = 1
	svc := NewTaskService(newStubTaskRepo(), NewCreditService(userRepo, cfg), NewTaskEventHub(), nil, nil, cfg)
	svc.SetRunner(&stubRunner{})
	ctx := context.Background()

	first, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "first"})
	require.NoError(t, err)

	// stubRunner 不推进，首个任务停在 pending，占满配额
	_, err = svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "second"})
	require.ErrorIs(t, err, ErrTooManyActiveTasks)
	// 被拒绝的提交不冻结积分
	require.EqualValues(t, 1, user.FrozenCredits)

	// 配额按用户隔离
	_, err = svc.Create(ctx, other.ID, CreateTaskInput{VideoDescription: "other user"})
	require.NoError(t, err)

	// 首个任务取消后配额释放
	require.NoError(t, svc.Cancel(ctx, user.ID, first.ID))
	_, err = svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "after cancel"})
	require.NoError(t, err)
}

// ==================== Stub: MediaStore ====================

type stubMediaStore struct {
	deleted [][]string
}

func (s *stubMediaStore) Configured() bool { return true }

func (s *stubMediaStore) GetAccessURL(_ context.Context, objectKey string) (string, error) {
	return "https://cdn.example.com/" + objectKey, nil
}

func (s *stubMediaStore) DeleteObjects(_ context.Context, objectKeys []string) error {
	s.deleted = append(s.deleted, objectKeys)
	return nil
}

func TestTaskService_CancelRemovesStoredObjects(t *testing.T) {
	userRepo := newStubUserRepo()
	user := userRepo.addUser(&User{Plan: PlanFree, RenewableCredits: 5})
	cfg := testCreditConfig()
	taskRepo := newStubTaskRepo()
	store := &stubMediaStore{}
	svc := NewTaskService(taskRepo, NewCreditService(userRepo, cfg), NewTaskEventHub(), store, nil, cfg)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{
		VideoDescription: "with video",
		VideoFileKey:     "uploads/1/2026/08/31/v.mp4",
	})
	require.NoError(t, err)
	taskRepo.tasks[task.ID].ResultKey = "results/1/2026/08/31/music.mp3"

	require.NoError(t, svc.Cancel(ctx, user.ID, task.ID))
	require.Equal(t, [][]string{{
		"uploads/1/2026/08/31/v.mp4",
		"results/1/2026/08/31/music.mp3",
	}}, store.deleted)
}

func TestTaskService_ResolveDownloadPrefersStorage(t *testing.T) {
	userRepo := newStubUserRepo()
	user := userRepo.addUser(&User{Plan: PlanFree, RenewableCredits: 5})
	cfg := testCreditConfig()
	taskRepo := newStubTaskRepo()
	svc := NewTaskService(taskRepo, NewCreditService(userRepo, cfg), NewTaskEventHub(), &stubMediaStore{}, nil, cfg)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.NoError(t, err)
	stored := taskRepo.tasks[task.ID]
	stored.Status = TaskStatusCompleted
	stored.ResultKey = "results/1/music.mp3"
	stored.ResultURL = "/api/download/fallback.mp3"

	url, err := svc.ResolveDownload(ctx, user.ID, task.ID)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/results/1/music.mp3", url)
}

func TestTaskService_RetryOnlyFromFailed(t *testing.T) {
	svc, repo, runner, user := newTaskFixture(t, 5)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.NoError(t, err)

	// pending 状态不可重试
	_, err = svc.Retry(ctx, user.ID, task.ID)
	require.ErrorIs(t, err, ErrTaskNotFailed)

	now := time.Now()
	stored := repo.tasks[task.ID]
	stored.Status = TaskStatusFailed
	stored.Progress = 90
	stored.ErrorMessage = "Processing timeout occurred"
	stored.FrozenCredits = 0
	stored.CompletedAt = &now

	retried, err := svc.Retry(ctx, user.ID, task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusPending, retried.Status)
	require.Equal(t, 0, retried.Progress)
	require.Empty(t, retried.ErrorMessage)
	require.Nil(t, retried.CompletedAt)
	require.EqualValues(t, 2, user.FrozenCredits) // 创建 1 + 重试 1
	require.Len(t, runner.launched, 2)
}

func TestTaskService_CancelActiveReleasesCredits(t *testing.T) {
	svc, repo, runner, user := newTaskFixture(t, 5)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.NoError(t, err)
	require.EqualValues(t, 1, user.FrozenCredits)

	require.NoError(t, svc.Cancel(ctx, user.ID, task.ID))
	require.Equal(t, []string{task.ID}, runner.halted)
	require.EqualValues(t, 0, user.FrozenCredits)
	require.Empty(t, repo.tasks)

	// 再取消同一任务
	require.ErrorIs(t, svc.Cancel(ctx, user.ID, task.ID), ErrTaskNotFound)
}

func TestTaskService_CancelTerminalNoRefund(t *testing.T) {
	svc, repo, _, user := newTaskFixture(t, 5)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.NoError(t, err)

	stored := repo.tasks[task.ID]
	stored.Status = TaskStatusCompleted
	stored.FrozenCredits = 0
	user.FrozenCredits = 0
	user.RenewableCredits = 4 // 完成时已实扣

	require.NoError(t, svc.Cancel(ctx, user.ID, task.ID))
	require.EqualValues(t, 4, user.RenewableCredits)
	require.Empty(t, repo.tasks)
}

func TestTaskService_OwnershipChecks(t *testing.T) {
	svc, _, _, user := newTaskFixture(t, 5)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, user.ID+100, task.ID)
	require.ErrorIs(t, err, ErrTaskForbidden)
	require.ErrorIs(t, svc.Cancel(ctx, user.ID+100, task.ID), ErrTaskForbidden)
}

func TestTaskService_ResolveDownload(t *testing.T) {
	svc, repo, _, user := newTaskFixture(t, 5)
	ctx := context.Background()

	task, err := svc.Create(ctx, user.ID, CreateTaskInput{VideoDescription: "demo"})
	require.NoError(t, err)

	_, err = svc.ResolveDownload(ctx, user.ID, task.ID)
	require.ErrorIs(t, err, ErrTaskNotCompleted)

	stored := repo.tasks[task.ID]
	stored.Status = TaskStatusCompleted
	stored.ResultURL = "/api/download/music-" + task.ID + ".mp3"

	url, err := svc.ResolveDownload(ctx, user.ID, task.ID)
	require.NoError(t, err)
	require.Equal(t, stored.ResultURL, url)
}
