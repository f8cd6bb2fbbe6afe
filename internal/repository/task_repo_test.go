//go:build unit

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Wei-Shaw/muse2api/internal/service"
)

func seedTasks(t *testing.T, repo *MemoryTaskRepo, userID int64, n int) []*service.GenerationTask {
	t.Helper()
	tasks := make([]*service.GenerationTask, 0, n)
	for i := 0; i < n; i++ {
		task := &service.GenerationTask{
			ID:        fmt.Sprintf("task-%d", i),
			UserID:    userID,
			Status:    service.TaskStatusPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, repo.Create(context.Background(), task))
		tasks = append(tasks, task)
	}
	return tasks
}

func TestMemoryTaskRepo_CountByUserAndStatus(t *testing.T) {
	repo := NewMemoryTaskRepo()
	ctx := context.Background()
	tasks := seedTasks(t, repo, 1, 3)
	seedTasks(t, repo, 2, 0)

	// 一条推进到 processing，一条完成
	ok, err := repo.UpdateProcessingIfPending(ctx, tasks[0].ID, 10)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.UpdateCompletedIfActive(ctx, tasks[1].ID, "/api/download/a.mp3", "", 30, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	active := []string{service.TaskStatusPending, service.TaskStatusProcessing}
	n, err := repo.CountByUserAndStatus(ctx, 1, active)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = repo.CountByUserAndStatus(ctx, 1, []string{service.TaskStatusCompleted})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// 其他用户不受影响
	n, err = repo.CountByUserAndStatus(ctx, 2, active)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestMemoryTaskRepo_ListNewestFirst(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 3)

	list, total, err := repo.List(context.Background(), service.TaskListParams{UserID: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, "task-2", list[0].ID)
	require.Equal(t, "task-1", list[1].ID)
	require.Equal(t, "task-0", list[2].ID)
}

func TestMemoryTaskRepo_ListPagination(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 5)
	ctx := context.Background()

	page, total, err := repo.List(ctx, service.TaskListParams{UserID: 1, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	require.Equal(t, "task-2", page[0].ID)
	require.Equal(t, "task-1", page[1].ID)

	// 越界 offset 返回空页但 total 不变
	page, total, err = repo.List(ctx, service.TaskListParams{UserID: 1, Limit: 2, Offset: 10})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Empty(t, page)
}

func TestMemoryTaskRepo_ListStatusFilter(t *testing.T) {
	repo := NewMemoryTaskRepo()
	tasks := seedTasks(t, repo, 1, 3)
	ctx := context.Background()

	failed := *tasks[1]
	failed.Status = service.TaskStatusFailed
	require.NoError(t, repo.Update(ctx, &failed))

	list, total, err := repo.List(ctx, service.TaskListParams{UserID: 1, Status: service.TaskStatusFailed})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, tasks[1].ID, list[0].ID)
}

func TestMemoryTaskRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 1)
	ctx := context.Background()

	got, err := repo.GetByID(ctx, "task-0")
	require.NoError(t, err)
	got.Status = service.TaskStatusFailed

	again, err := repo.GetByID(ctx, "task-0")
	require.NoError(t, err)
	require.Equal(t, service.TaskStatusPending, again.Status)
}

func TestMemoryTaskRepo_DuplicateID(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 1)

	err := repo.Create(context.Background(), &service.GenerationTask{ID: "task-0", UserID: 1})
	require.Error(t, err)
}

func TestMemoryTaskRepo_Delete(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 2)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, "task-0"))
	require.ErrorIs(t, repo.Delete(ctx, "task-0"), service.ErrTaskNotFound)

	list, total, err := repo.List(ctx, service.TaskListParams{UserID: 1})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "task-1", list[0].ID)
}

func TestMemoryTaskRepo_ConditionalGuards(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 1)
	ctx := context.Background()
	id := "task-0"

	// pending -> processing 只成功一次
	ok, err := repo.UpdateProcessingIfPending(ctx, id, 10)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.UpdateProcessingIfPending(ctx, id, 10)
	require.NoError(t, err)
	require.False(t, ok)

	// 进度不回退
	ok, err = repo.UpdateProgressIfProcessing(ctx, id, 50)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.UpdateProgressIfProcessing(ctx, id, 25)
	require.NoError(t, err)
	require.False(t, ok)

	// 终态收口
	ok, err = repo.UpdateCompletedIfActive(ctx, id, "/api/download/music-task-0.mp3", "", 30, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.UpdateFailedIfActive(ctx, id, "boom", time.Now())
	require.NoError(t, err)
	require.False(t, ok)

	task, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, service.TaskStatusCompleted, task.Status)
	require.Equal(t, 100, task.Progress)

	// completed 不允许重试复位
	ok, err = repo.ResetPendingIfFailed(ctx, id, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryTaskRepo_ResetPendingIfFailed(t *testing.T) {
	repo := NewMemoryTaskRepo()
	seedTasks(t, repo, 1, 1)
	ctx := context.Background()
	id := "task-0"

	_, err := repo.UpdateProcessingIfPending(ctx, id, 10)
	require.NoError(t, err)
	ok, err := repo.UpdateFailedIfActive(ctx, id, "Processing timeout occurred", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ResetPendingIfFailed(ctx, id, 2)
	require.NoError(t, err)
	require.True(t, ok)

	task, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, service.TaskStatusPending, task.Status)
	require.Equal(t, 0, task.Progress)
	require.Empty(t, task.ErrorMessage)
	require.Nil(t, task.CompletedAt)
	require.EqualValues(t, 2, task.FrozenCredits)
}
