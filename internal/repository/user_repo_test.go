//go:build unit

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Wei-Shaw/muse2api/internal/service"
)

func TestMemoryUserRepo_CreateAndLookup(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	user := &service.User{Email: "a@example.com", Plan: service.PlanFree}
	require.NoError(t, repo.Create(ctx, user))
	require.NotZero(t, user.ID)

	byEmail, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)

	// 重复邮箱拒绝
	require.Error(t, repo.Create(ctx, &service.User{Email: "a@example.com"}))

	_, err = repo.GetByID(ctx, 999)
	require.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestMemoryUserRepo_FreezeCredits(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &service.User{Email: "a@example.com", PermanentCredits: 2, RenewableCredits: 3}
	require.NoError(t, repo.Create(ctx, user))

	available, err := repo.FreezeCredits(ctx, user.ID, 4)
	require.NoError(t, err)
	require.EqualValues(t, 1, available)

	// 冻结不动池子
	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, stored.PermanentCredits)
	require.EqualValues(t, 3, stored.RenewableCredits)
	require.EqualValues(t, 4, stored.FrozenCredits)

	// 余额不足
	available, err = repo.FreezeCredits(ctx, user.ID, 2)
	require.ErrorIs(t, err, service.ErrCreditInsufficient)
	require.EqualValues(t, 1, available)
}

func TestMemoryUserRepo_CommitRenewableFirst(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &service.User{Email: "a@example.com", PermanentCredits: 2, RenewableCredits: 3}
	require.NoError(t, repo.Create(ctx, user))

	_, err := repo.FreezeCredits(ctx, user.ID, 4)
	require.NoError(t, err)
	require.NoError(t, repo.CommitFrozenCredits(ctx, user.ID, 4))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.FrozenCredits)
	require.EqualValues(t, 0, stored.RenewableCredits)
	require.EqualValues(t, 1, stored.PermanentCredits)
}

func TestMemoryUserRepo_CommitClampedToFrozen(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &service.User{Email: "a@example.com", RenewableCredits: 10}
	require.NoError(t, repo.Create(ctx, user))

	_, err := repo.FreezeCredits(ctx, user.ID, 1)
	require.NoError(t, err)
	// 提交量超过冻结量时按冻结量截断
	require.NoError(t, repo.CommitFrozenCredits(ctx, user.ID, 5))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.FrozenCredits)
	require.EqualValues(t, 9, stored.RenewableCredits)
}

func TestMemoryUserRepo_ReleaseKeepsPools(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &service.User{Email: "a@example.com", RenewableCredits: 10}
	require.NoError(t, repo.Create(ctx, user))

	_, err := repo.FreezeCredits(ctx, user.ID, 3)
	require.NoError(t, err)
	require.NoError(t, repo.ReleaseFrozenCredits(ctx, user.ID, 3))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.FrozenCredits)
	require.EqualValues(t, 10, stored.RenewableCredits)
}

func TestMemoryUserRepo_ResetCredits(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &service.User{Email: "a@example.com", PermanentCredits: 5, RenewableCredits: 1, FrozenCredits: 1}
	require.NoError(t, repo.Create(ctx, user))

	next := time.Now().Add(24 * time.Hour)
	require.NoError(t, repo.ResetCredits(ctx, user.ID, 10, next))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, stored.RenewableCredits)
	// permanent 与 frozen 不参与重置
	require.EqualValues(t, 5, stored.PermanentCredits)
	require.EqualValues(t, 1, stored.FrozenCredits)
	require.True(t, stored.NextResetAt.Equal(next))
}

func TestMemoryUserRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &service.User{Email: "a@example.com", RenewableCredits: 10}
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	got.RenewableCredits = 0

	again, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, again.RenewableCredits)
}
