//go:build unit

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Wei-Shaw/muse2api/internal/config"
)

// ==================== Stub: UserRepository ====================

var _ UserRepository = (*stubUserRepo)(nil)

type stubUserRepo struct {
	users     map[int64]*User
	nextID    int64
	getErr    error
	updateErr error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[int64]*User), nextID: 1}
}

func (r *stubUserRepo) addUser(u *User) *User {
	if u.ID == 0 {
		u.ID = r.nextID
		r.nextID++
	}
	r.users[u.ID] = u
	return u
}

func (r *stubUserRepo) Create(_ context.Context, user *User) error {
	r.addUser(user)
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *stubUserRepo) Update(_ context.Context, user *User) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) ListIDs(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func testCreditConfig() *config.Config {
	return &config.Config{
		Credits: config.CreditsConfig{
			FreeDaily:      10,
			ProMonthly:     500,
			PremiumMonthly: 2000,
			TaskCost:       1,
			ResetCron:      "0 0 * * *",
		},
	}
}

// ==================== Tests ====================

func TestCreditService_FreezeAndCommit(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.addUser(&User{Plan: PlanFree, PermanentCredits: 2, RenewableCredits: 3})
	svc := NewCreditService(repo, testCreditConfig())
	ctx := context.Background()

	require.NoError(t, svc.Freeze(ctx, user.ID, 4))
	require.EqualValues(t, 4, user.FrozenCredits)
	require.EqualValues(t, 1, user.AvailableCredits())
	// 冻结不动池子
	require.EqualValues(t, 2, user.PermanentCredits)
	require.EqualValues(t, 3, user.RenewableCredits)

	// 实扣：renewable 先扣，溢出部分落到 permanent
	require.NoError(t, svc.Commit(ctx, user.ID, 4))
	require.EqualValues(t, 0, user.FrozenCredits)
	require.EqualValues(t, 0, user.RenewableCredits)
	require.EqualValues(t, 1, user.PermanentCredits)
}

func TestCreditService_FreezeInsufficient(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.addUser(&User{Plan: PlanFree, RenewableCredits: 2})
	svc := NewCreditService(repo, testCreditConfig())

	err := svc.Freeze(context.Background(), user.ID, 3)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCreditInsufficient)

	var insufficient *CreditInsufficientError
	require.True(t, errors.As(err, &insufficient))
	require.EqualValues(t, 2, insufficient.Available)
	require.EqualValues(t, 3, insufficient.Required)
	// 失败时不得留下冻结
	require.EqualValues(t, 0, user.FrozenCredits)
}

func TestCreditService_Release(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.addUser(&User{Plan: PlanPro, RenewableCredits: 500, FrozenCredits: 3})
	svc := NewCreditService(repo, testCreditConfig())

	require.NoError(t, svc.Release(context.Background(), user.ID, 2))
	require.EqualValues(t, 1, user.FrozenCredits)
	require.EqualValues(t, 500, user.RenewableCredits)

	// 超出冻结量的 release 截断到现有冻结
	require.NoError(t, svc.Release(context.Background(), user.ID, 5))
	require.EqualValues(t, 0, user.FrozenCredits)
}

func TestCreditService_PlanCreditsAndNextReset(t *testing.T) {
	svc := NewCreditService(newStubUserRepo(), testCreditConfig())

	require.EqualValues(t, 10, svc.PlanCredits(PlanFree))
	require.EqualValues(t, 500, svc.PlanCredits(PlanPro))
	require.EqualValues(t, 2000, svc.PlanCredits(PlanPremium))

	now := time.Date(2025, 6, 15, 13, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), svc.NextReset(PlanFree, now))
	require.Equal(t, now.AddDate(0, 1, 0), svc.NextReset(PlanPro, now))
}

func TestCreditService_ResetSweep(t *testing.T) {
	repo := newStubUserRepo()
	due := repo.addUser(&User{Plan: PlanFree, RenewableCredits: 0, NextResetAt: time.Now().Add(-time.Hour)})
	notDue := repo.addUser(&User{Plan: PlanPro, RenewableCredits: 7, NextResetAt: time.Now().Add(time.Hour)})
	svc := NewCreditService(repo, testCreditConfig())

	svc.runResetSweep(context.Background())

	require.EqualValues(t, 10, due.RenewableCredits)
	require.True(t, due.NextResetAt.After(time.Now()))
	require.EqualValues(t, 7, notDue.RenewableCredits)
}

func TestCreditService_Balance(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.addUser(&User{Plan: PlanPro, PermanentCredits: 5, RenewableCredits: 100, FrozenCredits: 2})
	svc := NewCreditService(repo, testCreditConfig())

	info, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 103, info.Available())
	require.Equal(t, PlanPro, info.Plan)
}
