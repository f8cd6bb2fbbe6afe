package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wei-Shaw/muse2api/internal/service"
)

// MemoryUserRepo 内存用户存储。积分的冻结/提交/释放在锁内完成，
// 保证并发创建任务时不会超扣。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[int64]*service.User
	byEmail map[string]int64
	nextID  atomic.Int64
}

// NewMemoryUserRepo 创建内存用户存储。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[int64]*service.User),
		byEmail: make(map[string]int64),
	}
}

func cloneUser(u *service.User) *service.User {
	cp := *u
	return &cp
}

// Create 插入用户，ID 为空时自动分配。
func (r *MemoryUserRepo) Create(_ context.Context, user *service.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID.Add(1)
	}
	if _, exists := r.byID[user.ID]; exists {
		return errors.New("user id already exists")
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return errors.New("email already registered")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	r.byID[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID 按 ID 查询。
func (r *MemoryUserRepo) GetByID(_ context.Context, id int64) (*service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetByEmail 按邮箱查询。
func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

// Update 整条覆盖。不触碰积分字段的调用方应先读再写。
func (r *MemoryUserRepo) Update(_ context.Context, user *service.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[user.ID]
	if !ok {
		return service.ErrUserNotFound
	}
	if old.Email != user.Email {
		delete(r.byEmail, old.Email)
		r.byEmail[user.Email] = user.ID
	}
	r.byID[user.ID] = cloneUser(user)
	return nil
}

// ListIDs 返回全部用户 ID，供定时重置遍历。
func (r *MemoryUserRepo) ListIDs(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids, nil
}

// ---- 积分原子操作 ----

// FreezeCredits 可用积分充足时冻结 amount，否则返回 ErrCreditInsufficient。
// 冻结只增加 frozen 计数，不挪动池子。
func (r *MemoryUserRepo) FreezeCredits(_ context.Context, userID, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return 0, service.ErrUserNotFound
	}
	available := u.AvailableCredits()
	if available < amount {
		return available, service.ErrCreditInsufficient
	}
	u.FrozenCredits += amount
	return u.AvailableCredits(), nil
}

// CommitFrozenCredits 解冻并实扣积分（任务成功完成），renewable 池优先。
func (r *MemoryUserRepo) CommitFrozenCredits(_ context.Context, userID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return service.ErrUserNotFound
	}
	if u.FrozenCredits < amount {
		amount = u.FrozenCredits
	}
	u.FrozenCredits -= amount
	if u.RenewableCredits >= amount {
		u.RenewableCredits -= amount
		return nil
	}
	remainder := amount - u.RenewableCredits
	u.RenewableCredits = 0
	u.PermanentCredits -= remainder
	if u.PermanentCredits < 0 {
		u.PermanentCredits = 0
	}
	return nil
}

// ReleaseFrozenCredits 解冻积分（任务失败或取消），池子不动。
func (r *MemoryUserRepo) ReleaseFrozenCredits(_ context.Context, userID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return service.ErrUserNotFound
	}
	if u.FrozenCredits < amount {
		amount = u.FrozenCredits
	}
	u.FrozenCredits -= amount
	return nil
}

// ResetCredits 将 renewable 池重置为 amount 并更新下次重置时间。
// permanent 与 frozen 不动。
func (r *MemoryUserRepo) ResetCredits(_ context.Context, userID, amount int64, nextResetAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return service.ErrUserNotFound
	}
	u.RenewableCredits = amount
	u.NextResetAt = nextResetAt
	return nil
}
