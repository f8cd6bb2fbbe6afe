package service

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound 用户不存在。
var ErrUserNotFound = errors.New("user not found")

// User 用户账户。积分分三个口径：
//   - PermanentCredits：买断/赠送的永久积分，不随周期重置；
//   - RenewableCredits：订阅计划按周期发放的积分，到期整体重置；
//   - FrozenCredits：进行中任务冻结的积分。
//
// 可用积分 = permanent + renewable − frozen。冻结不挪动池子，
// 任务完成时才从池中实扣（renewable 优先），失败或取消则解冻。
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Plan              string    `json:"plan"` // free / pro / premium
	PermanentCredits  int64     `json:"permanent_credits"`
	RenewableCredits  int64     `json:"renewable_credits"`
	FrozenCredits     int64     `json:"frozen_credits"`
	NextResetAt       time.Time `json:"next_reset_at"`
	BillingRef        string    `json:"-"` // 上游支付平台的客户标识
	CreatedAt         time.Time `json:"created_at"`
}

// AvailableCredits 当前可用积分。
func (u *User) AvailableCredits() int64 {
	return u.PermanentCredits + u.RenewableCredits - u.FrozenCredits
}

// 订阅计划常量
const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanPremium = "premium"
)

// UserRepository 用户存储接口。
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	ListIDs(ctx context.Context) ([]int64, error)
}
