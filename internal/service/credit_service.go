package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// ErrCreditInsufficient 表示可用积分不足。
var ErrCreditInsufficient = errors.New("credit insufficient")

// CreditInsufficientError 包含积分不足的上下文信息。
type CreditInsufficientError struct {
	Available int64
	Required  int64
}

func (e *CreditInsufficientError) Error() string {
	if e == nil {
		return "积分不足"
	}
	return fmt.Sprintf("积分不足（可用 %d / 需要 %d）", e.Available, e.Required)
}

func (e *CreditInsufficientError) Unwrap() error { return ErrCreditInsufficient }

type creditAtomicUserRepository interface {
	FreezeCredits(ctx context.Context, userID, amount int64) (int64, error)
	CommitFrozenCredits(ctx context.Context, userID, amount int64) error
	ReleaseFrozenCredits(ctx context.Context, userID, amount int64) error
	ResetCredits(ctx context.Context, userID, amount int64, nextResetAt time.Time) error
}

// CreditService 管理用户积分：冻结/扣除/返还，以及按计划的周期重置。
// 免费档每日重置，付费档按订阅周期（每月）重置。
type CreditService struct {
	userRepo UserRepository
	cfg      *config.Config
	cron     *cron.Cron
}

// NewCreditService 创建积分服务。
func NewCreditService(userRepo UserRepository, cfg *config.Config) *CreditService {
	return &CreditService{userRepo: userRepo, cfg: cfg}
}

// CreditInfo 返回给客户端的积分信息。
// 可用积分 = permanentCredits + renewableCredits − frozenCredits。
type CreditInfo struct {
	PermanentCredits int64     `json:"permanentCredits"`
	RenewableCredits int64     `json:"renewableCredits"`
	FrozenCredits    int64     `json:"frozenCredits"`
	NextResetTime    time.Time `json:"nextResetTime"`
	Plan             string    `json:"plan"`
}

// Available 当前可用积分。
func (c *CreditInfo) Available() int64 {
	return c.PermanentCredits + c.RenewableCredits - c.FrozenCredits
}

// PlanCredits 某计划每个周期发放的积分额度。
func (s *CreditService) PlanCredits(plan string) int64 {
	switch plan {
	case PlanPro:
		return s.cfg.Credits.ProMonthly
	case PlanPremium:
		return s.cfg.Credits.PremiumMonthly
	default:
		return s.cfg.Credits.FreeDaily
	}
}

// NextReset 某计划从 now 起的下次额度重置时间。
func (s *CreditService) NextReset(plan string, now time.Time) time.Time {
	if plan == PlanFree {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	}
	return now.UTC().AddDate(0, 1, 0)
}

// Balance 查询用户积分余额。
func (s *CreditService) Balance(ctx context.Context, userID int64) (*CreditInfo, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &CreditInfo{
		PermanentCredits: user.PermanentCredits,
		RenewableCredits: user.RenewableCredits,
		FrozenCredits:    user.FrozenCredits,
		NextResetTime:    user.NextResetAt,
		Plan:             user.Plan,
	}, nil
}

// Freeze 冻结 amount 积分。可用积分不足时返回 *CreditInsufficientError。
func (s *CreditService) Freeze(ctx context.Context, userID, amount int64) error {
	if atomic, ok := s.userRepo.(creditAtomicUserRepository); ok {
		available, err := atomic.FreezeCredits(ctx, userID, amount)
		if errors.Is(err, ErrCreditInsufficient) {
			return &CreditInsufficientError{Available: available, Required: amount}
		}
		return err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.AvailableCredits() < amount {
		return &CreditInsufficientError{Available: user.AvailableCredits(), Required: amount}
	}
	user.FrozenCredits += amount
	return s.userRepo.Update(ctx, user)
}

// Commit 扣除冻结积分（任务完成）。
func (s *CreditService) Commit(ctx context.Context, userID, amount int64) error {
	if atomic, ok := s.userRepo.(creditAtomicUserRepository); ok {
		return atomic.CommitFrozenCredits(ctx, userID, amount)
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.FrozenCredits < amount {
		amount = user.FrozenCredits
	}
	user.FrozenCredits -= amount
	if user.RenewableCredits >= amount {
		user.RenewableCredits -= amount
	} else {
		remainder := amount - user.RenewableCredits
		user.RenewableCredits = 0
		user.PermanentCredits -= remainder
		if user.PermanentCredits < 0 {
			user.PermanentCredits = 0
		}
	}
	return s.userRepo.Update(ctx, user)
}

// Release 解冻返还积分（任务失败或取消）。
func (s *CreditService) Release(ctx context.Context, userID, amount int64) error {
	if atomic, ok := s.userRepo.(creditAtomicUserRepository); ok {
		return atomic.ReleaseFrozenCredits(ctx, userID, amount)
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.FrozenCredits < amount {
		amount = user.FrozenCredits
	}
	user.FrozenCredits -= amount
	return s.userRepo.Update(ctx, user)
}

// ResetForPlan 切换计划后立即发放该计划的额度。
func (s *CreditService) ResetForPlan(ctx context.Context, userID int64, plan string) error {
	now := time.Now()
	amount := s.PlanCredits(plan)
	next := s.NextReset(plan, now)
	if atomic, ok := s.userRepo.(creditAtomicUserRepository); ok {
		return atomic.ResetCredits(ctx, userID, amount, next)
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.RenewableCredits = amount
	user.NextResetAt = next
	return s.userRepo.Update(ctx, user)
}

// StartResetScheduler 启动周期重置任务。cron 表达式来自配置，
// 每次触发时遍历用户，重置时间已过的补发额度。
func (s *CreditService) StartResetScheduler() error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.Credits.ResetCron, func() {
		s.runResetSweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("add reset cron: %w", err)
	}
	c.Start()
	s.cron = c
	logger.LegacyPrintf("service.credit", "[Credit] 积分重置调度已启动 cron=%s", s.cfg.Credits.ResetCron)
	return nil
}

// StopResetScheduler 停止调度并等待进行中的扫描结束。
func (s *CreditService) StopResetScheduler() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *CreditService) runResetSweep(ctx context.Context) {
	ids, err := s.userRepo.ListIDs(ctx)
	if err != nil {
		logger.L().Warn("credit.reset_sweep_list_failed", zap.Error(err))
		return
	}
	now := time.Now()
	var reset int
	for _, id := range ids {
		user, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if user.NextResetAt.After(now) {
			continue
		}
		if err := s.ResetForPlan(ctx, id, user.Plan); err != nil {
			logger.L().Warn("credit.reset_failed", zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		reset++
	}
	if reset > 0 {
		logger.LegacyPrintf("service.credit", "[Credit] 周期重置完成 users=%d", reset)
	}
}
