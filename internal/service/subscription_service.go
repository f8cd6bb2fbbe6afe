package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// ErrUnknownPlan 表示计划 ID 不存在。
var ErrUnknownPlan = errors.New("unknown subscription plan")

// ErrBillingUnavailable 表示上游支付平台未配置。
var ErrBillingUnavailable = errors.New("billing upstream not configured")

// SubscriptionPlan 订阅计划目录项。
type SubscriptionPlan struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"priceCents"`
	Currency   string   `json:"currency"`
	Credits    int64    `json:"credits"`
	Interval   string   `json:"interval"` // day / month
	Features   []string `json:"features"`
}

// SubscriptionInfo 用户当前的订阅状态。
type SubscriptionInfo struct {
	Plan        string    `json:"plan"`
	PlanName    string    `json:"planName"`
	Credits     int64     `json:"credits"`
	Total       int64     `json:"totalCredits"`
	NextResetAt time.Time `json:"nextResetAt"`
	Active      bool      `json:"active"`
}

// BillingClient 上游支付平台客户端：创建 checkout 与客户门户会话。
type BillingClient interface {
	CreateCheckoutSession(ctx context.Context, user *User, planID, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, user *User, returnURL string) (string, error)
}

// SubscriptionService 管理订阅计划目录、当前订阅查询与支付跳转。
type SubscriptionService struct {
	userRepo      UserRepository
	creditService *CreditService
	billing       BillingClient
	cfg           *config.Config
}

// NewSubscriptionService 创建订阅服务。billing 可为 nil（未接入支付平台）。
func NewSubscriptionService(
	userRepo UserRepository,
	creditService *CreditService,
	billing BillingClient,
	cfg *config.Config,
) *SubscriptionService {
	return &SubscriptionService{
		userRepo:      userRepo,
		creditService: creditService,
		billing:       billing,
		cfg:           cfg,
	}
}

// Plans 返回计划目录。
func (s *SubscriptionService) Plans() []SubscriptionPlan {
	return []SubscriptionPlan{
		{
			ID: PlanFree, Name: "Free", PriceCents: 0, Currency: "usd",
			Credits: s.cfg.Credits.FreeDaily, Interval: "day",
			Features: []string{"每日免费积分", "标准生成队列"},
		},
		{
			ID: PlanPro, Name: "Pro", PriceCents: 999, Currency: "usd",
			Credits: s.cfg.Credits.ProMonthly, Interval: "month",
			Features: []string{"每月积分额度", "优先生成队列", "高品质音频"},
		},
		{
			ID: PlanPremium, Name: "Premium", PriceCents: 2999, Currency: "usd",
			Credits: s.cfg.Credits.PremiumMonthly, Interval: "month",
			Features: []string{"每月积分额度", "最高优先级", "高品质音频", "商用授权"},
		},
	}
}

func (s *SubscriptionService) planByID(id string) (SubscriptionPlan, bool) {
	for _, p := range s.Plans() {
		if p.ID == id {
			return p, true
		}
	}
	return SubscriptionPlan{}, false
}

// Current 查询用户当前订阅。
func (s *SubscriptionService) Current(ctx context.Context, userID int64) (*SubscriptionInfo, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	plan, _ := s.planByID(user.Plan)
	return &SubscriptionInfo{
		Plan:        user.Plan,
		PlanName:    plan.Name,
		Credits:     user.AvailableCredits(),
		Total:       s.creditService.PlanCredits(user.Plan),
		NextResetAt: user.NextResetAt,
		Active:      user.Plan != PlanFree,
	}, nil
}

// Checkout 创建升级到 planID 的支付会话，返回跳转 URL。
func (s *SubscriptionService) Checkout(ctx context.Context, userID int64, planID string) (string, error) {
	plan, ok := s.planByID(planID)
	if !ok {
		return "", ErrUnknownPlan
	}
	if plan.PriceCents == 0 {
		return "", fmt.Errorf("%w: 免费计划无需支付", ErrUnknownPlan)
	}
	if s.billing == nil {
		return "", ErrBillingUnavailable
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.billing.CreateCheckoutSession(ctx, user, planID, s.cfg.Billing.SuccessURL, s.cfg.Billing.CancelURL)
	if err != nil {
		return "", err
	}
	logger.LegacyPrintf("service.subscription", "[Subscription] 创建 checkout user=%d plan=%s", userID, planID)
	return url, nil
}

// Portal 创建客户门户会话（管理/取消订阅），返回跳转 URL。
func (s *SubscriptionService) Portal(ctx context.Context, userID int64) (string, error) {
	if s.billing == nil {
		return "", ErrBillingUnavailable
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.billing.CreatePortalSession(ctx, user, s.cfg.Billing.SuccessURL)
}

// ApplyPlan 将用户切换到 planID 并立即发放该计划额度。
// 由支付回调或 mock 模式下的升级接口调用。
func (s *SubscriptionService) ApplyPlan(ctx context.Context, userID int64, planID string) error {
	if _, ok := s.planByID(planID); !ok {
		return ErrUnknownPlan
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.Plan = planID
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	if err := s.creditService.ResetForPlan(ctx, userID, planID); err != nil {
		return err
	}
	logger.LegacyPrintf("service.subscription", "[Subscription] 切换计划 user=%d plan=%s", userID, planID)
	return nil
}
