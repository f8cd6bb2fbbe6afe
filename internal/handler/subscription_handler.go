package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// SubscriptionHandler 处理订阅升级与管理跳转。
type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

// NewSubscriptionHandler 创建订阅 Handler。
func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// CheckoutRequest 升级请求。
type CheckoutRequest struct {
	PlanType     string `json:"planType" binding:"required"` // pro / premium
	BillingCycle string `json:"billingCycle"`                // 目前仅 monthly
}

// ListPlans 返回计划目录。
// GET /api/v1/subscriptions/plans
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	response.Success(c, h.subscriptionService.Plans())
}

// Checkout 创建升级支付会话。未接入支付平台时直接切换计划（mock 模式），
// 返回的 checkoutUrl 指向成功页。
// POST /api/v1/subscriptions/checkout
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "未登录")
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "参数错误: "+err.Error())
		return
	}
	if req.BillingCycle != "" && req.BillingCycle != "monthly" {
		response.Error(c, http.StatusBadRequest, "暂不支持的计费周期: "+req.BillingCycle)
		return
	}

	url, err := h.subscriptionService.Checkout(c.Request.Context(), userID, req.PlanType)
	if errors.Is(err, service.ErrBillingUnavailable) {
		if err := h.subscriptionService.ApplyPlan(c.Request.Context(), userID, req.PlanType); err != nil {
			response.ErrorFrom(c, err)
			return
		}
		response.Success(c, gin.H{"checkoutUrl": "/subscription/success"})
		return
	}
	if errors.Is(err, service.ErrUnknownPlan) {
		response.Error(c, http.StatusBadRequest, "未知的订阅计划: "+req.PlanType)
		return
	}
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{"checkoutUrl": url})
}

// Portal 创建客户门户会话（管理/取消订阅）。
// POST /api/v1/subscriptions/portal
func (h *SubscriptionHandler) Portal(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "未登录")
		return
	}
	url, err := h.subscriptionService.Portal(c.Request.Context(), userID)
	if errors.Is(err, service.ErrBillingUnavailable) {
		response.Error(c, http.StatusServiceUnavailable, "未接入支付平台")
		return
	}
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{"portalUrl": url})
}
