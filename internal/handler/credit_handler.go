package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// CreditHandler 处理积分与订阅的查询接口。
//
// 历史原因三个接口的返回格式不同：/credits 与 /subscriptions 裸返回，
// /users/me/subscription 用 success 信封。客户端 SDK 统一归一化。
type CreditHandler struct {
	creditService       *service.CreditService
	subscriptionService *service.SubscriptionService
}

// NewCreditHandler 创建积分 Handler。
func NewCreditHandler(creditService *service.CreditService, subscriptionService *service.SubscriptionService) *CreditHandler {
	return &CreditHandler{creditService: creditService, subscriptionService: subscriptionService}
}

// GetCredits 查询积分余额（裸返回，无信封）。
// GET /api/v1/credits
func (h *CreditHandler) GetCredits(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "未登录")
		return
	}
	info, err := h.creditService.Balance(c.Request.Context(), userID)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetSubscription 查询当前订阅（裸返回，无信封）。
// GET /api/v1/subscriptions
func (h *CreditHandler) GetSubscription(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "未登录")
		return
	}
	info, err := h.subscriptionService.Current(c.Request.Context(), userID)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetMySubscription 查询当前订阅（success 信封变体）。
// GET /api/v1/users/me/subscription
func (h *CreditHandler) GetMySubscription(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "未登录")
		return
	}
	info, err := h.subscriptionService.Current(c.Request.Context(), userID)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, info)
}
