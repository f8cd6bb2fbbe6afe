package routes

import (
	"github.com/Wei-Shaw/muse2api/internal/handler"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterBillingRoutes 注册积分与订阅路由（需要用户认证）。
// /credits 与 /subscriptions 返回裸 JSON，是前端最早接入的两个接口，响应格式保持不变。
func RegisterBillingRoutes(
	v1 *gin.RouterGroup,
	h *handler.Handlers,
	jwtAuth middleware.JWTAuthMiddleware,
) {
	authenticated := v1.Group("")
	authenticated.Use(gin.HandlerFunc(jwtAuth))
	{
		authenticated.GET("/credits", h.Credit.GetCredits)
		authenticated.GET("/subscriptions", h.Credit.GetSubscription)
		authenticated.GET("/subscriptions/plans", h.Subscription.ListPlans)
		authenticated.POST("/subscriptions/checkout", h.Subscription.Checkout)
		authenticated.POST("/subscriptions/portal", h.Subscription.Portal)
		authenticated.GET("/users/me/subscription", h.Credit.GetMySubscription)
	}
}
