package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/imroc/req/v3"

	"github.com/Wei-Shaw/muse2api/internal/config"
	infraerrors "github.com/Wei-Shaw/muse2api/internal/pkg/errors"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// NewBillingClient 创建上游支付平台客户端。未配置 base_url 时返回 nil，
// 订阅服务据此降级为 mock 模式。
func NewBillingClient(cfg config.BillingConfig) service.BillingClient {
	if cfg.BaseURL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetCommonBearerAuthToken(cfg.APIKey)
	return &billingClient{client: client}
}

type billingClient struct {
	client *req.Client
}

type billingSessionResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

func (b *billingClient) CreateCheckoutSession(ctx context.Context, user *service.User, planID, successURL, cancelURL string) (string, error) {
	var result billingSessionResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(map[string]any{
			"customer_ref": user.BillingRef,
			"email":        user.Email,
			"plan":         planID,
			"success_url":  successURL,
			"cancel_url":   cancelURL,
		}).
		SetSuccessResult(&result).
		Post("/v1/checkout/sessions")
	if err != nil {
		return "", infraerrors.Newf(http.StatusBadGateway, "BILLING_REQUEST_FAILED", "request failed: %v", err)
	}
	if !resp.IsSuccessState() {
		return "", infraerrors.Newf(http.StatusBadGateway, "BILLING_CHECKOUT_FAILED", "checkout failed: status %d, body: %s", resp.StatusCode, resp.String())
	}
	return result.URL, nil
}

func (b *billingClient) CreatePortalSession(ctx context.Context, user *service.User, returnURL string) (string, error) {
	var result billingSessionResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(map[string]any{
			"customer_ref": user.BillingRef,
			"return_url":   returnURL,
		}).
		SetSuccessResult(&result).
		Post("/v1/portal/sessions")
	if err != nil {
		return "", infraerrors.Newf(http.StatusBadGateway, "BILLING_REQUEST_FAILED", "request failed: %v", err)
	}
	if !resp.IsSuccessState() {
		return "", infraerrors.Newf(http.StatusBadGateway, "BILLING_PORTAL_FAILED", "portal failed: status %d, body: %s", resp.StatusCode, resp.String())
	}
	return result.URL, nil
}
