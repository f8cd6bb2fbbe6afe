// Package musegen 是音乐生成服务的 Go 客户端：封装登录、任务提交与查询、
// 三段式文件上传流水线、积分/订阅快照与周期刷新。
//
// 服务端历史上存在两种响应信封（requestStatus 信封与 {success,data} 信封），
// 加上最早的裸 JSON 接口共三种格式，客户端在传输边界统一归一化，
// 上层只看到类型化的结果或 *APIError。
package musegen

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

const defaultTimeout = 10 * time.Second

// Client 音乐生成服务客户端。并发安全。
type Client struct {
	http    *req.Client
	tokenFn func() string
}

// Option 客户端可选配置。
type Option func(*Client)

// WithToken 使用固定的访问令牌。
func WithToken(token string) Option {
	return func(c *Client) { c.tokenFn = func() string { return token } }
}

// WithTokenProvider 每次请求动态取令牌（令牌轮换场景）。
func WithTokenProvider(fn func() string) Option {
	return func(c *Client) { c.tokenFn = fn }
}

// WithTimeout 覆盖默认 10s 超时。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// New 创建客户端。baseURL 指向服务根地址（不含 /api/v1）。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: req.C().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			// 下载接口用 302 携带结果地址，客户端自己读 Location
			SetRedirectPolicy(req.NoRedirectPolicy()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context) *req.Request {
	r := c.http.R().SetContext(ctx)
	if c.tokenFn != nil {
		if tok := c.tokenFn(); tok != "" {
			r.SetBearerAuthToken(tok)
		}
	}
	return r
}

// normalizePayload 统一三种响应格式，返回可反序列化的业务负载。
//   - requestStatus 信封：error 非空即失败；负载平铺在信封旁，整体返回
//   - {success,data} 信封：success=false 即失败；返回 data 子文档
//   - 裸 JSON：非 2xx 即失败，否则原样返回
func normalizePayload(status int, body []byte) ([]byte, error) {
	if rs := gjson.GetBytes(body, "requestStatus"); rs.Exists() {
		if code := rs.Get("error").String(); code != "" {
			return nil, &APIError{HTTPStatus: status, Code: code, Message: rs.Get("errorMessage").String()}
		}
		return body, nil
	}
	if s := gjson.GetBytes(body, "success"); s.Exists() {
		if !s.Bool() {
			return nil, &APIError{
				HTTPStatus: status,
				Code:       gjson.GetBytes(body, "code").String(),
				Message:    gjson.GetBytes(body, "message").String(),
			}
		}
		return []byte(gjson.GetBytes(body, "data").Raw), nil
	}
	if status >= http.StatusBadRequest {
		return nil, &APIError{HTTPStatus: status, Message: string(body)}
	}
	return body, nil
}

func decode(resp *req.Response, out any) error {
	body, err := resp.ToBytes()
	if err != nil {
		return fmt.Errorf("musegen: 读取响应失败: %w", err)
	}
	payload, err := normalizePayload(resp.StatusCode, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("musegen: 解析响应失败: %w", err)
	}
	return nil
}

// Login 以登录回调换取访问令牌，并把令牌装进客户端供后续请求使用。
func (c *Client) Login(ctx context.Context, email, name string) (string, error) {
	resp, err := c.request(ctx).
		SetBodyJsonMarshal(map[string]string{"email": email, "name": name}).
		Post("/api/v1/auth/login-callback")
	if err != nil {
		return "", fmt.Errorf("musegen: 登录请求失败: %w", err)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := decode(resp, &result); err != nil {
		return "", err
	}
	c.tokenFn = func() string { return result.Token }
	return result.Token, nil
}

// Generate 提交生成任务。服务端冻结一次任务积分并立即开始推进。
func (c *Client) Generate(ctx context.Context, input GenerateInput) (*Task, error) {
	resp, err := c.request(ctx).
		SetBodyJsonMarshal(input).
		Post("/api/v1/music/generate")
	if err != nil {
		return nil, fmt.Errorf("musegen: 提交请求失败: %w", err)
	}
	var result struct {
		Task *Task `json:"task"`
	}
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return result.Task, nil
}

// GetTask 查询单个任务。
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	resp, err := c.request(ctx).Get("/api/v1/music/tasks/" + taskID)
	if err != nil {
		return nil, fmt.Errorf("musegen: 查询任务失败: %w", err)
	}
	var result struct {
		Task *Task `json:"task"`
	}
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return result.Task, nil
}

// ListTasks 分页查询任务，最近创建的在前。status 为空表示全部。
func (c *Client) ListTasks(ctx context.Context, status string, page, pageSize int) (*TaskPage, error) {
	r := c.request(ctx)
	if status != "" {
		r.SetQueryParam("status", status)
	}
	if page > 0 {
		r.SetQueryParam("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		r.SetQueryParam("pageSize", strconv.Itoa(pageSize))
	}
	resp, err := r.Get("/api/v1/music/tasks")
	if err != nil {
		return nil, fmt.Errorf("musegen: 查询任务列表失败: %w", err)
	}
	var result TaskPage
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryTask 重试失败任务。仅 failed 状态可重试，其余状态服务端报错。
func (c *Client) RetryTask(ctx context.Context, taskID string) (*Task, error) {
	resp, err := c.request(ctx).Post("/api/v1/music/tasks/" + taskID + "/retry")
	if err != nil {
		return nil, fmt.Errorf("musegen: 重试任务失败: %w", err)
	}
	var result struct {
		Task *Task `json:"task"`
	}
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return result.Task, nil
}

// CancelTask 取消并移除任务。进行中任务的冻结积分会被解冻。
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	resp, err := c.request(ctx).Delete("/api/v1/music/tasks/" + taskID)
	if err != nil {
		return fmt.Errorf("musegen: 取消任务失败: %w", err)
	}
	return decode(resp, nil)
}

// DownloadURL 解析成品下载地址。任务未完成时返回 *APIError。
func (c *Client) DownloadURL(ctx context.Context, taskID string) (string, error) {
	resp, err := c.request(ctx).Get("/api/v1/music/tasks/" + taskID + "/download")
	if err != nil {
		return "", fmt.Errorf("musegen: 解析下载地址失败: %w", err)
	}
	if resp.StatusCode == http.StatusFound {
		return resp.Header.Get("Location"), nil
	}
	if err := decode(resp, nil); err != nil {
		return "", err
	}
	return "", &APIError{HTTPStatus: resp.StatusCode, Message: "下载地址缺失"}
}

// Credits 查询积分快照。该接口返回裸 JSON（最早期的响应格式）。
func (c *Client) Credits(ctx context.Context) (*CreditInfo, error) {
	resp, err := c.request(ctx).Get("/api/v1/credits")
	if err != nil {
		return nil, fmt.Errorf("musegen: 查询积分失败: %w", err)
	}
	var info CreditInfo
	if err := decode(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Subscription 查询订阅快照（裸 JSON 格式）。
func (c *Client) Subscription(ctx context.Context) (*SubscriptionInfo, error) {
	resp, err := c.request(ctx).Get("/api/v1/subscriptions")
	if err != nil {
		return nil, fmt.Errorf("musegen: 查询订阅失败: %w", err)
	}
	var info SubscriptionInfo
	if err := decode(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
