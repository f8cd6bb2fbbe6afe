package musegen

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultRefreshInterval = 30 * time.Second

// CreditsWatcher 维护积分与订阅的本地快照：启动即拉取，积分每 30s 自动刷新，
// 订阅只在启动与显式 Refetch 时拉取。刷新失败保留最后一次成功的快照，
// 错误单独暴露，读方永远能拿到可用数据。
type CreditsWatcher struct {
	client   *Client
	interval time.Duration

	sf singleflight.Group

	mu           sync.RWMutex
	credits      *CreditInfo
	subscription *SubscriptionInfo
	lastErr      error

	stopOnce sync.Once
	stop     chan struct{}
}

// WatcherOption 观察器可选配置。
type WatcherOption func(*CreditsWatcher)

// WithRefreshInterval 覆盖默认 30s 的自动刷新间隔。
func WithRefreshInterval(d time.Duration) WatcherOption {
	return func(w *CreditsWatcher) { w.interval = d }
}

// NewCreditsWatcher 创建观察器，调用 Start 前不产生任何请求。
func NewCreditsWatcher(client *Client, opts ...WatcherOption) *CreditsWatcher {
	w := &CreditsWatcher{
		client:   client,
		interval: defaultRefreshInterval,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start 拉取首轮快照并启动后台刷新。首轮失败不阻止启动，
// 错误留在 LastError 里等下一轮刷新覆盖。
func (w *CreditsWatcher) Start(ctx context.Context) {
	w.refreshCredits(ctx)
	w.refreshSubscription(ctx)

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.refreshCredits(ctx)
			}
		}
	}()
}

// Stop 停止后台刷新。幂等。
func (w *CreditsWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Credits 返回最近一次成功的积分快照，可能为 nil（从未成功）。
func (w *CreditsWatcher) Credits() *CreditInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.credits
}

// Subscription 返回最近一次成功的订阅快照。
func (w *CreditsWatcher) Subscription() *SubscriptionInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.subscription
}

// LastError 返回最近一次刷新失败的错误，最近一次成功后为 nil。
func (w *CreditsWatcher) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastErr
}

// Refetch 立即强制刷新积分并返回结果。并发调用合并为一次请求。
func (w *CreditsWatcher) Refetch(ctx context.Context) (*CreditInfo, error) {
	v, err, _ := w.sf.Do("credits", func() (any, error) {
		info, err := w.client.Credits(ctx)
		w.store(info, nil, err)
		if err != nil {
			return nil, err
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CreditInfo), nil
}

// RefetchSubscription 强制刷新订阅快照（升级/退订后调用）。
func (w *CreditsWatcher) RefetchSubscription(ctx context.Context) (*SubscriptionInfo, error) {
	v, err, _ := w.sf.Do("subscription", func() (any, error) {
		info, err := w.client.Subscription(ctx)
		w.store(nil, info, err)
		if err != nil {
			return nil, err
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SubscriptionInfo), nil
}

func (w *CreditsWatcher) refreshCredits(ctx context.Context) {
	_, _ = w.Refetch(ctx)
}

func (w *CreditsWatcher) refreshSubscription(ctx context.Context) {
	_, _ = w.RefetchSubscription(ctx)
}

// store 写入快照；失败时只记录错误，现有快照不动。
func (w *CreditsWatcher) store(credits *CreditInfo, subscription *SubscriptionInfo, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.lastErr = err
		return
	}
	w.lastErr = nil
	if credits != nil {
		w.credits = credits
	}
	if subscription != nil {
		w.subscription = subscription
	}
}
