package handler

// Handlers 汇聚所有 HTTP Handler，供路由注册统一引用。
type Handlers struct {
	Auth         *AuthHandler
	Credit       *CreditHandler
	Subscription *SubscriptionHandler
	File         *FileHandler
	Task         *TaskHandler
	TaskStream   *TaskStreamHandler
	Session      *SessionHandler
}

// NewHandlers 组装 Handlers。
func NewHandlers(
	auth *AuthHandler,
	credit *CreditHandler,
	subscription *SubscriptionHandler,
	file *FileHandler,
	task *TaskHandler,
	taskStream *TaskStreamHandler,
	session *SessionHandler,
) *Handlers {
	return &Handlers{
		Auth:         auth,
		Credit:       credit,
		Subscription: subscription,
		File:         file,
		Task:         task,
		TaskStream:   taskStream,
		Session:      session,
	}
}
